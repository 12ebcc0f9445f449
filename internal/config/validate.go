// internal/config/validate.go
package config

import (
	"fmt"
	"os"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "": true,
}

var validAIProviders = map[string]bool{
	"ollama": true, "anthropic": true,
}

// Validate checks the configuration for errors.
// Returns a slice of error messages (empty if valid).
func (c *Config) Validate() []string {
	var errs []string

	// At least one library required
	if c.Libraries.Movies.Root == "" && c.Libraries.Series.Root == "" {
		errs = append(errs, "libraries: at least one library (movies or series) must be configured")
	}

	// Server validation
	if c.Server.Port != 0 && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port: must be between 1 and 65535, got %d", c.Server.Port))
	}
	if !validLogLevels[c.Server.LogLevel] {
		errs = append(errs, fmt.Sprintf("server.log_level: must be one of debug, info, warn, error; got %q", c.Server.LogLevel))
	}

	// Quality validation
	if c.Quality.Default != "" && len(c.Quality.Profiles) > 0 {
		if _, ok := c.Quality.Profiles[c.Quality.Default]; !ok {
			errs = append(errs, fmt.Sprintf("quality.default: profile %q not defined", c.Quality.Default))
		}
	}

	// Indexers validation
	if len(c.Indexers) == 0 {
		errs = append(errs, "indexers: at least one indexer must be configured")
	}
	for name, indexer := range c.Indexers {
		if indexer.URL == "" {
			errs = append(errs, fmt.Sprintf("indexers.%s.url: required", name))
		}
		if indexer.APIKey == "" {
			errs = append(errs, fmt.Sprintf("indexers.%s.api_key: required", name))
		}
	}

	// SABnzbd validation
	if c.Downloaders.SABnzbd != nil {
		if c.Downloaders.SABnzbd.URL == "" {
			errs = append(errs, "downloaders.sabnzbd.url: required when sabnzbd is configured")
		}
		if c.Downloaders.SABnzbd.APIKey == "" {
			errs = append(errs, "downloaders.sabnzbd.api_key: required when sabnzbd is configured")
		}
	}

	// AI validation
	if c.AI.Enabled {
		if !validAIProviders[c.AI.Provider] {
			errs = append(errs, fmt.Sprintf("ai.provider: must be one of ollama, anthropic; got %q", c.AI.Provider))
		}
	}

	// Symlink validation: rclone_path is only required once a debrid
	// provider is configured (a bare indexers-only config, as used by
	// the Usenet-only path, has nothing to symlink from yet).
	if c.Symlink.RclonePath == "" && (c.Debrid.RealDebrid != nil || c.Debrid.AllDebrid != nil) {
		errs = append(errs, "symlink.rclone_path: required when a debrid provider is configured")
	}

	// Debrid validation: a configured provider must carry credentials.
	if c.Debrid.RealDebrid != nil && c.Debrid.RealDebrid.APIKey == "" {
		errs = append(errs, "debrid.realdebrid.api_key: required when realdebrid is configured")
	}
	if c.Debrid.AllDebrid != nil && c.Debrid.AllDebrid.APIKey == "" {
		errs = append(errs, "debrid.alldebrid.api_key: required when alldebrid is configured")
	}

	// Scrapers validation: each configured backend carries what it
	// needs to run.
	if c.Scrapers.Jackett != nil && len(c.Scrapers.Jackett.Indexers) == 0 {
		errs = append(errs, "scrapers.jackett.indexers: at least one indexer must be configured")
	}
	for i, idx := range jackettIndexers(c) {
		if idx.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("scrapers.jackett.indexers[%d].base_url: required", i))
		}
	}
	if c.Scrapers.Torrentio != nil && c.Scrapers.Torrentio.BaseURL == "" {
		errs = append(errs, "scrapers.torrentio.base_url: required when torrentio is configured")
	}

	// Plex Watchlist validation
	if c.ContentSources.PlexWatchlist != nil && c.ContentSources.PlexWatchlist.Enabled && c.ContentSources.PlexWatchlist.Token == "" {
		errs = append(errs, "content_sources.plex_watchlist.token: required when enabled")
	}

	// Overseerr validation
	if c.Overseerr.Enabled {
		if c.Overseerr.URL == "" {
			errs = append(errs, "overseerr.url: required when enabled")
		}
		if c.Overseerr.APIKey == "" {
			errs = append(errs, "overseerr.api_key: required when enabled")
		}
	}

	// Library path checks: labelled "warning", but returned in the same
	// list as the errors above, so Load rejects a missing library root.
	if c.Libraries.Movies.Root != "" {
		if _, err := os.Stat(c.Libraries.Movies.Root); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("libraries.movies.root: warning: directory %q does not exist", c.Libraries.Movies.Root))
		}
	}
	if c.Libraries.Series.Root != "" {
		if _, err := os.Stat(c.Libraries.Series.Root); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("libraries.series.root: warning: directory %q does not exist", c.Libraries.Series.Root))
		}
	}

	return errs
}

func jackettIndexers(c *Config) []JackettIndexerConfig {
	if c.Scrapers.Jackett == nil {
		return nil
	}
	return c.Scrapers.Jackett.Indexers
}
