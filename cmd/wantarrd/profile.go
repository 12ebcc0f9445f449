package main

import (
	"strings"

	"github.com/vmunix/wantarr/internal/config"
	"github.com/vmunix/wantarr/internal/scrape"
	"github.com/vmunix/wantarr/pkg/release"
)

// buildScrapeProfile turns a config.QualityProfile's free-form string
// lists into a scrape.Profile's typed, ordered accept list. Grounded
// on the teacher's internal/search.ParseQualitySpec, which parses a
// single "1080p bluray"-style string into a QualitySpec; here each
// Resolution/Sources pair in the profile becomes one scrape.Spec, in
// the order they're configured, since TOML arrays preserve the
// operator's priority ordering directly (no separate rank field
// needed the way the teacher's map[string][]string did).
func buildScrapeProfile(p config.QualityProfile) scrape.Profile {
	resolutions := parseResolutions(p.Resolution)
	if len(resolutions) == 0 {
		resolutions = []release.Resolution{release.ResolutionUnknown}
	}
	sources := parseSources(p.Sources)
	if len(sources) == 0 {
		sources = []release.Source{release.SourceUnknown}
	}
	hdr := parseHDR(p.HDR)
	audio := parseAudio(p.Audio)
	network := ""
	if len(p.Network) > 0 {
		network = p.Network[0]
	}

	var specs []scrape.Spec
	for _, res := range resolutions {
		for _, src := range sources {
			specs = append(specs, scrape.Spec{
				Resolution:         res,
				Source:             src,
				HDR:                hdr,
				Audio:              audio,
				Network:            network,
				PreferProperRepack: p.PreferProperRepack,
			})
		}
	}

	return scrape.Profile{
		Specs:        specs,
		Reject:       p.Reject,
		BannedCodecs: parseCodecs(p.Codecs),
	}
}

func parseResolutions(ss []string) []release.Resolution {
	var out []release.Resolution
	for _, s := range ss {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "720p":
			out = append(out, release.Resolution720p)
		case "1080p":
			out = append(out, release.Resolution1080p)
		case "2160p", "4k":
			out = append(out, release.Resolution2160p)
		}
	}
	return out
}

func parseSources(ss []string) []release.Source {
	var out []release.Source
	for _, s := range ss {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "bluray", "blu-ray", "remux":
			out = append(out, release.SourceBluRay)
		case "web-dl", "webdl":
			out = append(out, release.SourceWEBDL)
		case "webrip", "web-rip":
			out = append(out, release.SourceWEBRip)
		case "hdtv":
			out = append(out, release.SourceHDTV)
		case "cam":
			out = append(out, release.SourceCAM)
		case "telesync", "ts":
			out = append(out, release.SourceTelesync)
		}
	}
	return out
}

// parseCodecs maps the profile's banned-codec substrings onto
// release.Codec values; unrecognized entries are dropped, since they
// likely belong to Reject instead (e.g. a release-group name).
func parseCodecs(ss []string) []release.Codec {
	var out []release.Codec
	for _, s := range ss {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "x264", "h264", "h.264", "avc":
			out = append(out, release.CodecX264)
		case "x265", "h265", "h.265", "hevc":
			out = append(out, release.CodecX265)
		}
	}
	return out
}

func parseHDR(ss []string) release.HDRFormat {
	for _, s := range ss {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "hdr10+", "hdr10plus":
			return release.HDR10Plus
		case "hdr10":
			return release.HDR10
		case "dolby vision", "dolby-vision", "dv", "dolbyvision":
			return release.DolbyVision
		case "hlg":
			return release.HLG
		case "hdr":
			return release.HDRGeneric
		}
	}
	return release.HDRNone
}

func parseAudio(ss []string) release.AudioCodec {
	for _, s := range ss {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "atmos":
			return release.AudioAtmos
		case "truehd":
			return release.AudioTrueHD
		case "dts-hd", "dtshd":
			return release.AudioDTSHD
		case "dts":
			return release.AudioDTS
		case "eac3", "e-ac-3", "ddp", "dd+":
			return release.AudioEAC3
		case "ac3", "dd":
			return release.AudioAC3
		case "aac":
			return release.AudioAAC
		case "flac":
			return release.AudioFLAC
		case "opus":
			return release.AudioOpus
		}
	}
	return release.AudioUnknown
}
