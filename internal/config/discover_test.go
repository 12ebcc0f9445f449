// internal/config/discover_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultPath(t *testing.T) {
	// Clear XDG var to test default
	old := os.Getenv("XDG_CONFIG_HOME")
	os.Unsetenv("XDG_CONFIG_HOME")
	defer os.Setenv("XDG_CONFIG_HOME", old)

	path := DefaultPath()
	if !strings.Contains(path, ".config/wantarr/config.toml") {
		t.Errorf("expected ~/.config/wantarr/config.toml, got %s", path)
	}
}

func TestDefaultPath_XDG(t *testing.T) {
	os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	defer os.Unsetenv("XDG_CONFIG_HOME")

	path := DefaultPath()
	if path != "/custom/config/wantarr/config.toml" {
		t.Errorf("expected /custom/config/wantarr/config.toml, got %s", path)
	}
}

func TestDiscover_WANTARR_CONFIG(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "custom.toml")
	os.WriteFile(cfgPath, []byte("[server]"), 0644)

	os.Setenv("WANTARR_CONFIG", cfgPath)
	defer os.Unsetenv("WANTARR_CONFIG")

	path, err := Discover()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != cfgPath {
		t.Errorf("expected %s, got %s", cfgPath, path)
	}
}

func TestDiscover_WANTARR_CONFIG_NotFound(t *testing.T) {
	os.Setenv("WANTARR_CONFIG", "/nonexistent/config.toml")
	defer os.Unsetenv("WANTARR_CONFIG")

	_, err := Discover()
	if err == nil {
		t.Fatal("expected error for missing WANTARR_CONFIG")
	}
	if !strings.Contains(err.Error(), "WANTARR_CONFIG") {
		t.Errorf("expected WANTARR_CONFIG in error, got %v", err)
	}
}

func TestDiscover_CurrentDir(t *testing.T) {
	// Save current dir and env
	origDir, _ := os.Getwd()
	origEnv := os.Getenv("WANTARR_CONFIG")
	os.Unsetenv("WANTARR_CONFIG")
	defer func() {
		os.Chdir(origDir)
		if origEnv != "" {
			os.Setenv("WANTARR_CONFIG", origEnv)
		}
	}()

	// Create temp dir with config
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.toml")
	os.WriteFile(cfgPath, []byte("[server]"), 0644)
	os.Chdir(tmp)

	path, err := Discover()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected config.toml, got %s", path)
	}
}

func TestDiscover_NotFound(t *testing.T) {
	// Clear all discovery paths
	os.Unsetenv("WANTARR_CONFIG")
	origXDG := os.Getenv("XDG_CONFIG_HOME")
	os.Setenv("XDG_CONFIG_HOME", "/nonexistent/xdg")
	defer os.Setenv("XDG_CONFIG_HOME", origXDG)

	origDir, _ := os.Getwd()
	tmp := t.TempDir() // Empty temp dir
	os.Chdir(tmp)
	defer os.Chdir(origDir)

	_, err := Discover()
	if err == nil {
		t.Fatal("expected error when no config found")
	}
	if !strings.Contains(err.Error(), "config not found") {
		t.Errorf("expected 'config not found' in error, got %v", err)
	}
}
