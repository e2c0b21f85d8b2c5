package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaultAndNormalize(t *testing.T) {
	cfg := Default()
	if cfg.Port == 0 || cfg.OutputDir == "" || cfg.MinBytes != 5000 {
		t.Fatalf("default config invalid: %+v", cfg)
	}
	if cfg.Delays.Lookup <= cfg.Delays.Direct {
		t.Fatalf("lookup delay should exceed direct delay: %+v", cfg.Delays)
	}
	if cfg.Fetch.Timeout <= cfg.Lookup.Timeout {
		t.Fatalf("fetch timeout should exceed lookup timeout")
	}

	got := normalizeExtensions([]string{"JPG", ".png", "jpg", "  .WEBP"})

	has := func(slice []string, s string) bool {
		for _, v := range slice {
			if v == s {
				return true
			}
		}
		return false
	}
	if len(got) != 3 || !has(got, ".jpg") || !has(got, ".png") || !has(got, ".webp") {
		t.Fatalf("expected normalized set .jpg,.png,.webp got %v", got)
	}
}

func TestDefaultUserAgentFollowsPolicy(t *testing.T) {
	ua := DefaultUserAgent()
	if !strings.HasPrefix(ua, "carimages/") || !strings.Contains(ua, "(https://") || !strings.Contains(ua, "Go-HTTP-Client/go") {
		t.Fatalf("unexpected user agent %q", ua)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("not_exists.yml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Lookup.Endpoint != defaultLookupEndpoint {
		t.Fatalf("expected default endpoint, got %q", cfg.Lookup.Endpoint)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadReadsAndValidates(t *testing.T) {
	path := writeConfig(t, `
port: 9090
output_dir: out
min_bytes: 1000
allowed_extensions: [JPG, .png]
lookup:
  thumb_size: 640
  timeout: 5s
delays:
  direct: 0s
  lookup: 1500ms
log:
  level: DEBUG
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.OutputDir != "out" || cfg.MinBytes != 1000 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Lookup.ThumbSize != 640 || cfg.Lookup.Timeout != 5*time.Second {
		t.Fatalf("unexpected lookup cfg: %+v", cfg.Lookup)
	}
	if cfg.Delays.Direct != 0 || cfg.Delays.Lookup != 1500*time.Millisecond {
		t.Fatalf("unexpected delays: %+v", cfg.Delays)
	}
	// untouched sections keep defaults
	if cfg.Fetch.Timeout != defaultFetchTimeout || cfg.DataDir != defaultDataDir {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level not normalized: %q", cfg.Log.Level)
	}
	if len(cfg.AllowedExtensions) != 2 || cfg.AllowedExtensions[0] != ".jpg" {
		t.Fatalf("extensions not normalized: %v", cfg.AllowedExtensions)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"negative min":      "min_bytes: -1\n",
		"max below min":     "min_bytes: 5000\nmax_bytes: 100\n",
		"negative delay":    "delays:\n  direct: -1s\n",
		"bad log level":     "log:\n  level: loud\n",
		"bad thumb size":    "lookup:\n  thumb_size: -5\n",
		"bad yaml":          "port: [",
		"port out of range": "port: 70000\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}
