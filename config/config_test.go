package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const minimal = `callsign: n0call
clusters:
  - name: local
    host: dxc.example.net
`

func TestLoadSingleFileAppliesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dxlisten.yaml", minimal)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Callsign != "N0CALL" {
		t.Fatalf("expected upper-cased callsign, got %q", cfg.Callsign)
	}
	if cfg.Clusters[0].Port != 7300 {
		t.Fatalf("expected default port 7300, got %d", cfg.Clusters[0].Port)
	}
	if cfg.Listener.PollIntervalMS != 250 || cfg.Listener.AuthRetries != 10 {
		t.Fatalf("unexpected listener defaults %+v", cfg.Listener)
	}
	if cfg.Listener.Transport != "native" || cfg.Archive.Backend != "sqlite" || cfg.Archive.Synchronous != "off" {
		t.Fatalf("unexpected string defaults: %q %q %q", cfg.Listener.Transport, cfg.Archive.Backend, cfg.Archive.Synchronous)
	}
	if cfg.UI.Mode != "headless" {
		t.Fatalf("expected headless ui, got %q", cfg.UI.Mode)
	}
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "10-clusters.yaml", minimal)
	writeFile(t, dir, "20-archive.yaml", "archive:\n  enabled: true\n  backend: pebble\n")
	writeFile(t, dir, "30-override.yml", "callsign: k1abc\n")
	writeFile(t, dir, "notes.txt", "ignored")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := filepath.Clean(cfg.LoadedFrom); got != filepath.Clean(dir) {
		t.Fatalf("expected LoadedFrom=%s, got %s", dir, got)
	}
	if cfg.Callsign != "K1ABC" {
		t.Fatalf("expected later file to override callsign, got %q", cfg.Callsign)
	}
	if len(cfg.Clusters) != 1 || cfg.Clusters[0].Host != "dxc.example.net" {
		t.Fatalf("expected clusters from first file, got %+v", cfg.Clusters)
	}
	if !cfg.Archive.Enabled || cfg.Archive.Backend != "pebble" {
		t.Fatalf("expected archive from second file, got %+v", cfg.Archive)
	}
	if !strings.HasSuffix(cfg.Archive.DBPath, "spots-pebble") {
		t.Fatalf("expected pebble default path, got %q", cfg.Archive.DBPath)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]string{
		"no clusters":       "callsign: n0call\n",
		"no callsign":       "clusters:\n  - host: a.example.net\n",
		"bad port":          minimal + "    port: 70000\n",
		"bad transport":     minimal + "listener:\n  transport: ssh\n",
		"bad backend":       minimal + "archive:\n  backend: mysql\n",
		"bad synchronous":   minimal + "archive:\n  synchronous: fast\n",
		"mqtt no broker":    minimal + "mqtt:\n  enabled: true\n",
		"bad ui":            minimal + "ui:\n  mode: gtk\n",
		"only disabled":     "callsign: n0call\nclusters:\n  - host: a.example.net\n    disabled: true\n",
		"duplicate cluster": minimal + "  - name: local\n    host: b.example.net\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "c.yaml", body)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected Load() to fail")
			}
		})
	}
}

func TestPerClusterCallsignOverride(t *testing.T) {
	body := minimal + "  - name: rbn\n    host: telnet.reversebeacon.net\n    callsign: k1abc-1\n"
	cfg, err := Load(writeFile(t, t.TempDir(), "c.yaml", body))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	clusters := cfg.EnabledClusters()
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	if got := cfg.CallsignFor(clusters[0]); got != "N0CALL" {
		t.Fatalf("expected top-level callsign, got %q", got)
	}
	if got := cfg.CallsignFor(clusters[1]); got != "K1ABC-1" {
		t.Fatalf("expected override callsign, got %q", got)
	}
}

func TestLoadMissingPath(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing path")
	}
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error for empty directory")
	}
}

func TestLoadShippedConfigDirectory(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "data", "config"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(cfg.EnabledClusters()); got != 1 {
		t.Fatalf("expected one enabled cluster, got %d", got)
	}
	if !cfg.Dedup.Enabled || cfg.Archive.Backend != "sqlite" || cfg.Redis.ListMax != 1000 {
		t.Fatalf("sections not merged: %+v", cfg)
	}
}
