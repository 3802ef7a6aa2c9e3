package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.ChunkSize != 50 || cfg.HarvestRange != 5.5 {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.RespawnScanInterval.Duration != 10*time.Second {
		t.Fatalf("default scan interval = %v", cfg.RespawnScanInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9090"
seed: 42
chunk_size: 64
view_distance_chunks: 3
harvest_range: 8.0
respawn_scan_interval: 30s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" || cfg.Seed != 42 || cfg.ChunkSize != 64 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RespawnScanInterval.Duration != 30*time.Second {
		t.Fatalf("scan interval = %v", cfg.RespawnScanInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.PregenRadius != 4 {
		t.Fatalf("pregen_radius = %d, want default 4", cfg.PregenRadius)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"zero chunk", "chunk_size: 0\n", "chunk_size"},
		{"negative range", "harvest_range: -1\n", "harvest_range"},
		{"bad duration", "respawn_scan_interval: soon\n", "duration"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}
