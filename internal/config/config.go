package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration loaded from server.yaml. Every field
// has a default, so a missing file is not an error.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	Seed       uint64 `yaml:"seed"`

	ChunkSize          float64 `yaml:"chunk_size"`
	ViewDistanceChunks int32   `yaml:"view_distance_chunks"`
	PregenRadius       int32   `yaml:"pregen_radius"`
	HarvestRange       float64 `yaml:"harvest_range"`

	RespawnScanInterval Duration `yaml:"respawn_scan_interval"`
}

// Duration accepts "10s" / "2m" strings in yaml.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

func defaults() Config {
	return Config{
		ListenAddr:          ":8080",
		Seed:                1337,
		ChunkSize:           50,
		ViewDistanceChunks:  2,
		PregenRadius:        4,
		HarvestRange:        5.5,
		RespawnScanInterval: Duration{10 * time.Second},
	}
}

// Load reads the config file at path. An empty path returns defaults.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("server.yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("server.yaml: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %v", c.ChunkSize)
	}
	if c.ViewDistanceChunks < 0 {
		return fmt.Errorf("view_distance_chunks must be >= 0, got %d", c.ViewDistanceChunks)
	}
	if c.PregenRadius < 0 {
		return fmt.Errorf("pregen_radius must be >= 0, got %d", c.PregenRadius)
	}
	if c.HarvestRange <= 0 {
		return fmt.Errorf("harvest_range must be positive, got %v", c.HarvestRange)
	}
	if c.RespawnScanInterval.Duration <= 0 {
		return fmt.Errorf("respawn_scan_interval must be positive, got %v", c.RespawnScanInterval)
	}
	return nil
}
