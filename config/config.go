package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Config holds app-level settings that rarely change between runs.
// Relay parameters come from the command line (see Options).
type Config struct {
	LogLines    int    `json:"log_lines" toml:"log_lines"`
	LogsDir     string `json:"logs_dir" toml:"logs_dir"`
	RecentDir   string `json:"recent_dir" toml:"recent_dir"`
	CapturesDir string `json:"captures_dir" toml:"captures_dir"`
	MetricsAddr string `json:"metrics_addr" toml:"metrics_addr"`
	BufferSize  int    `json:"buffer_size" toml:"buffer_size"`
}

var (
	defaultConfig *Config
	defaultErr    error
	once          sync.Once
)

func Default() *Config {
	return &Config{
		LogLines:    1000,
		LogsDir:     "logs",
		RecentDir:   "recent",
		CapturesDir: "captures",
		BufferSize:  65535,
	}
}

// SearchPaths lists where Load looks when no path is given, in order.
func SearchPaths() []string {
	paths := []string{
		"netimp.json",
		".netimp.json",
		"netimp.toml",
		".netimp.toml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "netimp", "config.json"),
			filepath.Join(home, ".config", "netimp", "config.toml"),
		)
	}
	return paths
}

// Load reads a JSON or TOML config file (chosen by extension). An empty
// path searches SearchPaths; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, p := range SearchPaths() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}

		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Apply defaults for any zero values
	def := Default()
	if cfg.LogLines <= 0 {
		cfg.LogLines = def.LogLines
	}
	if cfg.LogsDir == "" {
		cfg.LogsDir = def.LogsDir
	}
	if cfg.RecentDir == "" {
		cfg.RecentDir = def.RecentDir
	}
	if cfg.CapturesDir == "" {
		cfg.CapturesDir = def.CapturesDir
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	return cfg, nil
}

// LoadDefault loads the config once and caches it
func LoadDefault() (*Config, error) {
	once.Do(func() {
		defaultConfig, defaultErr = Load("")
	})
	if defaultErr != nil {
		return Default(), defaultErr
	}
	return defaultConfig, nil
}
