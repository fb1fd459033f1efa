// Package config loads Chronicle configuration from a YAML file with
// environment-variable overrides and built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	DBPath string `yaml:"db_path"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Ollama struct {
		URL   string `yaml:"url"`
		Model string `yaml:"model"`
	} `yaml:"ollama"`

	Whisper struct {
		URL string `yaml:"url"`
	} `yaml:"whisper"`

	UploadDir string `yaml:"upload_dir"`
	Debug     bool   `yaml:"debug"`
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chronicle", "config.yaml")
}

// Load reads the config file at path (DefaultConfigPath when empty),
// applies env overrides, and fills defaults. A missing file is not an
// error; defaults and env cover the common single-user setup.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to env + defaults
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CHRONICLE_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.Ollama.URL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.Ollama.Model = v
	}
	if v := os.Getenv("WHISPER_URL"); v != "" {
		cfg.Whisper.URL = v
	}
	if v := os.Getenv("CHRONICLE_UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Ollama.URL == "" {
		cfg.Ollama.URL = "http://localhost:11434"
	}
	if cfg.Ollama.Model == "" {
		cfg.Ollama.Model = "llama3.2"
	}
	if cfg.Whisper.URL == "" {
		cfg.Whisper.URL = "http://localhost:9090"
	}
	if cfg.UploadDir == "" {
		home, _ := os.UserHomeDir()
		cfg.UploadDir = filepath.Join(home, ".chronicle", "uploads")
	}
	// DBPath default is handled by the store package.
}
