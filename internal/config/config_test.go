package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CHRONICLE_DB", "OLLAMA_URL", "OLLAMA_MODEL", "WHISPER_URL", "CHRONICLE_UPLOAD_DIR"} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 8000 {
		t.Errorf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Ollama.URL != "http://localhost:11434" || cfg.Ollama.Model != "llama3.2" {
		t.Errorf("unexpected ollama defaults: %+v", cfg.Ollama)
	}
	if cfg.Whisper.URL != "http://localhost:9090" {
		t.Errorf("unexpected whisper default: %+v", cfg.Whisper)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
db_path: /tmp/test.db
server:
  host: 0.0.0.0
  port: 9999
ollama:
  model: mistral
debug: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "/tmp/test.db" || cfg.Server.Port != 9999 || !cfg.Debug {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Ollama.Model != "mistral" {
		t.Errorf("expected file model, got %q", cfg.Ollama.Model)
	}
	// Unset fields still get defaults.
	if cfg.Ollama.URL != "http://localhost:11434" {
		t.Errorf("expected default ollama URL, got %q", cfg.Ollama.URL)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHRONICLE_DB", "/env/override.db")
	t.Setenv("OLLAMA_MODEL", "phi3")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("db_path: /file/value.db\nollama:\n  model: mistral\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "/env/override.db" {
		t.Errorf("expected env to win, got %q", cfg.DBPath)
	}
	if cfg.Ollama.Model != "phi3" {
		t.Errorf("expected env model, got %q", cfg.Ollama.Model)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
