package settings

import (
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if !cfg.Orchestrator.AutoStartProcessing || !cfg.Orchestrator.AutoConnect {
		t.Fatalf("expected auto-start and auto-connect to default true")
	}
	if cfg.Orchestrator.ProcessingIntervalMs != 1000 {
		t.Errorf("expected 1000ms processing interval, got %d", cfg.Orchestrator.ProcessingIntervalMs)
	}
	if cfg.Orchestrator.StatusCheckIntervalS != 30 {
		t.Errorf("expected 30s status check interval, got %d", cfg.Orchestrator.StatusCheckIntervalS)
	}
}

func TestWriteAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "posprint.toml")

	cfg := Default()
	cfg.Database.Path = "custom.db"
	cfg.Orchestrator.ProcessingIntervalMs = 2500

	if err := WriteDefault(path, cfg); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	loaded := Default()
	if _, err := toml.DecodeFile(path, loaded); err != nil {
		t.Fatalf("decoding written config: %v", err)
	}
	if loaded.Database.Path != "custom.db" {
		t.Errorf("expected custom.db, got %s", loaded.Database.Path)
	}
	if loaded.Orchestrator.ProcessingIntervalMs != 2500 {
		t.Errorf("expected 2500ms, got %d", loaded.Orchestrator.ProcessingIntervalMs)
	}

	if err := WriteDefault(path, Default()); err == nil {
		t.Fatalf("expected WriteDefault to refuse to overwrite existing file")
	}
}

func TestSearchPathsOrdering(t *testing.T) {
	paths := SearchPaths("posprint.toml")
	if len(paths) < 3 {
		t.Fatalf("expected at least 3 search paths, got %d", len(paths))
	}
	last := paths[len(paths)-1]
	if last != filepath.Join(".", "posprint.toml") {
		t.Errorf("expected cwd to be the lowest-priority (last) search path, got %s", last)
	}
}
