// Package settings loads the TOML configuration file that drives the
// print core: database paths, logging, and orchestrator options.
package settings

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// OrchestratorOptions holds the recognized orchestrator option keys,
// plus the status-monitor probe interval and an optional firmware floor
// for diagnostics.
type OrchestratorOptions struct {
	AutoStartProcessing  bool   `toml:"auto_start_processing"`
	AutoConnect          bool   `toml:"auto_connect"`
	ProcessingIntervalMs int    `toml:"processing_interval_ms"`
	StatusCheckIntervalS int    `toml:"status_check_interval_seconds"`
	MinFirmware          string `toml:"min_firmware"`
}

// DatabaseConfig locates the SQLite files backing the config and queue
// stores. posprintd opens printers.db and queue.db side by side in the
// directory containing Path; the file name part of Path is not used.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig controls the shared logger.
type LoggingConfig struct {
	Level   string `toml:"level"`
	Dir     string `toml:"dir"`
	Console bool   `toml:"console"`
}

// AppSettings is the root TOML document.
type AppSettings struct {
	Database     DatabaseConfig      `toml:"database"`
	Logging      LoggingConfig       `toml:"logging"`
	Orchestrator OrchestratorOptions `toml:"orchestrator"`
}

// Default returns the baseline settings used when no file is found:
// auto-start and auto-connect on, a 1s processing tick, and a 30s status
// probe.
func Default() *AppSettings {
	return &AppSettings{
		Database: DatabaseConfig{Path: "posprint.db"},
		Logging:  LoggingConfig{Level: "INFO", Dir: "logs", Console: true},
		Orchestrator: OrchestratorOptions{
			AutoStartProcessing:  true,
			AutoConnect:          true,
			ProcessingIntervalMs: 1000,
			StatusCheckIntervalS: 30,
		},
	}
}

// SearchPaths returns an ordered list of platform-appropriate locations to
// look for filename, highest priority first: system config dir, user config
// dir, executable dir, current working directory.
func SearchPaths(filename string) []string {
	var paths []string

	switch runtime.GOOS {
	case "windows":
		paths = append(paths, filepath.Join(os.Getenv("ProgramData"), "posprint", filename))
	case "darwin":
		paths = append(paths, filepath.Join("/Library/Application Support/posprint", filename))
	default:
		paths = append(paths, filepath.Join("/etc/posprint", filename))
	}

	if home, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			paths = append(paths, filepath.Join(home, "AppData", "Local", "posprint", filename))
		case "darwin":
			paths = append(paths, filepath.Join(home, "Library/Application Support/posprint", filename))
		default:
			paths = append(paths, filepath.Join(home, ".config/posprint", filename))
		}
	}

	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), filename))
	}
	paths = append(paths, filepath.Join(".", filename))

	return paths
}

// Load searches SearchPaths for filename, decodes it over Default(), and
// returns the merged settings plus the path it loaded from (empty if no
// file was found, in which case the defaults alone are returned).
func Load(filename string) (*AppSettings, string, error) {
	cfg := Default()

	for _, path := range SearchPaths(filename) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, path, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		return cfg, path, nil
	}

	return cfg, "", nil
}

// WriteDefault writes cfg to path unless a file already exists there.
func WriteDefault(path string, cfg *AppSettings) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	return atomicWriteTOML(path, cfg)
}

// Write overwrites path with cfg, creating parent directories as needed.
func Write(path string, cfg *AppSettings) error {
	return atomicWriteTOML(path, cfg)
}

func atomicWriteTOML(path string, cfg *AppSettings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing temp config: %w", err)
	}
	return os.Rename(tmp, path)
}

// DataDirectory returns the directory posprint should use for its
// database and state files: the working directory when run
// interactively, a system data directory when run as a service.
func DataDirectory(isService bool) (string, error) {
	if !isService {
		return ".", nil
	}
	var dir string
	switch runtime.GOOS {
	case "windows":
		dir = filepath.Join(os.Getenv("ProgramData"), "posprint")
	case "darwin":
		dir = "/var/lib/posprint"
	default:
		dir = "/var/lib/posprint"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return dir, nil
}
