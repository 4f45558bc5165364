package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"hybridcore/internal/logging"
)

// Load loads configuration from the global file, then environment
// variables, then a per-project .hybridcore/config.yaml if present.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if configPath := getConfigPath(); configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	loadFromEnv(cfg)
	loadProjectConfig(cfg)

	return cfg, nil
}

// LoadWithProjectDir loads global+env config, then merges
// projectDir/.hybridcore/config.yaml specifically, instead of walking up
// from the working directory.
func LoadWithProjectDir(projectDir string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	projectConfigPath := filepath.Join(projectDir, ".hybridcore", "config.yaml")
	if err := loadFromFile(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}
	return cfg, nil
}

func loadProjectConfig(cfg *Config) {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for {
		projectConfig := filepath.Join(dir, ".hybridcore", "config.yaml")
		if _, err := os.Stat(projectConfig); err == nil {
			if err := loadFromFile(cfg, projectConfig); err != nil {
				logging.Warn("config: failed to load project config", "path", projectConfig, "error", err)
			}
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func getConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hybridcore", "config.yaml")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	if runtime.GOOS == "darwin" {
		appSupport := filepath.Join(homeDir, "Library", "Application Support", "hybridcore", "config.yaml")
		if _, err := os.Stat(appSupport); err == nil {
			return appSupport
		}
	}
	return filepath.Join(homeDir, ".config", "hybridcore", "config.yaml")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if cfg.Model.Preset != "" {
		cfg.Model.ApplyPreset(cfg.Model.Preset)
	}
	return nil
}

func loadFromEnv(cfg *Config) {
	if preset := os.Getenv("HYBRIDCORE_MODEL_PRESET"); preset != "" {
		cfg.Model.Preset = preset
		cfg.Model.ApplyPreset(preset)
	}
	if maxAgents := os.Getenv("HYBRIDCORE_MAX_AGENTS"); maxAgents != "" {
		var n int
		if _, err := fmt.Sscanf(maxAgents, "%d", &n); err == nil && n > 0 {
			cfg.Swarm.MaxAgents = n
		}
	}
	if level := os.Getenv("HYBRIDCORE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// GetConfigPath exposes getConfigPath outside this package.
func GetConfigPath() string {
	return getConfigPath()
}

// Watcher watches the global config file and, on write or create events,
// loads a fresh Config (all layers, via Load) and hands it to a
// caller-supplied callback.
// Grounded on the teacher's internal/watcher package (fsnotify-backed file
// watch with debounce), trimmed to the single-file case this package
// needs (DOMAIN STACK: fsnotify → config live-reload).
type Watcher struct {
	fw *fsnotify.Watcher
}

// WatchConfig starts watching the global config file (if one exists) and
// invokes onChange with a freshly reloaded Config whenever it changes.
// The caller owns the returned Watcher's lifetime and must call Close.
func WatchConfig(onChange func(*Config)) (*Watcher, error) {
	path := getConfigPath()
	if path == "" {
		return nil, fmt.Errorf("config: no config path available to watch")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: failed to start watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: failed to watch %s: %w", path, err)
	}

	w := &Watcher{fw: fw}
	go w.loop(path, onChange)
	return w, nil
}

func (w *Watcher) loop(path string, onChange func(*Config)) {
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load()
			if err != nil {
				logging.Warn("config: reload failed", "error", err)
				continue
			}
			onChange(cfg)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logging.Warn("config: watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.fw.Close()
}
