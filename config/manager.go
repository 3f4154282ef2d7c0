package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/phuslu/log"
)

// FileName is the config file created when no path is given.
const FileName = "config.json"

// Manager owns one config file. It keeps the values stored on disk apart
// from the effective config, which also carries environment overrides.
type Manager struct {
	path     string
	debounce time.Duration

	mu       sync.RWMutex
	stored   Config
	cfg      Config
	watching bool
	onChange func(Config)

	// set while the manager itself writes the file
	saving atomic.Bool
}

type managerOptions struct {
	path     string
	debounce time.Duration
}

type ManagerOption func(*managerOptions)

// WithConfigPath uses path instead of the per-user config file.
func WithConfigPath(path string) ManagerOption {
	return func(o *managerOptions) {
		if path != "" {
			o.path = path
		}
	}
}

// WithConfigDir keeps config.json inside dir.
func WithConfigDir(dir string) ManagerOption {
	return func(o *managerOptions) {
		if dir != "" {
			o.path = filepath.Join(dir, FileName)
		}
	}
}

func WithDebounce(d time.Duration) ManagerOption {
	return func(o *managerOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// NewManager reads the config file, writing one with defaults if it does
// not exist yet.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	options := managerOptions{debounce: 300 * time.Millisecond}
	for _, opt := range opts {
		opt(&options)
	}
	if options.path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			if dir, err = os.Getwd(); err != nil {
				return nil, err
			}
		}
		options.path = filepath.Join(dir, "IndexGo", FileName)
	}
	if err := os.MkdirAll(filepath.Dir(options.path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	m := &Manager{path: options.path, debounce: options.debounce}
	stored, err := m.readStored()
	if errors.Is(err, os.ErrNotExist) {
		stored = *DefaultConfigWithRoot(filepath.Dir(m.path))
		if err := writeConfigFile(m.path, stored); err != nil {
			return nil, fmt.Errorf("write initial config: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	cfg, err := effective(stored)
	if err != nil {
		return nil, err
	}
	m.stored, m.cfg = stored, cfg
	return m, nil
}

// Load returns the effective config for the file at path.
func Load(path string) (*Config, error) {
	m, err := NewManager(WithConfigPath(path))
	if err != nil {
		return nil, err
	}
	cfg := m.Get()
	return &cfg, nil
}

// Get returns the effective config.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Stored returns the config as written in the file.
func (m *Manager) Stored() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stored
}

func (m *Manager) Path() string {
	return m.path
}

// Save validates cfg and writes it to the file.
func (m *Manager) Save(cfg Config) error {
	next, err := effective(cfg)
	if err != nil {
		return err
	}
	if reflect.DeepEqual(m.Stored(), cfg) {
		return nil
	}

	m.saving.Store(true)
	defer time.AfterFunc(m.debounce, func() { m.saving.Store(false) })
	if err := writeConfigFile(m.path, cfg); err != nil {
		return err
	}
	m.apply(cfg, next)
	return nil
}

// Set changes a single key of the stored config. value is read as JSON
// and taken as a plain string when it is not valid JSON, so
// Set("provider", "static") and Set("max_workers", "8") both work.
func (m *Manager) Set(key, value string) error {
	stored := m.Stored()
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if _, ok := fields[key]; !ok {
		return fmt.Errorf("unknown config key %q", key)
	}

	raw := json.RawMessage(value)
	if !json.Valid(raw) {
		// durations are stored as nanoseconds
		if d, perr := time.ParseDuration(value); perr == nil && isNumber(fields[key]) {
			raw = json.RawMessage(strconv.FormatInt(int64(d), 10))
		} else if raw, err = json.Marshal(value); err != nil {
			return err
		}
	}
	fields[key] = raw

	if data, err = json.Marshal(fields); err != nil {
		return err
	}
	var next Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&next); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return m.Save(next)
}

// Watch calls onChange with the new effective config whenever the file
// changes on disk. Invalid edits are logged and skipped.
func (m *Manager) Watch(ctx context.Context, onChange func(Config)) error {
	m.mu.Lock()
	m.onChange = onChange
	if m.watching {
		m.mu.Unlock()
		return nil
	}
	m.watching = true
	m.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// editors replace the file, so watch the directory
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(m.path) ||
				evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 ||
				m.saving.Load() {
				continue
			}
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(m.debounce, m.reload)
			timerMu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("path", m.path).Msg("config watcher error")
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) reload() {
	stored, err := m.readStored()
	if err != nil {
		log.Error().Err(err).Str("path", m.path).Msg("config reload failed")
		return
	}
	cfg, err := effective(stored)
	if err != nil {
		log.Error().Err(err).Str("path", m.path).Msg("config reload rejected")
		return
	}
	if reflect.DeepEqual(m.Get(), cfg) {
		return
	}
	m.apply(stored, cfg)
}

func (m *Manager) apply(stored, cfg Config) {
	m.mu.Lock()
	m.stored, m.cfg = stored, cfg
	cb := m.onChange
	m.mu.Unlock()

	if cb != nil {
		cb(cfg)
	}
}

// readStored decodes the file over the defaults so keys missing from older
// files keep their default values.
func (m *Manager) readStored() (Config, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return Config{}, err
	}
	cfg := *DefaultConfigWithRoot(filepath.Dir(m.path))
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", m.path, err)
	}
	return cfg, nil
}

// effective applies .env and environment overrides to stored and validates
// the result.
func effective(stored Config) (Config, error) {
	cfg := stored
	cfg.IndexFunds = append([]string(nil), stored.IndexFunds...)
	cfg.FallbackProviders = append([]string(nil), stored.FallbackProviders...)
	_ = godotenv.Load()
	cfg.loadFromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func isNumber(raw json.RawMessage) bool {
	var n json.Number
	return json.Unmarshal(raw, &n) == nil
}

func writeConfigFile(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
