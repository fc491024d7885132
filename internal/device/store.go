package device

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/touchstream/spoke/internal/events"
)

// Store owns the persisted device configuration. It is the only shared
// mutable resource between the control server, the beacon, and the
// supervisor; all access goes through the RW lock so Snapshot never
// observes a partially applied update.
type Store struct {
	path   string
	bus    *events.Bus
	logger *slog.Logger

	mu  sync.RWMutex
	cfg Config
}

// NewStore creates a store backed by the given file path. The bus may be
// nil (tests, one-shot commands); events are then skipped.
func NewStore(path string, bus *events.Bus, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		bus:    bus,
		logger: logger,
		cfg:    Defaults(),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted configuration, materializing defaults if the
// file is absent. A corrupt file is recoverable: defaults are used and a
// warning logged, never a fatal error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := readConfigFile(s.path)
	switch {
	case os.IsNotExist(err):
		s.cfg = Defaults()
		if saveErr := writeConfigFile(s.path, s.cfg); saveErr != nil {
			return fmt.Errorf("failed to materialize default config: %w", saveErr)
		}
		s.logger.Info("No device config found, wrote defaults", "path", s.path)
		return nil
	case err != nil:
		s.cfg = Defaults()
		s.logger.Warn("Device config unreadable, using defaults", "path", s.path, "error", err)
		return nil
	}

	fillDefaults(&cfg)
	s.cfg = cfg
	return nil
}

// Snapshot returns an immutable copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Apply merges a partial update into the configuration under exclusive
// access, persists the result, and returns the new snapshot. The second
// return value reports whether an encoder-relevant field changed.
// On a persistence failure the in-memory configuration is left untouched.
func (s *Store) Apply(update Update) (Config, bool, error) {
	s.mu.Lock()

	old := s.cfg
	next := old
	update.mergeInto(&next)

	if err := writeConfigFile(s.path, next); err != nil {
		s.mu.Unlock()
		return old, false, fmt.Errorf("failed to persist config: %w", err)
	}

	s.cfg = next
	relevant := old.encoderKey() != next.encoderKey()
	adopted := !old.Adopted() && next.Adopted()
	s.mu.Unlock()

	s.publishUpdate(next, relevant, adopted)
	return next, relevant, nil
}

// Reload re-reads the backing file, picking up out-of-band edits (the
// fsnotify watcher calls this). Returns whether an encoder-relevant
// field changed.
func (s *Store) Reload() (Config, bool, error) {
	s.mu.Lock()

	cfg, err := readConfigFile(s.path)
	if err != nil {
		current := s.cfg
		s.mu.Unlock()
		return current, false, fmt.Errorf("failed to reload config: %w", err)
	}
	fillDefaults(&cfg)

	old := s.cfg
	s.cfg = cfg
	relevant := old.encoderKey() != cfg.encoderKey()
	adopted := !old.Adopted() && cfg.Adopted()
	s.mu.Unlock()

	s.publishUpdate(cfg, relevant, adopted)
	return cfg, relevant, nil
}

func (s *Store) publishUpdate(cfg Config, relevant, adopted bool) {
	if s.bus == nil {
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)
	s.bus.Publish(events.ConfigUpdatedEvent{
		DeviceID:  cfg.WireID(),
		Relevant:  relevant,
		Timestamp: now,
	})
	if adopted {
		s.bus.Publish(events.AdoptedEvent{
			DeviceID:   cfg.DeviceID,
			DeviceName: cfg.DeviceName,
			Timestamp:  now,
		})
	}
}

// fillDefaults backfills fields that must never be empty. device_id,
// location and ingest_destination stay as loaded: empty is meaningful
// for those.
func fillDefaults(cfg *Config) {
	def := Defaults()
	if cfg.DeviceName == "" {
		cfg.DeviceName = def.DeviceName
	}
	if cfg.VideoBitrate == "" {
		cfg.VideoBitrate = def.VideoBitrate
	}
	if cfg.AudioBitrate == "" {
		cfg.AudioBitrate = def.AudioBitrate
	}
	if cfg.Resolution == "" {
		cfg.Resolution = def.Resolution
	}
	if cfg.Framerate == "" {
		cfg.Framerate = def.Framerate
	}
}

func readConfigFile(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	// Unknown keys are ignored for forward compatibility.
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse device config: %w", err)
	}
	return cfg, nil
}

func writeConfigFile(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal device config: %w", err)
	}

	if writeErr := os.WriteFile(path, data, 0o644); writeErr != nil {
		return fmt.Errorf("failed to write device config: %w", writeErr)
	}
	return nil
}
