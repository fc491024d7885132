package device

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.toml")
	s := NewStore(path, nil, testLogger())
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestLoadMissingFileMaterializesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.toml")
	s := NewStore(path, nil, testLogger())
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := s.Snapshot()
	if cfg.DeviceID != "" {
		t.Errorf("expected empty device_id, got %q", cfg.DeviceID)
	}
	if cfg.VideoBitrate != "4000k" {
		t.Errorf("expected default video bitrate, got %q", cfg.VideoBitrate)
	}

	// Defaults must have been persisted.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to exist: %v", err)
	}
}

func TestLoadCorruptFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.toml")
	if err := os.WriteFile(path, []byte("not toml [[["), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, nil, testLogger())
	if err := s.Load(); err != nil {
		t.Fatalf("corrupt file should be recoverable, got: %v", err)
	}

	cfg := s.Snapshot()
	if cfg.Resolution != "1920x1080" {
		t.Errorf("expected default resolution, got %q", cfg.Resolution)
	}
}

func TestLoadToleratesUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.toml")
	content := "device_id = \"abc\"\nfuture_field = \"whatever\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, nil, testLogger())
	if err := s.Load(); err != nil {
		t.Fatalf("unknown keys should be ignored, got: %v", err)
	}
	if got := s.Snapshot().DeviceID; got != "abc" {
		t.Errorf("expected device_id abc, got %q", got)
	}
}

func TestApplyPartialUpdateRetainsOtherFields(t *testing.T) {
	s := newTestStore(t)

	if _, _, err := s.Apply(Update{
		DeviceID:          strPtr("cam-7"),
		IngestDestination: strPtr("udp://hub:5000"),
	}); err != nil {
		t.Fatal(err)
	}

	// Update only the bitrate; everything else must survive.
	cfg, relevant, err := s.Apply(Update{VideoBitrate: strPtr("6000k")})
	if err != nil {
		t.Fatal(err)
	}
	if !relevant {
		t.Error("bitrate change should be encoder-relevant")
	}
	if cfg.DeviceID != "cam-7" {
		t.Errorf("device_id lost: %q", cfg.DeviceID)
	}
	if cfg.IngestDestination != "udp://hub:5000" {
		t.Errorf("destination lost: %q", cfg.IngestDestination)
	}
	if cfg.VideoBitrate != "6000k" {
		t.Errorf("bitrate not applied: %q", cfg.VideoBitrate)
	}
}

func TestApplyPersistsToDisk(t *testing.T) {
	s := newTestStore(t)

	if _, _, err := s.Apply(Update{DeviceName: strPtr("Stage Left")}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	var onDisk Config
	if err := toml.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk.DeviceName != "Stage Left" {
		t.Errorf("persisted name = %q, want Stage Left", onDisk.DeviceName)
	}
}

func TestApplyIrrelevantChangeNotFlagged(t *testing.T) {
	s := newTestStore(t)

	_, relevant, err := s.Apply(Update{
		DeviceName: strPtr("renamed"),
		Location:   strPtr("balcony"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if relevant {
		t.Error("name and location changes must not be encoder-relevant")
	}
}

func TestDeviceIDIsMonotonic(t *testing.T) {
	s := newTestStore(t)

	if _, _, err := s.Apply(Update{DeviceID: strPtr("assigned-1")}); err != nil {
		t.Fatal(err)
	}

	// An empty id in a later update must not clear the assignment.
	cfg, _, err := s.Apply(Update{DeviceID: strPtr(""), DeviceName: strPtr("x")})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DeviceID != "assigned-1" {
		t.Errorf("device_id cleared by empty update: %q", cfg.DeviceID)
	}
}

func TestApplyRollsBackOnPersistFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "device.toml")
	s := NewStore(path, nil, testLogger())
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot()

	// Make the path unwritable by replacing the file with a directory.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}

	_, _, err := s.Apply(Update{DeviceID: strPtr("should-not-stick")})
	if err == nil {
		t.Fatal("expected persist error")
	}
	if got := s.Snapshot(); got != before {
		t.Errorf("in-memory config changed despite persist failure: %+v", got)
	}
}

func TestApplyAudioMuted(t *testing.T) {
	s := newTestStore(t)

	cfg, relevant, err := s.Apply(Update{AudioMuted: boolPtr(true)})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.AudioMuted {
		t.Error("audio_muted not applied")
	}
	// Mute governs local playback only; it must never restart the encoder.
	if relevant {
		t.Error("audio_muted change flagged as encoder-relevant")
	}
}

func TestReloadPicksUpExternalEdit(t *testing.T) {
	s := newTestStore(t)

	content := "device_id = \"edited\"\ningest_destination = \"udp://hub:5000\"\n"
	if err := os.WriteFile(s.Path(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, relevant, err := s.Reload()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DeviceID != "edited" {
		t.Errorf("reload missed device_id: %q", cfg.DeviceID)
	}
	if !relevant {
		t.Error("new destination should be encoder-relevant")
	}
	// Backfilled defaults for fields the edit omitted.
	if cfg.VideoBitrate != "4000k" {
		t.Errorf("expected backfilled bitrate, got %q", cfg.VideoBitrate)
	}
}

func TestWireIDSentinel(t *testing.T) {
	cfg := Defaults()
	if got := cfg.WireID(); got != SentinelID {
		t.Errorf("unadopted WireID = %q, want %q", got, SentinelID)
	}
	cfg.DeviceID = "real-id"
	if got := cfg.WireID(); got != "real-id" {
		t.Errorf("adopted WireID = %q, want real-id", got)
	}
}
