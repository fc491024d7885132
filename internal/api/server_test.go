package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/touchstream/spoke/internal/device"
	"github.com/touchstream/spoke/internal/supervisor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSupervisor struct {
	active bool
	status supervisor.Status
}

func (f *fakeSupervisor) Active() bool              { return f.active }
func (f *fakeSupervisor) Status() supervisor.Status { return f.status }

type fakePower struct {
	reboots   chan struct{}
	shutdowns chan struct{}
}

func newFakePower() *fakePower {
	return &fakePower{
		reboots:   make(chan struct{}, 1),
		shutdowns: make(chan struct{}, 1),
	}
}

func (f *fakePower) Reboot(context.Context) error {
	f.reboots <- struct{}{}
	return nil
}

func (f *fakePower) Shutdown(context.Context) error {
	f.shutdowns <- struct{}{}
	return nil
}

func newTestServer(t *testing.T, opts *Options) (*Server, *device.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.toml")
	store := device.NewStore(path, nil, testLogger())
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}

	if opts == nil {
		opts = &Options{}
	}
	opts.Store = store
	if opts.ModelFunc == nil {
		opts.ModelFunc = func() string { return "test-model" }
	}
	if opts.IPFunc == nil {
		opts.IPFunc = func() string { return "10.0.0.5" }
	}
	return NewServer(opts), store
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("response is not valid JSON: %v\n%s", err, rec.Body.String())
	}
	return got
}

func TestInfoUnadopted(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/info", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	got := decodeBody(t, rec)
	if got["device_id"] != device.SentinelID {
		t.Errorf("device_id = %v, want sentinel", got["device_id"])
	}
	if got["ip"] != "10.0.0.5" {
		t.Errorf("ip = %v, want 10.0.0.5", got["ip"])
	}
	if got["model"] != "test-model" {
		t.Errorf("model = %v, want test-model", got["model"])
	}
	if got["status"] != "ready" {
		t.Errorf("status = %v, want ready", got["status"])
	}
	if got["device_name"] == "" {
		t.Error("device_name missing")
	}
}

func TestAdoptPersistsConfiguration(t *testing.T) {
	s, store := newTestServer(t, nil)

	body := `{"device_id":"cam-9","device_name":"Lobby","ingest_destination":"udp://hub:5000"}`
	rec := doRequest(t, s, http.MethodPost, "/adopt", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}

	got := decodeBody(t, rec)
	if got["status"] != "ok" {
		t.Errorf("status = %v, want ok", got["status"])
	}
	if got["saved"] != true {
		t.Errorf("saved = %v, want true", got["saved"])
	}

	cfg := store.Snapshot()
	if cfg.DeviceID != "cam-9" {
		t.Errorf("device_id = %q, want cam-9", cfg.DeviceID)
	}
	if cfg.IngestDestination != "udp://hub:5000" {
		t.Errorf("destination = %q", cfg.IngestDestination)
	}
}

func TestAdoptPartialUpdateRetainsFields(t *testing.T) {
	s, store := newTestServer(t, nil)

	doRequest(t, s, http.MethodPost, "/adopt",
		`{"device_id":"cam-9","ingest_destination":"udp://hub:5000"}`)
	rec := doRequest(t, s, http.MethodPost, "/adopt", `{"video_bitrate":"6000k"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	cfg := store.Snapshot()
	if cfg.DeviceID != "cam-9" {
		t.Errorf("device_id lost on partial update: %q", cfg.DeviceID)
	}
	if cfg.VideoBitrate != "6000k" {
		t.Errorf("bitrate = %q, want 6000k", cfg.VideoBitrate)
	}
}

func TestAdoptMalformedBodyReturns200Error(t *testing.T) {
	s, store := newTestServer(t, nil)
	before := store.Snapshot()

	rec := doRequest(t, s, http.MethodPost, "/adopt", `{"device_id": not json}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("malformed body must still return 200, got %d", rec.Code)
	}

	got := decodeBody(t, rec)
	if got["status"] != "error" {
		t.Errorf("status = %v, want error", got["status"])
	}
	if got["error"] == nil || got["error"] == "" {
		t.Error("error detail missing")
	}
	if _, ok := got["saved"]; ok {
		t.Error("saved must be omitted on error")
	}
	if store.Snapshot() != before {
		t.Error("malformed body must not change the configuration")
	}
}

func TestStateReflectsSupervisor(t *testing.T) {
	pid := 4242
	s, _ := newTestServer(t, &Options{
		Supervisor: &fakeSupervisor{
			active: true,
			status: supervisor.Status{State: supervisor.StateRunning, PID: pid},
		},
	})

	doRequest(t, s, http.MethodPost, "/adopt", `{"device_id":"cam-9"}`)

	rec := doRequest(t, s, http.MethodGet, "/state", "")
	got := decodeBody(t, rec)
	if got["state"] != "streaming" {
		t.Errorf("state = %v, want streaming", got["state"])
	}
	if got["supervisor"] != "running" {
		t.Errorf("supervisor = %v, want running", got["supervisor"])
	}
	if got["pid"] != float64(pid) {
		t.Errorf("pid = %v, want %d", got["pid"], pid)
	}
}

func TestStateUnadopted(t *testing.T) {
	s, _ := newTestServer(t, &Options{Supervisor: &fakeSupervisor{}})

	rec := doRequest(t, s, http.MethodGet, "/state", "")
	got := decodeBody(t, rec)
	if got["state"] != "unadopted" {
		t.Errorf("state = %v, want unadopted", got["state"])
	}
}

func TestRebootAcksBeforeExecuting(t *testing.T) {
	power := newFakePower()
	s, _ := newTestServer(t, &Options{Power: power})

	rec := doRequest(t, s, http.MethodGet, "/reboot", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decodeBody(t, rec)
	if got["status"] != "reboot_initiated" {
		t.Errorf("status = %v, want reboot_initiated", got["status"])
	}

	// The actual action runs after the ack delay.
	select {
	case <-power.reboots:
	case <-time.After(2 * time.Second):
		t.Fatal("reboot never invoked")
	}
}

func TestShutdownAck(t *testing.T) {
	power := newFakePower()
	s, _ := newTestServer(t, &Options{Power: power})

	rec := doRequest(t, s, http.MethodGet, "/shutdown", "")
	got := decodeBody(t, rec)
	if got["status"] != "shutdown_initiated" {
		t.Errorf("status = %v, want shutdown_initiated", got["status"])
	}

	select {
	case <-power.shutdowns:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown never invoked")
	}
}

func TestUpdateUnavailableWithoutService(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/update", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeBody(t, rec); got["status"] != "ok" {
		t.Errorf("status = %v, want ok", got["status"])
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodOptions, "/adopt", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q, want *", got)
	}
}

func TestVersionEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/version", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decodeBody(t, rec)
	if got["version"] == nil {
		t.Error("version missing")
	}
}
