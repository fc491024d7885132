package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/touchstream/spoke/internal/api/models"
	"github.com/touchstream/spoke/internal/device"
	"github.com/touchstream/spoke/internal/metrics"
	"github.com/touchstream/spoke/internal/platform"
)

// AdoptInput carries the raw adopt body. The discovery protocol requires
// HTTP 200 with a {"status":"error"} envelope on malformed JSON, so the
// body bypasses schema validation and is decoded by hand.
type AdoptInput struct {
	RawBody []byte `contentType:"application/json"`
}

// registerDiscoveryRoutes sets up the adoption protocol endpoints.
func (s *Server) registerDiscoveryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-info",
		Method:      http.MethodGet,
		Path:        "/info",
		Summary:     "Device info",
		Description: "Get device identity for adoption",
		Tags:        []string{"discovery"},
	}, s.handleInfo)

	huma.Register(s.api, huma.Operation{
		OperationID:      "adopt-device",
		Method:           http.MethodPost,
		Path:             "/adopt",
		Summary:          "Adopt device",
		Description:      "Assign identity and streaming configuration",
		Tags:             []string{"discovery"},
		SkipValidateBody: true,
	}, s.handleAdopt)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-state",
		Method:      http.MethodGet,
		Path:        "/state",
		Summary:     "Device state",
		Description: "Get derived device and encoder state",
		Tags:        []string{"discovery"},
	}, s.handleState)
}

func (s *Server) handleInfo(_ context.Context, _ *struct{}) (*models.InfoResponse, error) {
	cfg := s.options.Store.Snapshot()

	ip := platform.OutboundIP()
	if s.options.IPFunc != nil {
		ip = s.options.IPFunc()
	}
	model := platform.Model()
	if s.options.ModelFunc != nil {
		model = s.options.ModelFunc()
	}

	return &models.InfoResponse{
		Body: models.InfoData{
			DeviceID:   cfg.WireID(),
			DeviceName: cfg.DeviceName,
			IP:         ip,
			Model:      model,
			Status:     "ready",
		},
	}, nil
}

func (s *Server) handleAdopt(_ context.Context, input *AdoptInput) (*models.AdoptResponse, error) {
	var update device.Update
	if err := json.Unmarshal(input.RawBody, &update); err != nil {
		s.logger.Warn("Rejected malformed adopt body", "error", err)
		metrics.AdoptRequests.WithLabelValues("malformed").Inc()
		return &models.AdoptResponse{
			Body: models.AdoptResult{Status: "error", Error: "invalid JSON: " + err.Error()},
		}, nil
	}

	cfg, _, err := s.options.Store.Apply(update)
	if err != nil {
		s.logger.Error("Failed to persist adopt request", "error", err)
		metrics.AdoptRequests.WithLabelValues("persist_error").Inc()
		return &models.AdoptResponse{
			Body: models.AdoptResult{Status: "error", Error: err.Error()},
		}, nil
	}

	s.logger.Info("Adopt request applied",
		"device_id", cfg.WireID(),
		"device_name", cfg.DeviceName,
		"destination", cfg.IngestDestination)
	metrics.AdoptRequests.WithLabelValues("ok").Inc()

	return &models.AdoptResponse{
		Body: models.AdoptResult{Status: "ok", Saved: true},
	}, nil
}

func (s *Server) handleState(_ context.Context, _ *struct{}) (*models.StateResponse, error) {
	cfg := s.options.Store.Snapshot()

	active := false
	data := models.StateData{Supervisor: "idle"}
	if s.options.Supervisor != nil {
		active = s.options.Supervisor.Active()
		status := s.options.Supervisor.Status()
		data.Supervisor = string(status.State)
		data.PID = status.PID
		data.ExitCode = status.LastExitCode
	}
	data.State = string(device.DeriveState(cfg, active))

	return &models.StateResponse{Body: data}, nil
}
