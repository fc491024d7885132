package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/touchstream/spoke/internal/api/models"
)

// ackDelay gives the HTTP response time to flush before the host goes
// down or the process re-execs.
const ackDelay = 500 * time.Millisecond

// registerPowerRoutes sets up reboot and shutdown. Both acknowledge
// immediately and execute after the response is on the wire; the hub
// treats a dropped connection as failure, not as success.
func (s *Server) registerPowerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "reboot-device",
		Method:      http.MethodGet,
		Path:        "/reboot",
		Summary:     "Reboot",
		Description: "Reboot the device",
		Tags:        []string{"power"},
	}, func(_ context.Context, _ *struct{}) (*models.ActionResponse, error) {
		s.deferPowerAction("reboot", func(ctx context.Context) error {
			return s.options.Power.Reboot(ctx)
		})
		return &models.ActionResponse{
			Body: models.ActionData{Status: "reboot_initiated"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "shutdown-device",
		Method:      http.MethodGet,
		Path:        "/shutdown",
		Summary:     "Shutdown",
		Description: "Power off the device",
		Tags:        []string{"power"},
	}, func(_ context.Context, _ *struct{}) (*models.ActionResponse, error) {
		s.deferPowerAction("shutdown", func(ctx context.Context) error {
			return s.options.Power.Shutdown(ctx)
		})
		return &models.ActionResponse{
			Body: models.ActionData{Status: "shutdown_initiated"},
		}, nil
	})
}

func (s *Server) deferPowerAction(name string, action func(context.Context) error) {
	if s.options.Power == nil {
		s.logger.Warn("Power action requested but no power manager wired", "action", name)
		return
	}
	s.logger.Info("Power action requested", "action", name)
	go func() {
		time.Sleep(ackDelay)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := action(ctx); err != nil {
			s.logger.Error("Power action failed", "action", name, "error", err)
		}
	}()
}
