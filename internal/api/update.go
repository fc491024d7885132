package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/touchstream/spoke/internal/api/models"
)

// registerUpdateRoutes sets up the self-update endpoint. The handler
// acknowledges and kicks the download off in the background; on success
// the process re-execs and never reports back over this connection.
func (s *Server) registerUpdateRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "update-device",
		Method:      http.MethodGet,
		Path:        "/update",
		Summary:     "Self-update",
		Description: "Download the latest release and restart",
		Tags:        []string{"power"},
	}, func(_ context.Context, _ *struct{}) (*models.ActionResponse, error) {
		svc := s.options.Updater
		if svc == nil {
			return nil, huma.Error503ServiceUnavailable("update service not configured")
		}
		if !svc.IsEnabled() {
			return nil, huma.Error503ServiceUnavailable("update service disabled: " + svc.DisabledReason())
		}

		s.logger.Info("Update requested")
		go func() {
			time.Sleep(ackDelay)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := svc.ApplyAndRestart(ctx); err != nil {
				s.logger.Error("Update failed", "error", err)
			}
		}()

		return &models.ActionResponse{
			Body: models.ActionData{Status: "updating"},
		}, nil
	})
}
