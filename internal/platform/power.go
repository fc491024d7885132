// Package platform wraps the host facilities the control server needs:
// power operations, network identity, and hardware model detection.
package platform

import (
	"context"
	"log/slog"
	"os/exec"

	"github.com/coreos/go-systemd/v22/login1"
	"github.com/touchstream/spoke/internal/logging"
)

// PowerManager triggers host power operations. Operations are assumed to
// succeed once invoked; there is no rollback path.
type PowerManager struct {
	logger *slog.Logger
}

// NewPowerManager creates a power manager.
func NewPowerManager() *PowerManager {
	return &PowerManager{logger: logging.GetLogger("platform")}
}

// Reboot reboots the host, preferring logind over shelling out.
func (p *PowerManager) Reboot(ctx context.Context) error {
	if conn, err := login1.New(); err == nil {
		defer conn.Close()
		conn.Reboot(false)
		return nil
	}
	p.logger.Warn("logind unavailable, falling back to systemctl")
	return p.run(ctx, "reboot")
}

// Shutdown powers off the host, preferring logind over shelling out.
func (p *PowerManager) Shutdown(ctx context.Context) error {
	if conn, err := login1.New(); err == nil {
		defer conn.Close()
		conn.PowerOff(false)
		return nil
	}
	p.logger.Warn("logind unavailable, falling back to systemctl")
	return p.run(ctx, "poweroff")
}

func (p *PowerManager) run(ctx context.Context, verb string) error {
	p.logger.Info("Invoking systemctl", "verb", verb)
	return exec.CommandContext(ctx, "systemctl", verb).Run()
}
