package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/touchstream/spoke/internal/logging"
	"github.com/touchstream/spoke/internal/version"
)

type service struct {
	repository selfupdate.Repository
	updater    *selfupdate.Updater

	mu          sync.RWMutex
	state       State
	target      string
	lastChecked *time.Time
	lastError   error

	enabled        bool
	disabledReason string

	logger *slog.Logger
}

// NewService creates a new updater service. The service comes up disabled
// (not an error) when the running binary's directory is not writable.
func NewService(opts *Options) (Service, error) {
	logger := logging.GetLogger("updater")

	canWrite, reason := checkWritePermission()
	if !canWrite {
		logger.Warn("Update service disabled", "reason", reason)
		return &service{
			enabled:        false,
			disabledReason: reason,
			state:          StateIdle,
			logger:         logger,
		}, nil
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub source: %w", err)
	}

	u, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}

	return &service{
		repository: selfupdate.ParseSlug(opts.Repository),
		updater:    u,
		state:      StateIdle,
		enabled:    true,
		logger:     logger,
	}, nil
}

func checkWritePermission() (bool, string) {
	exe, err := os.Executable()
	if err != nil {
		return false, fmt.Sprintf("failed to get executable path: %v", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return false, fmt.Sprintf("failed to resolve symlinks: %v", err)
	}

	dir := filepath.Dir(exe)
	tmp := filepath.Join(dir, ".spoke.update.test")
	f, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Sprintf("no write permission to %s: %v", dir, err)
	}
	f.Close()
	os.Remove(tmp)
	return true, ""
}

// IsEnabled returns whether the update service is operational.
func (s *service) IsEnabled() bool {
	return s.enabled
}

// DisabledReason returns why the update service is disabled.
func (s *service) DisabledReason() string {
	return s.disabledReason
}

// GetStatus returns the current update state.
func (s *service) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:          s.state,
		CurrentVersion: version.String(),
		TargetVersion:  s.target,
		LastChecked:    s.lastChecked,
	}
	if s.lastError != nil {
		st.Error = s.lastError.Error()
	}
	return st
}

// CheckForUpdate queries the release source for the latest release and
// compares it against the running version without downloading.
func (s *service) CheckForUpdate(ctx context.Context) (*UpdateInfo, error) {
	if !s.enabled {
		return nil, fmt.Errorf("update service disabled: %s", s.disabledReason)
	}

	s.setState(StateChecking, nil)

	release, found, err := s.updater.DetectLatest(ctx, s.repository)
	now := time.Now()
	s.mu.Lock()
	s.lastChecked = &now
	s.mu.Unlock()

	if err != nil {
		s.setState(StateError, err)
		return nil, fmt.Errorf("failed to detect latest release: %w", err)
	}

	info := &UpdateInfo{CurrentVersion: version.String()}
	if found {
		info.LatestVersion = release.Version()
		info.ReleaseURL = release.URL
		info.PublishedAt = release.PublishedAt
		info.UpdateAvailable = isNewer(release)
	}

	s.setState(StateIdle, nil)
	return info, nil
}

// ApplyAndRestart downloads the latest release over the running binary
// and re-execs the process with the original arguments. The caller has
// already acknowledged the request; this never runs on the request path.
func (s *service) ApplyAndRestart(ctx context.Context) error {
	if !s.enabled {
		return fmt.Errorf("update service disabled: %s", s.disabledReason)
	}

	release, found, err := s.updater.DetectLatest(ctx, s.repository)
	if err != nil {
		s.setState(StateError, err)
		return fmt.Errorf("failed to detect latest release: %w", err)
	}
	if !found || !isNewer(release) {
		s.logger.Info("No newer release available", "current", version.String())
		s.setState(StateIdle, nil)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		s.setState(StateError, err)
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	s.mu.Lock()
	s.target = release.Version()
	s.mu.Unlock()

	s.setState(StateDownloading, nil)
	s.logger.Info("Applying update", "from", version.String(), "to", release.Version())

	s.setState(StateApplying, nil)
	if err := s.updater.UpdateTo(ctx, release, exe); err != nil {
		s.setState(StateError, err)
		return fmt.Errorf("failed to apply update: %w", err)
	}

	s.setState(StateRestarting, nil)
	s.logger.Info("Update applied, restarting", "version", release.Version())
	return s.restart(exe)
}

// restart replaces the current process image with the updated binary.
func (s *service) restart(exe string) error {
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		s.setState(StateError, err)
		return fmt.Errorf("failed to re-exec: %w", err)
	}
	return nil
}

// isNewer treats dev builds as always updatable so a device flashed with
// a dev image can converge on the first release.
func isNewer(release *selfupdate.Release) bool {
	current := version.String()
	return current == "dev" || release.GreaterThan(current)
}

func (s *service) setState(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.lastError = err
}
