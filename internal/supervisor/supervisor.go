package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/touchstream/spoke/internal/device"
	"github.com/touchstream/spoke/internal/events"
	"github.com/touchstream/spoke/internal/ffmpeg"
	"github.com/touchstream/spoke/internal/logging"
	"github.com/touchstream/spoke/internal/metrics"
	"github.com/touchstream/spoke/internal/process"
)

// State represents the supervisor's encoder lifecycle state.
type State string

// Supervisor states.
const (
	StateIdle     State = "idle"     // no destination configured or encoder stopped
	StateStarting State = "starting" // encoder being spawned
	StateRunning  State = "running"  // encoder active
)

// Status describes the supervisor and the encoder process it owns.
type Status struct {
	State     State
	PID       int
	StartedAt time.Time
	// LastExitCode is set once an encoder has exited on its own.
	LastExitCode *int
}

// Options configures a Supervisor.
type Options struct {
	Store        *device.Store
	Bus          *events.Bus
	VideoDevice  string
	AudioDevice  string
	PollInterval time.Duration // liveness poll period, default 2s
	GraceTimeout time.Duration // terminate-and-wait grace, default 5s

	// BuildCommand overrides the encoder command template (tests).
	BuildCommand func(device.Config) string
}

// Supervisor keeps the external encoding process in sync with the device
// configuration. It owns at most one process handle; every lifecycle
// change goes through its mutex, never through ad hoc signals from other
// components.
type Supervisor struct {
	store        *device.Store
	bus          *events.Bus
	pollInterval time.Duration
	graceTimeout time.Duration
	buildCommand func(device.Config) string
	logger       *slog.Logger
	ffmpegLogger *slog.Logger

	mu           sync.Mutex
	state        State
	handle       *process.Handle
	lastExitCode *int

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
}

// New creates a supervisor. Call Start to begin observing configuration
// updates and polling encoder liveness.
func New(opts *Options) *Supervisor {
	pollInterval := opts.PollInterval
	if pollInterval == 0 {
		pollInterval = 2 * time.Second
	}
	graceTimeout := opts.GraceTimeout
	if graceTimeout == 0 {
		graceTimeout = 5 * time.Second
	}

	buildCommand := opts.BuildCommand
	if buildCommand == nil {
		videoDevice := opts.VideoDevice
		audioDevice := opts.AudioDevice
		buildCommand = func(cfg device.Config) string {
			return ffmpeg.BuildCommand(ffmpeg.FromConfig(cfg, videoDevice, audioDevice))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		store:        opts.Store,
		bus:          opts.Bus,
		pollInterval: pollInterval,
		graceTimeout: graceTimeout,
		buildCommand: buildCommand,
		logger:       logging.GetLogger("supervisor"),
		ffmpegLogger: logging.GetLogger("ffmpeg"),
		state:        StateIdle,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start subscribes to configuration updates, evaluates the initial
// configuration, and begins the liveness poll loop.
func (s *Supervisor) Start() {
	if s.bus != nil {
		s.unsubscribe = s.bus.Subscribe(func(events.ConfigUpdatedEvent) {
			s.Reevaluate()
		})
	}

	s.Reevaluate()

	s.wg.Add(1)
	go s.pollLoop()
}

// Stop terminates the poll loop and any running encoder.
func (s *Supervisor) Stop() {
	s.cancel()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		s.stopEncoderLocked("shutdown")
	}
	s.setStateLocked(StateIdle)
}

// State returns the current supervisor state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether an encoder is starting or running. Feeds the
// derived device state and the UI layer.
func (s *Supervisor) Active() bool {
	st := s.State()
	return st == StateStarting || st == StateRunning
}

// Status returns a snapshot of the supervisor and its encoder process.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{State: s.state, LastExitCode: s.lastExitCode}
	if s.handle != nil {
		st.PID = s.handle.Pid()
		st.StartedAt = s.handle.StartedAt()
	}
	return st
}

// Reevaluate brings the encoder in line with the current configuration
// snapshot. Identical effective commands are a no-op; any change
// terminates the live process before the replacement starts, preserving
// the single-process invariant.
func (s *Supervisor) Reevaluate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.store.Snapshot()

	if cfg.IngestDestination == "" {
		if s.handle != nil {
			s.logger.Info("Ingest destination cleared, stopping encoder")
			s.stopEncoderLocked("destination cleared")
		}
		s.setStateLocked(StateIdle)
		return
	}

	command := s.buildCommand(cfg)

	if s.handle != nil && s.handle.Alive() {
		if s.handle.Command() == command {
			// Nothing relevant changed.
			return
		}
		s.logger.Info("Encoder parameters changed, restarting")
		s.stopEncoderLocked("reconfigured")
	} else if s.handle != nil {
		// Exited on its own but not yet observed by the poll; reap it
		// here so the restart below starts clean.
		s.reapExitedLocked()
	}

	s.startEncoderLocked(command)
}

// pollLoop periodically checks whether the spawned process is still
// alive. This poll is the only way self-exits are observed.
func (s *Supervisor) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkLiveness()
		}
	}
}

func (s *Supervisor) checkLiveness() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil || s.handle.Alive() {
		return
	}
	s.reapExitedLocked()
	s.setStateLocked(StateIdle)
}

// reapExitedLocked records the exit status of a process that terminated
// on its own. No restart is performed; recovery requires a new
// configuration update.
func (s *Supervisor) reapExitedLocked() {
	code, exited := s.handle.ExitCode()
	if exited {
		s.logger.Warn("Encoder exited on its own", "exit_code", code, "pid", s.handle.Pid())
		s.lastExitCode = &code
		metrics.EncoderExits.WithLabelValues(metrics.ExitReasonExited).Inc()
	}
	s.handle = nil
}

func (s *Supervisor) startEncoderLocked(command string) {
	s.setStateLocked(StateStarting)

	handle, err := process.Start(command, s.logger,
		process.WithLogParser(s.ffmpegLogger, ffmpeg.ParseLogLevel))
	if err != nil {
		s.logger.Error("Failed to start encoder", "error", err)
		s.setStateLocked(StateIdle)
		return
	}

	s.handle = handle
	s.lastExitCode = nil
	metrics.EncoderStarts.Inc()
	s.setStateLocked(StateRunning)
}

// stopEncoderLocked terminates the current process and waits for actual
// exit (bounded grace, then kill) so the capture device is released
// before anything else starts.
func (s *Supervisor) stopEncoderLocked(reason string) {
	code := s.handle.Stop(s.graceTimeout)
	s.logger.Info("Encoder stopped", "reason", reason, "exit_code", code)
	metrics.EncoderExits.WithLabelValues(metrics.ExitReasonStopped).Inc()
	s.handle = nil
}

func (s *Supervisor) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.state = next

	switch next {
	case StateIdle:
		metrics.SupervisorState.Set(0)
	case StateStarting:
		metrics.SupervisorState.Set(1)
	case StateRunning:
		metrics.SupervisorState.Set(2)
	}

	if s.bus == nil {
		return
	}
	ev := events.StreamStateChangedEvent{
		State:     string(next),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.handle != nil {
		ev.PID = s.handle.Pid()
	}
	if next == StateIdle && s.lastExitCode != nil {
		ev.Exited = true
		ev.ExitCode = *s.lastExitCode
	}
	s.bus.Publish(ev)
}
