package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// LogParser parses a process output line and returns the log level and
// message. Used to extract structured log info from encoder output.
type LogParser func(line string) (level, msg string)

// KilledExitCode is reported when the process had to be force-killed
// (128 + SIGKILL).
const KilledExitCode = 137

// Option configures a Handle before the process is started.
type Option func(*Handle)

// WithLogParser routes process output through the given logger, using the
// parser to extract log levels from process-specific output formats.
func WithLogParser(logger *slog.Logger, parser LogParser) Option {
	return func(h *Handle) {
		h.processLogger = logger
		h.logParser = parser
	}
}

// Handle owns exactly one running subprocess: its exec.Cmd, start time,
// and exit status once observed. It is created by Start and never reused.
type Handle struct {
	command       string
	cmd           *exec.Cmd
	logger        *slog.Logger
	processLogger *slog.Logger
	logParser     LogParser
	startedAt     time.Time

	done     chan struct{}
	mu       sync.Mutex
	exitCode int
	exited   bool
	signaled bool
}

// Start parses the command, spawns the subprocess in its own process
// group, and begins streaming its output. The returned handle's Done
// channel closes when the process exits.
func Start(command string, logger *slog.Logger, opts ...Option) (*Handle, error) {
	h := &Handle{
		command: command,
		logger:  logger,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	args, err := parseCommand(command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	h.cmd = exec.Command(args[0], args[1:]...)
	h.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := h.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := h.cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := h.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}
	h.startedAt = time.Now()
	h.logger.Info("Process started", "pid", h.cmd.Process.Pid, "command", command)

	var outputWG sync.WaitGroup
	outputWG.Add(2)
	go func() {
		defer outputWG.Done()
		h.streamOutput(stdout, "stdout")
	}()
	go func() {
		defer outputWG.Done()
		h.streamOutput(stderr, "stderr")
	}()

	go func() {
		// Drain output before Wait so the pipes are fully read.
		outputWG.Wait()
		err := h.cmd.Wait()
		code := exitCodeFromError(err)

		h.mu.Lock()
		h.exitCode = code
		h.exited = true
		signaled := h.signaled
		h.mu.Unlock()

		if !signaled && err != nil && code == 1 {
			h.logger.Error("Process exited with error", "error", err)
		}
		close(h.done)
	}()

	return h, nil
}

// Command returns the command string the process was started with.
func (h *Handle) Command() string {
	return h.command
}

// Pid returns the process ID.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// StartedAt returns when the process was spawned.
func (h *Handle) StartedAt() time.Time {
	return h.startedAt
}

// Done returns a channel closed when the process has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Alive reports whether the process is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code and whether the process has exited.
func (h *Handle) ExitCode() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.exited
}

// Stop terminates the process: SIGINT, wait up to grace, then SIGKILL.
// It blocks until the process has actually exited (or the kill wait
// expires) and returns the exit code. Safe to call on an exited process.
func (h *Handle) Stop(grace time.Duration) int {
	h.mu.Lock()
	h.signaled = true
	h.mu.Unlock()

	select {
	case <-h.done:
		code, _ := h.ExitCode()
		return code
	default:
	}

	h.logger.Info("Sending SIGINT to process", "pid", h.cmd.Process.Pid)
	if err := h.cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.logger.Warn("Failed to send SIGINT", "error", err)
	}

	select {
	case <-h.done:
		code, _ := h.ExitCode()
		return code
	case <-time.After(grace):
	}

	h.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", grace)
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.logger.Error("Failed to kill process", "error", err)
	}

	// Secondary wait so a wedged process cannot hang the caller.
	select {
	case <-h.done:
	case <-time.After(grace):
		h.logger.Error("Process did not exit after kill signal")
	}
	return KilledExitCode
}

// exitCodeFromError extracts the exit code from a Wait error.
// Returns 0 for nil, the exit code for ExitError, or 1 otherwise.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// streamOutput forwards subprocess output to the configured logger,
// using the log parser to recover levels when one is set.
func (h *Handle) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := h.processLogger
	if logger == nil {
		logger = h.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		level, msg := "info", line
		if h.logParser != nil {
			level, msg = h.logParser(line)
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "debug", "trace", "verbose":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		h.logger.Warn("Error reading output", "source", source, "error", err)
	}
}

// parseCommand parses a command string into arguments.
// Handles quoted strings and basic escaping.
func parseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	command = strings.TrimSpace(command)
	runes := []rune(command)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}

	return args, nil
}
