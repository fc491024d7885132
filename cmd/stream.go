// Package cmd holds the auxiliary cobra commands mounted under the root
// CLI.
package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/touchstream/spoke/internal/config"
	"github.com/touchstream/spoke/internal/device"
	"github.com/touchstream/spoke/internal/ffmpeg"
	"github.com/touchstream/spoke/internal/logging"
	"github.com/touchstream/spoke/internal/process"
)

// CreateStreamCmd creates the stream command: run the encoder in the
// foreground from the device configuration, without the control server
// or beacon. Useful for bring-up and for running under a separate
// systemd unit.
func CreateStreamCmd() *cobra.Command {
	var configFile string
	var videoDevice string
	var audioDevice string
	var logJSON bool

	streamCmd := &cobra.Command{
		Use:   "stream",
		Short: "Run the encoder in the foreground",
		Long: `Spawns the FFmpeg encoder from the device configuration and manages its ` +
			`lifecycle: output streaming, hot-reload on config changes, graceful shutdown.`,
		Run: func(_ *cobra.Command, _ []string) {
			loggingConfig := logging.Config{Level: "info", Format: "text"}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("stream")

			store := device.NewStore(configFile, nil, logger)
			if err := store.Load(); err != nil {
				logger.Error("Failed to load device configuration", "error", err, "config", configFile)
				os.Exit(1)
			}

			cfg := store.Snapshot()
			if cfg.IngestDestination == "" {
				logger.Error("No ingest destination configured, nothing to stream")
				os.Exit(1)
			}

			buildCommand := func(c device.Config) string {
				return ffmpeg.BuildCommand(ffmpeg.FromConfig(c, videoDevice, audioDevice))
			}

			handle, err := process.Start(buildCommand(cfg), logger,
				process.WithLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel))
			if err != nil {
				logger.Error("Failed to start encoder", "error", err)
				os.Exit(1)
			}

			// Fresh configs from the watcher goroutine. The select loop
			// below owns the process handle, so the command comparison
			// happens there, never here. Buffered with latest-wins so a
			// reload never blocks the watcher.
			reloads := make(chan device.Config, 1)

			watcher := config.NewWatcher(
				configFile,
				func(string) (device.Config, error) {
					fresh, _, reloadErr := store.Reload()
					return fresh, reloadErr
				},
				logger,
			)
			watcher.OnReload(func(fresh device.Config) {
				offerLatest(reloads, fresh)
			})

			if err := watcher.Start(); err != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", err)
			} else {
				defer func() { _ = watcher.Stop() }()
			}

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

			const grace = 5 * time.Second
			for {
				select {
				case sig := <-signals:
					logger.Info("Received signal, stopping encoder", "signal", sig.String())
					os.Exit(handle.Stop(grace))

				case <-handle.Done():
					code, _ := handle.ExitCode()
					logger.Info("Encoder exited", "exit_code", code)
					os.Exit(code)

				case fresh := <-reloads:
					if fresh.IngestDestination == "" {
						logger.Warn("Ingest destination cleared, shutting down")
						handle.Stop(grace)
						os.Exit(0)
					}
					command := buildCommand(fresh)
					if command == handle.Command() {
						logger.Debug("Config reloaded, command unchanged")
						continue
					}
					handle.Stop(grace)
					logger.Info("Encoder parameters changed, restarting")
					handle, err = process.Start(command, logger,
						process.WithLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel))
					if err != nil {
						logger.Error("Failed to restart encoder", "error", err)
						os.Exit(1)
					}
				}
			}
		},
	}

	streamCmd.Flags().StringVar(&configFile, "config", "device.toml", "Path to device configuration file")
	streamCmd.Flags().StringVar(&videoDevice, "video-device", "/dev/video0", "V4L2 capture device")
	streamCmd.Flags().StringVar(&audioDevice, "audio-device", "hw:2,0", "ALSA capture device")
	streamCmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return streamCmd
}

// offerLatest publishes cfg to a capacity-1 channel, displacing any
// undelivered older value. The receiver always sees the newest config.
func offerLatest(ch chan device.Config, cfg device.Config) {
	for {
		select {
		case ch <- cfg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
