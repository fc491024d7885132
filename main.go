package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/touchstream/spoke/cmd"
	"github.com/touchstream/spoke/internal/api"
	"github.com/touchstream/spoke/internal/beacon"
	"github.com/touchstream/spoke/internal/config"
	"github.com/touchstream/spoke/internal/device"
	"github.com/touchstream/spoke/internal/events"
	"github.com/touchstream/spoke/internal/logging"
	"github.com/touchstream/spoke/internal/metrics"
	"github.com/touchstream/spoke/internal/platform"
	"github.com/touchstream/spoke/internal/supervisor"
	"github.com/touchstream/spoke/internal/updater"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"spoke.toml"`

	// Server settings
	Port string `help:"Control server listen address" short:"p" default:":6077" toml:"server.port" env:"SERVER_PORT"`

	// Device settings
	DeviceConfigFile string `help:"Device configuration file" default:"device.toml" toml:"device.config_file" env:"DEVICE_CONFIG_FILE"`
	VideoDevice      string `help:"V4L2 capture device" default:"/dev/video0" toml:"device.video_device" env:"VIDEO_DEVICE"`
	AudioDevice      string `help:"ALSA capture device" default:"hw:2,0" toml:"device.audio_device" env:"AUDIO_DEVICE"`

	// Beacon settings
	BeaconPort     int    `help:"Discovery broadcast port" default:"9999" toml:"beacon.port" env:"BEACON_PORT"`
	BeaconInterval string `help:"Discovery broadcast interval" default:"5s" toml:"beacon.interval" env:"BEACON_INTERVAL"`

	// Update settings
	UpdateRepo       string `help:"GitHub repo slug for self-updates" default:"touchstream/spoke" toml:"update.repo" env:"UPDATE_REPO"`
	UpdatePrerelease bool   `help:"Allow prerelease updates" default:"false" toml:"update.prerelease" env:"UPDATE_PRERELEASE"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingBeacon     string `help:"Beacon logging level" default:"info" toml:"logging.beacon" env:"LOGGING_BEACON"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingDevice     string `help:"Device store logging level" default:"info" toml:"logging.device" env:"LOGGING_DEVICE"`
	LoggingFFmpeg     string `help:"Encoder output logging level" default:"info" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"api":        opts.LoggingAPI,
				"beacon":     opts.LoggingBeacon,
				"supervisor": opts.LoggingSupervisor,
				"device":     opts.LoggingDevice,
				"ffmpeg":     opts.LoggingFFmpeg,
			},
		})

		logger := logging.GetLogger("main")

		beaconInterval, err := time.ParseDuration(opts.BeaconInterval)
		if err != nil {
			beaconInterval = beacon.DefaultInterval
		}

		// Event bus connects the store to the supervisor.
		eventBus := events.New()

		store := device.NewStore(opts.DeviceConfigFile, eventBus, logging.GetLogger("device"))
		if loadErr := store.Load(); loadErr != nil {
			logger.Error("Failed to load device configuration", "error", loadErr)
			os.Exit(1)
		}

		sup := supervisor.New(&supervisor.Options{
			Store:       store,
			Bus:         eventBus,
			VideoDevice: opts.VideoDevice,
			AudioDevice: opts.AudioDevice,
		})

		bcn := beacon.New(&beacon.Options{
			Store:    store,
			Interval: beaconInterval,
			Port:     opts.BeaconPort,
		})

		updateService, err := updater.NewService(&updater.Options{
			Repository: opts.UpdateRepo,
			Prerelease: opts.UpdatePrerelease,
		})
		if err != nil {
			logger.Warn("Update service unavailable", "error", err)
		}

		server := api.NewServer(&api.Options{
			Store:             store,
			Supervisor:        sup,
			Power:             platform.NewPowerManager(),
			Updater:           updateService,
			PrometheusHandler: metrics.Handler(),
		})

		// Watch the device config for out-of-band edits; the reload
		// publishes the same events an adopt does.
		watcher := config.NewWatcher(
			opts.DeviceConfigFile,
			func(string) (device.Config, error) {
				cfg, _, reloadErr := store.Reload()
				return cfg, reloadErr
			},
			logging.GetLogger("device"),
		)
		watcher.OnReload(func(cfg device.Config) {
			logger.Info("Device configuration reloaded from disk", "device_id", cfg.WireID())
		})

		hooks.OnStart(func() {
			sup.Start()

			if startErr := bcn.Start(); startErr != nil {
				logger.Warn("Discovery beacon unavailable", "error", startErr)
			}

			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Config watcher unavailable, hot-reload disabled", "error", watchErr)
			}

			logger.Info("Starting control server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start control server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")

			// Control server first so no new writes arrive while the
			// encoder and beacon wind down.
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping control server", "error", stopErr)
			}

			_ = watcher.Stop()
			sup.Stop()
			bcn.Stop()
		})
	})

	cli.Root().AddCommand(cmd.CreateStreamCmd())

	cli.Run()
}
