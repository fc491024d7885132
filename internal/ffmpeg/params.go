package ffmpeg

import "github.com/touchstream/spoke/internal/device"

// Params represents all parameters needed to generate an FFmpeg command.
// The argv template is fixed: the supervisor parameterizes it and never
// negotiates with the encoder beyond spawn/observe/terminate.
type Params struct {
	// Input configuration
	DevicePath  string // /dev/video0
	InputFormat string // uyvy422
	Resolution  string // 1920x1080
	FPS         string // 30

	// Audio input
	AudioDevice string // hw:2,0

	// Encoder configuration
	Encoder      string // libx264
	Preset       string // veryfast
	Tune         string // zerolatency
	VideoBitrate string // 4000k
	AudioCodec   string // aac
	AudioBitrate string // 128k

	// Output
	Format    string // mpegts
	OutputURL string // udp://host:port
}

// FromConfig builds encoder params from the device configuration and the
// capture hardware paths. audio_muted only silences local playback, so it
// never shows up here: the outbound encode always carries the audio feed.
func FromConfig(cfg device.Config, videoDevice, audioDevice string) *Params {
	return &Params{
		DevicePath:   videoDevice,
		InputFormat:  "uyvy422",
		Resolution:   cfg.Resolution,
		FPS:          cfg.Framerate,
		AudioDevice:  audioDevice,
		Encoder:      "libx264",
		Preset:       "veryfast",
		Tune:         "zerolatency",
		VideoBitrate: cfg.VideoBitrate,
		AudioCodec:   "aac",
		AudioBitrate: cfg.AudioBitrate,
		Format:       "mpegts",
		OutputURL:    cfg.IngestDestination,
	}
}
