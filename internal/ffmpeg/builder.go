package ffmpeg

import "strings"

// Base returns the ffmpeg invocation prefix. The level+info loglevel
// prefixes each output line with its level for ParseLogLevel.
func Base() string {
	return "ffmpeg -hide_banner -loglevel level+info"
}

// BuildCommand builds an FFmpeg command from structured parameters.
func BuildCommand(p *Params) string {
	var cmd strings.Builder

	cmd.WriteString(Base())

	// Video input
	cmd.WriteString(" -f v4l2")
	if p.InputFormat != "" {
		cmd.WriteString(" -input_format " + p.InputFormat)
	}
	if p.FPS != "" {
		cmd.WriteString(" -framerate " + p.FPS)
	}
	if p.Resolution != "" {
		cmd.WriteString(" -video_size " + p.Resolution)
	}
	cmd.WriteString(" -i " + p.DevicePath)

	// Audio input
	if p.AudioDevice != "" {
		cmd.WriteString(" -thread_queue_size 1024")
		cmd.WriteString(" -f alsa -i " + p.AudioDevice)
	}

	// Video encoder
	cmd.WriteString(" -c:v " + p.Encoder)
	if p.Preset != "" {
		cmd.WriteString(" -preset " + p.Preset)
	}
	if p.Tune != "" {
		cmd.WriteString(" -tune " + p.Tune)
	}
	if p.VideoBitrate != "" {
		cmd.WriteString(" -b:v " + p.VideoBitrate)
	}

	// Audio encoder
	if p.AudioDevice != "" {
		cmd.WriteString(" -c:a " + p.AudioCodec)
		if p.AudioBitrate != "" {
			cmd.WriteString(" -b:a " + p.AudioBitrate)
		}
	}

	// Output
	cmd.WriteString(" -f " + p.Format)
	cmd.WriteString(" " + p.OutputURL)

	return cmd.String()
}
