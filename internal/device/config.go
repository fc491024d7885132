package device

import "os"

// SentinelID is the wire value announced while the device has no assigned
// identity. The persisted record stores an empty device_id until adoption.
const SentinelID = "unadopted"

// Config is the single persisted device configuration record. It is read
// by every component and written only through Store.Apply (and by the
// bootstrap loader at process start).
type Config struct {
	DeviceID          string `toml:"device_id" json:"device_id"`
	DeviceName        string `toml:"device_name" json:"device_name"`
	Location          string `toml:"location" json:"location"`
	IngestDestination string `toml:"ingest_destination" json:"ingest_destination"`
	VideoBitrate      string `toml:"video_bitrate" json:"video_bitrate"`
	AudioBitrate      string `toml:"audio_bitrate" json:"audio_bitrate"`
	Resolution        string `toml:"resolution" json:"resolution"`
	Framerate         string `toml:"framerate" json:"framerate"`
	AudioMuted        bool   `toml:"audio_muted" json:"audio_muted"`
}

// Defaults returns the configuration materialized on first run.
// device_id stays empty (unadopted) and ingest_destination stays empty
// (do not stream); everything else gets a usable default.
func Defaults() Config {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "spoke"
	}
	return Config{
		DeviceName:   hostname,
		VideoBitrate: "4000k",
		AudioBitrate: "128k",
		Resolution:   "1920x1080",
		Framerate:    "30",
	}
}

// Adopted reports whether the device has been assigned an identity.
func (c Config) Adopted() bool {
	return c.DeviceID != ""
}

// WireID returns the device_id for wire payloads, substituting the
// unadopted sentinel while no identity is assigned.
func (c Config) WireID() string {
	if c.DeviceID == "" {
		return SentinelID
	}
	return c.DeviceID
}

// encoderKey collects the fields that parameterize the encoding process.
// Two configs with equal keys never warrant an encoder restart.
// audio_muted is absent: it governs local playback, not the encode.
type encoderKey struct {
	dest, vbit, abit, res, fps string
}

func (c Config) encoderKey() encoderKey {
	return encoderKey{
		dest: c.IngestDestination,
		vbit: c.VideoBitrate,
		abit: c.AudioBitrate,
		res:  c.Resolution,
		fps:  c.Framerate,
	}
}

// Update is a partial configuration change. Nil fields retain the prior
// value; this mirrors the adopt request body, where omitting a field
// means "leave it alone".
type Update struct {
	DeviceID          *string `json:"device_id,omitempty"`
	DeviceName        *string `json:"device_name,omitempty"`
	Location          *string `json:"location,omitempty"`
	IngestDestination *string `json:"ingest_destination,omitempty"`
	VideoBitrate      *string `json:"video_bitrate,omitempty"`
	AudioBitrate      *string `json:"audio_bitrate,omitempty"`
	Resolution        *string `json:"resolution,omitempty"`
	Framerate         *string `json:"framerate,omitempty"`
	AudioMuted        *bool   `json:"audio_muted,omitempty"`
}

// mergeInto applies the non-nil fields of the update to cfg.
// device_id is monotonic: an empty value never clears an assigned id.
func (u Update) mergeInto(cfg *Config) {
	if u.DeviceID != nil && *u.DeviceID != "" {
		cfg.DeviceID = *u.DeviceID
	}
	if u.DeviceName != nil {
		cfg.DeviceName = *u.DeviceName
	}
	if u.Location != nil {
		cfg.Location = *u.Location
	}
	if u.IngestDestination != nil {
		cfg.IngestDestination = *u.IngestDestination
	}
	if u.VideoBitrate != nil {
		cfg.VideoBitrate = *u.VideoBitrate
	}
	if u.AudioBitrate != nil {
		cfg.AudioBitrate = *u.AudioBitrate
	}
	if u.Resolution != nil {
		cfg.Resolution = *u.Resolution
	}
	if u.Framerate != nil {
		cfg.Framerate = *u.Framerate
	}
	if u.AudioMuted != nil {
		cfg.AudioMuted = *u.AudioMuted
	}
}
