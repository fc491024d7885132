package events

// Event type constants for kelindar/event.
const (
	TypeConfigUpdated uint32 = iota + 1
	TypeAdopted
	TypeStreamStateChanged
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ConfigUpdatedEvent is published after every successful configuration
// update, once the new record has been persisted.
type ConfigUpdatedEvent struct {
	DeviceID string `json:"device_id" doc:"Device identifier after the update"`
	Relevant bool   `json:"relevant" doc:"Whether an encoder-relevant field changed"`
	Timestamp string `json:"timestamp" example:"2026-08-25T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConfigUpdatedEvent.
func (e ConfigUpdatedEvent) Type() uint32 { return TypeConfigUpdated }

// AdoptedEvent is published when the device transitions from the unadopted
// sentinel to an assigned identity.
type AdoptedEvent struct {
	DeviceID   string `json:"device_id" example:"abc-123" doc:"Assigned device identifier"`
	DeviceName string `json:"device_name" example:"Cam1" doc:"Assigned device name"`
	Timestamp  string `json:"timestamp" example:"2026-08-25T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for AdoptedEvent.
func (e AdoptedEvent) Type() uint32 { return TypeAdopted }

// StreamStateChangedEvent is published on every supervisor state
// transition. ExitCode is only meaningful when the encoder exited on its
// own (State "idle" with Exited true).
type StreamStateChangedEvent struct {
	State     string `json:"state" example:"running" doc:"Supervisor state: idle, starting, running"`
	PID       int    `json:"pid,omitempty" doc:"Encoder process ID while running"`
	Exited    bool   `json:"exited,omitempty" doc:"Whether the encoder exited on its own"`
	ExitCode  int    `json:"exit_code,omitempty" doc:"Encoder exit code when Exited"`
	Timestamp string `json:"timestamp" example:"2026-08-25T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStateChangedEvent.
func (e StreamStateChangedEvent) Type() uint32 { return TypeStreamStateChanged }
