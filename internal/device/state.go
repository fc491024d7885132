package device

// State is the logical device state shown to operators and substituted
// into discovery payloads. It is derived, never stored.
type State string

// Device states.
const (
	StateUnadopted State = "unadopted" // no identity assigned yet
	StateStandby   State = "standby"   // adopted, encoder idle
	StateStreaming State = "streaming" // adopted, encoder starting or running
)

// DeriveState computes the device state from the configuration and the
// supervisor's encoder activity.
func DeriveState(cfg Config, encoderActive bool) State {
	if !cfg.Adopted() {
		return StateUnadopted
	}
	if encoderActive {
		return StateStreaming
	}
	return StateStandby
}
