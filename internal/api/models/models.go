// Package models holds the wire types for the control protocol. The
// /info and /adopt shapes are a fixed contract with the discovery app;
// the remaining types are internal conveniences.
package models

// InfoData is the identity payload returned by GET /info.
type InfoData struct {
	DeviceID   string `json:"device_id" example:"abc-123" doc:"Assigned device identifier, or the unadopted sentinel"`
	DeviceName string `json:"device_name" example:"Cam1" doc:"Human-readable device label"`
	IP         string `json:"ip" example:"10.0.0.12" doc:"Device IP on the default route"`
	Model      string `json:"model" example:"raspberry-pi" doc:"Hardware model"`
	Status     string `json:"status" example:"ready" doc:"Fixed readiness token"`
}

// InfoResponse wraps InfoData for huma.
type InfoResponse struct {
	Body InfoData
}

// AdoptResult is the result envelope for POST /adopt. Saved is present
// only on success, Error only on failure; the HTTP status is 200 either
// way per the discovery protocol.
type AdoptResult struct {
	Status string `json:"status" example:"ok" doc:"\"ok\" or \"error\""`
	Saved  bool   `json:"saved,omitempty" example:"true" doc:"Whether the configuration was persisted"`
	Error  string `json:"error,omitempty" doc:"Failure detail when status is \"error\""`
}

// AdoptResponse wraps AdoptResult for huma.
type AdoptResponse struct {
	Body AdoptResult
}

// ActionData acknowledges a management action (reboot, shutdown, update).
type ActionData struct {
	Status string `json:"status" example:"reboot_initiated" doc:"Action acknowledgement token"`
}

// ActionResponse wraps ActionData for huma.
type ActionResponse struct {
	Body ActionData
}

// StateData describes the derived device state for the local UI layer.
type StateData struct {
	State      string `json:"state" example:"streaming" doc:"Derived device state: unadopted, standby, streaming"`
	Supervisor string `json:"supervisor" example:"running" doc:"Supervisor state: idle, starting, running"`
	PID        int    `json:"pid,omitempty" doc:"Encoder process ID while running"`
	ExitCode   *int   `json:"exit_code,omitempty" doc:"Last encoder exit code after a self-exit"`
}

// StateResponse wraps StateData for huma.
type StateResponse struct {
	Body StateData
}

// HealthData reports API liveness.
type HealthData struct {
	Status string `json:"status" example:"ok" doc:"Service status"`
}

// HealthResponse wraps HealthData for huma.
type HealthResponse struct {
	Body HealthData
}

// VersionData contains build metadata.
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" doc:"Git commit hash"`
	BuildDate string `json:"build_date" doc:"Build timestamp"`
	GoVersion string `json:"go_version" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"OS/architecture"`
}

// VersionResponse wraps VersionData for huma.
type VersionResponse struct {
	Body VersionData
}
