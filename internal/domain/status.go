package domain

import "time"

// StatusState is the user-facing consolidated project state.
type StatusState string

const (
	StateSettingUp StatusState = "setting_up"
	StateFailed    StatusState = "failed"
	StateBuilding  StatusState = "building"
	StateReady     StatusState = "ready"
	StateError     StatusState = "error"
	StateUnknown   StatusState = "unknown"
)

// ProjectStatus is derived on demand from the job ledger and the hosting
// provider; it is never persisted.
type ProjectStatus struct {
	State   StatusState `json:"state"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// DeployState is a deployment build state as reported by the hosting
// provider. Values outside the declared constants are possible and must be
// tolerated by consumers.
type DeployState string

const (
	DeployQueued       DeployState = "QUEUED"
	DeployBuilding     DeployState = "BUILDING"
	DeployInitializing DeployState = "INITIALIZING"
	DeployReady        DeployState = "READY"
	DeployError        DeployState = "ERROR"
	DeployCanceled     DeployState = "CANCELED"
)

// Terminal reports whether the build reached a final state.
func (s DeployState) Terminal() bool {
	return s == DeployReady || s == DeployError || s == DeployCanceled
}

// DeploymentLog is one build-event entry from the hosting provider.
type DeploymentLog struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	Type      string    `json:"type"`
	Payload   []byte    `json:"payload,omitempty"`
}

// DeploymentStatus is the answer to a deployment status query: the most
// recent deployment's state plus its build-event log.
type DeploymentStatus struct {
	State     DeployState     `json:"state"`
	URL       string          `json:"url"`
	CreatedAt time.Time       `json:"createdAt"`
	Logs      []DeploymentLog `json:"logs"`
}
