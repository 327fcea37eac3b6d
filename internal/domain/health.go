package domain

import "time"

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	AgentID   string       `json:"agent_id"`
	Message   string       `json:"message,omitempty"`
}

// AgentStatus снимок состояния агента для /status
type AgentStatus struct {
	Agent         string     `json:"agent"`
	Version       string     `json:"version"`
	InstanceID    string     `json:"instance_id"`
	Running       bool       `json:"running"`
	Session       string     `json:"session"`
	CurrentJob    string     `json:"current_job,omitempty"`
	JobsProcessed int64      `json:"jobs_processed"`
	JobsFailed    int64      `json:"jobs_failed"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
}

type ReadinessStatus string

const (
	ReadinessReady    ReadinessStatus = "ready"
	ReadinessNotReady ReadinessStatus = "not_ready"
)

// ReadinessResponse ответ /ready: готов ли агент принимать задачи
type ReadinessResponse struct {
	Status    ReadinessStatus `json:"status"`
	Agent     string          `json:"agent"`
	Session   string          `json:"session"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AgentInfo ответ /info
type AgentInfo struct {
	Agent        string    `json:"agent_id"`
	Version      string    `json:"version"`
	InstanceID   string    `json:"instance_id"`
	Capabilities []JobType `json:"capabilities"`
	StartedAt    time.Time `json:"started_at"`
	Timestamp    time.Time `json:"timestamp"`
}
