package domain

import "time"

// Protocol event names exchanged with the coordinator.
const (
	EventRegister    = "register"
	EventHeartbeat   = "heartbeat"
	EventJobRequest  = "job-request"
	EventJobCancel   = "job-cancel"
	EventJobAccepted = "job-accepted"
	EventJobResult   = "job-result"

	MethodIssueToken = "issue-token"
)

type RuntimeInfo struct {
	InstanceID string `json:"instanceId"`
	Hostname   string `json:"hostname,omitempty"`
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	Platform   string `json:"platform,omitempty"`
	Kernel     string `json:"kernel,omitempty"`
	GoVersion  string `json:"goVersion"`
	PID        int    `json:"pid"`
}

type AgentRegistration struct {
	Agent        string            `json:"agent"`
	Version      string            `json:"version,omitempty"`
	Capabilities []JobType         `json:"capabilities"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Runtime      *RuntimeInfo      `json:"runtime,omitempty"`
}

type Heartbeat struct {
	Agent         string    `json:"agent"`
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
}

type JobAccepted struct {
	JobID      string    `json:"jobId"`
	Agent      string    `json:"agent"`
	Type       JobType   `json:"type"`
	ReceivedAt time.Time `json:"receivedAt"`
	Metadata   any       `json:"metadata,omitempty"`
}

// JobResultEvent is the job-result payload: the aggregated result plus
// envelope fields.
type JobResultEvent struct {
	JobResult
	Agent       string    `json:"agent"`
	CompletedAt time.Time `json:"completedAt"`
	Metadata    any       `json:"metadata,omitempty"`
}

type IssueTokenRequest struct {
	Agent string `json:"agent"`
}

type IssueTokenResponse struct {
	OK    bool   `json:"ok"`
	Token string `json:"token,omitempty"`
}
