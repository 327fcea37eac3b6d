package domain

import "time"

// Credentials is the persisted personal-token record.
type Credentials struct {
	AgentName string            `json:"agentName" yaml:"agentName" toml:"agentName"`
	ServerURL string            `json:"serverUrl" yaml:"serverUrl" toml:"serverUrl"`
	Token     string            `json:"token" yaml:"token" toml:"token"`
	IssuedAt  time.Time         `json:"issuedAt" yaml:"issuedAt" toml:"issuedAt"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty" toml:"metadata,omitempty"`
}

// Matches reports whether the record was issued for this agent on this server.
func (c Credentials) Matches(agentName, serverURL string) bool {
	return c.Token != "" && c.AgentName == agentName && c.ServerURL == serverURL
}
