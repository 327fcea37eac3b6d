package domain

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

var ErrInvalidOptions = errors.New("invalid agent options")

// AgentOptions is the validated, read-only configuration of one agent run.
type AgentOptions struct {
	serverURL              string
	token                  string
	agentName              string
	reconnectDelay         time.Duration
	reconnectDelayMax      time.Duration
	maxReconnectAttempts   int
	heartbeatInterval      time.Duration
	metadata               map[string]string
	credentialsPath        string
	autoIssuePersonalToken bool
}

// AgentOptionsParams carries raw values into NewAgentOptions.
type AgentOptionsParams struct {
	ServerURL              string
	Token                  string
	AgentName              string
	ReconnectDelay         time.Duration
	ReconnectDelayMax      time.Duration
	MaxReconnectAttempts   int // <= 0 retries forever
	HeartbeatInterval      time.Duration
	Metadata               map[string]string
	CredentialsPath        string
	AutoIssuePersonalToken bool
}

func NewAgentOptions(p AgentOptionsParams) (AgentOptions, error) {
	var problems []string

	serverURL := strings.TrimSpace(p.ServerURL)
	if serverURL == "" {
		problems = append(problems, "server url is required")
	}
	if strings.TrimSpace(p.Token) == "" {
		problems = append(problems, "token is required")
	}
	agentName := strings.TrimSpace(p.AgentName)
	if agentName == "" {
		problems = append(problems, "agent name is required")
	}
	if p.ReconnectDelay <= 0 {
		problems = append(problems, "reconnect delay must be positive")
	}
	if p.ReconnectDelayMax <= 0 {
		problems = append(problems, "maximum reconnect delay must be positive")
	} else if p.ReconnectDelayMax < p.ReconnectDelay {
		problems = append(problems, fmt.Sprintf("maximum reconnect delay %s is less than reconnect delay %s",
			p.ReconnectDelayMax, p.ReconnectDelay))
	}

	if len(problems) > 0 {
		return AgentOptions{}, fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(problems, "; "))
	}

	heartbeat := p.HeartbeatInterval
	if heartbeat < 0 {
		heartbeat = 0
	}

	maxAttempts := p.MaxReconnectAttempts
	if maxAttempts < 0 {
		maxAttempts = 0
	}

	metadata := make(map[string]string, len(p.Metadata))
	maps.Copy(metadata, p.Metadata)

	return AgentOptions{
		serverURL:              serverURL,
		token:                  p.Token,
		agentName:              agentName,
		reconnectDelay:         p.ReconnectDelay,
		reconnectDelayMax:      p.ReconnectDelayMax,
		maxReconnectAttempts:   maxAttempts,
		heartbeatInterval:      heartbeat,
		metadata:               metadata,
		credentialsPath:        p.CredentialsPath,
		autoIssuePersonalToken: p.AutoIssuePersonalToken,
	}, nil
}

func (o AgentOptions) ServerURL() string { return o.serverURL }
func (o AgentOptions) Token() string { return o.token }
func (o AgentOptions) AgentName() string { return o.agentName }
func (o AgentOptions) ReconnectDelay() time.Duration { return o.reconnectDelay }
func (o AgentOptions) ReconnectDelayMax() time.Duration { return o.reconnectDelayMax }
func (o AgentOptions) HeartbeatInterval() time.Duration { return o.heartbeatInterval }
func (o AgentOptions) CredentialsPath() string { return o.credentialsPath }
func (o AgentOptions) AutoIssuePersonalToken() bool { return o.autoIssuePersonalToken }

// MaxReconnectAttempts returns the retry limit; zero means unlimited.
func (o AgentOptions) MaxReconnectAttempts() int { return o.maxReconnectAttempts }

// Metadata returns a copy so callers cannot mutate the options.
func (o AgentOptions) Metadata() map[string]string {
	out := make(map[string]string, len(o.metadata))
	maps.Copy(out, o.metadata)
	return out
}
