package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() AgentOptionsParams {
	return AgentOptionsParams{
		ServerURL:         "wss://coordinator.example.com",
		Token:             "master-token",
		AgentName:         "probe-eu-1",
		ReconnectDelay:    time.Second,
		ReconnectDelayMax: 30 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		Metadata:          map[string]string{"region": "eu", "Region": "EU"},
	}
}

func TestNewAgentOptions_Valid(t *testing.T) {
	opts, err := NewAgentOptions(validParams())
	require.NoError(t, err)

	assert.Equal(t, "wss://coordinator.example.com", opts.ServerURL())
	assert.Equal(t, "probe-eu-1", opts.AgentName())
	assert.Equal(t, time.Second, opts.ReconnectDelay())
	assert.Equal(t, 30*time.Second, opts.ReconnectDelayMax())
	assert.Equal(t, 0, opts.MaxReconnectAttempts())

	md := opts.Metadata()
	assert.Len(t, md, 2, "metadata keys are case-sensitive")
	md["region"] = "mutated"
	assert.Equal(t, "eu", opts.Metadata()["region"])
}

func TestNewAgentOptions_ClampsHeartbeat(t *testing.T) {
	p := validParams()
	p.HeartbeatInterval = -5 * time.Second
	p.MaxReconnectAttempts = -1

	opts, err := NewAgentOptions(p)
	require.NoError(t, err)
	assert.Zero(t, opts.HeartbeatInterval())
	assert.Zero(t, opts.MaxReconnectAttempts())
}

func TestNewAgentOptions_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *AgentOptionsParams)
		want   string
	}{
		{"empty server", func(p *AgentOptionsParams) { p.ServerURL = " " }, "server url is required"},
		{"empty token", func(p *AgentOptionsParams) { p.Token = "" }, "token is required"},
		{"empty name", func(p *AgentOptionsParams) { p.AgentName = "" }, "agent name is required"},
		{"zero delay", func(p *AgentOptionsParams) { p.ReconnectDelay = 0 }, "reconnect delay must be positive"},
		{"max below initial", func(p *AgentOptionsParams) { p.ReconnectDelayMax = 500 * time.Millisecond }, "less than reconnect delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.modify(&p)

			_, err := NewAgentOptions(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidOptions))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewJobResult_Aggregation(t *testing.T) {
	empty := NewJobResult("j0", nil)
	assert.True(t, empty.Success)
	assert.NotNil(t, empty.Checks)
	assert.Empty(t, empty.Checks)

	mixed := NewJobResult("j1", []CheckResult{
		{Check: "ping:a", Success: true},
		{Check: "tcp:a:80", Success: false},
	})
	assert.False(t, mixed.Success)
	assert.Equal(t, "j1", mixed.JobID)

	allOK := NewJobResult("j2", []CheckResult{{Check: "dns:a", Success: true}})
	assert.True(t, allOK.Success)
}

func TestCheckResult_WithDurationClampsNegative(t *testing.T) {
	r := CheckResult{Check: "tcp:a:1"}.WithDuration(-time.Second)
	require.NotNil(t, r.DurationMs)
	assert.Equal(t, int64(0), *r.DurationMs)
}

func TestCredentials_Matches(t *testing.T) {
	c := Credentials{AgentName: "a", ServerURL: "wss://s", Token: "t"}
	assert.True(t, c.Matches("a", "wss://s"))
	assert.False(t, c.Matches("b", "wss://s"))
	assert.False(t, Credentials{AgentName: "a", ServerURL: "wss://s"}.Matches("a", "wss://s"))
}
