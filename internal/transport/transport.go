// Package transport describes the persistent bidirectional event connection
// between the agent and its coordinator.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrClosed = errors.New("connection closed")

// Event is a named inbound message.
type Event struct {
	Name    string
	Payload json.RawMessage
}

// Conn is one established connection epoch. Send and Invoke are safe for
// concurrent use; Receive is meant for a single reader.
type Conn interface {
	Send(ctx context.Context, name string, payload any) error
	Invoke(ctx context.Context, method string, payload any) (json.RawMessage, error)
	Receive(ctx context.Context) (Event, error)
	Close() error
}

type DialRequest struct {
	URL       string
	Token     string
	AgentName string
}

type Dialer interface {
	Dial(ctx context.Context, req DialRequest) (Conn, error)
}
