// Package session owns the persistent connection to the coordinator: it dials,
// dispatches inbound events to handlers, and reconnects with a linear backoff.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ozzus/netcheck-agent/internal/domain"
	"ozzus/netcheck-agent/internal/lib/logger/sl"
	"ozzus/netcheck-agent/internal/transport"
)

var (
	ErrReconnectAttemptsExhausted = errors.New("reconnect attempts exhausted")
	ErrNotConnected               = errors.New("session is not connected")
)

const defaultInvokeTimeout = 10 * time.Second

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

// Handler processes one inbound event. Handlers run on the dispatch goroutine
// and must not block for long.
type Handler func(ctx context.Context, payload json.RawMessage)

type Session struct {
	log           *slog.Logger
	dialer        transport.Dialer
	opts          domain.AgentOptions
	invokeTimeout time.Duration

	state atomic.Int32

	mu          sync.RWMutex
	conn        transport.Conn
	handlers    map[string]Handler
	onConnected []func(ctx context.Context)
}

func New(log *slog.Logger, dialer transport.Dialer, opts domain.AgentOptions) *Session {
	return &Session{
		log:           log.With(slog.String("component", "session")),
		dialer:        dialer,
		opts:          opts,
		invokeTimeout: defaultInvokeTimeout,
		handlers:      make(map[string]Handler),
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) Connected() bool {
	return s.State() == Connected
}

// On registers the handler for an event, replacing any earlier one.
func (s *Session) On(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

// OnConnected adds a hook run on every successful connect before inbound
// events of that connection are dispatched. The context ends with the connection.
func (s *Session) OnConnected(hook func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnected = append(s.onConnected, hook)
}

// Emit sends an event. While not connected it is a logged no-op.
func (s *Session) Emit(ctx context.Context, event string, payload any) error {
	conn := s.current()
	if conn == nil {
		s.log.Debug("not connected, event dropped", slog.String("event", event))
		return nil
	}

	if err := conn.Send(ctx, event, payload); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (s *Session) Invoke(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	conn := s.current()
	if conn == nil {
		return nil, fmt.Errorf("invoke %s: %w", method, ErrNotConnected)
	}

	ctx, cancel := context.WithTimeout(ctx, s.invokeTimeout)
	defer cancel()

	out, err := conn.Invoke(ctx, method, payload)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", method, err)
	}
	return out, nil
}

// Run connects and keeps the session alive until ctx ends, which returns nil.
// With a configured attempt limit, Run fails with ErrReconnectAttemptsExhausted
// once that many consecutive reconnects have failed.
func (s *Session) Run(ctx context.Context) error {
	const op = "session.Run"
	log := s.log.With(slog.String("op", op))

	retries := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.setState(Connecting)
		conn, err := s.dialer.Dial(ctx, transport.DialRequest{
			URL:       s.opts.ServerURL(),
			Token:     s.opts.Token(),
			AgentName: s.opts.AgentName(),
		})
		if err != nil {
			s.setState(Disconnected)
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("connect failed", slog.Int("retry", retries), sl.Err(err))
		} else {
			retries = 0
			s.serve(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("connection lost")
		}

		if limit := s.opts.MaxReconnectAttempts(); limit > 0 && retries >= limit {
			return fmt.Errorf("%s: %d attempts: %w", op, retries, ErrReconnectAttemptsExhausted)
		}

		delay := Backoff(retries, s.opts.ReconnectDelay(), s.opts.ReconnectDelayMax())
		retries++
		log.Info("reconnecting", slog.Duration("delay", delay), slog.Int("attempt", retries))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// serve runs one connection epoch until the connection drops or ctx ends.
func (s *Session) serve(ctx context.Context, conn transport.Conn) {
	epochCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.conn = conn
	hooks := append([]func(context.Context){}, s.onConnected...)
	s.mu.Unlock()

	s.setState(Connected)
	s.log.Info("connected", slog.String("server", s.opts.ServerURL()))

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		s.setState(Disconnected)
		_ = conn.Close()
	}()

	for _, hook := range hooks {
		hook(epochCtx)
	}

	for {
		ev, err := conn.Receive(epochCtx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Debug("receive stopped", sl.Err(err))
			}
			return
		}
		s.dispatch(epochCtx, ev)
	}
}

func (s *Session) dispatch(ctx context.Context, ev transport.Event) {
	s.mu.RLock()
	h, ok := s.handlers[ev.Name]
	s.mu.RUnlock()

	if !ok {
		s.log.Debug("no handler for event", slog.String("event", ev.Name))
		return
	}
	h(ctx, ev.Payload)
}

func (s *Session) current() transport.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.State() != Connected {
		return nil
	}
	return s.conn
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}
