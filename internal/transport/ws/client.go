// Package ws implements transport.Dialer over a gorilla websocket.
//
// Every message is a JSON frame. Events use the event name as the frame type.
// RPC calls are sent as type "rpc" with a fresh id and a method; the peer
// answers with type "rpc-result" carrying the same id and either a payload or
// an error string.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ozzus/netcheck-agent/internal/lib/logger/sl"
	"ozzus/netcheck-agent/internal/transport"
)

const (
	frameRPC       = "rpc"
	frameRPCResult = "rpc-result"

	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMessageSize   = 1 << 20
	incomingBuffer   = 64
)

type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// RPCError is returned by Invoke when the peer answers with an error.
type RPCError struct {
	Method string
	Msg    string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Method, e.Msg)
}

type Dialer struct {
	log *slog.Logger
	ws  *websocket.Dialer
}

func NewDialer(log *slog.Logger) *Dialer {
	return &Dialer{
		log: log.With(slog.String("component", "ws")),
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (d *Dialer) Dial(ctx context.Context, req transport.DialRequest) (transport.Conn, error) {
	const op = "ws.Dial"

	wsURL, err := BuildURL(req.URL, req.AgentName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	header := http.Header{}
	if req.Token != "" {
		header.Set("Authorization", "Bearer "+req.Token)
	}

	d.log.Debug("dialing coordinator", slog.String("url", wsURL))

	raw, resp, err := d.ws.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%s: handshake failed with status %d: %w", op, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return newConn(d.log, raw), nil
}

type Conn struct {
	log *slog.Logger
	ws  *websocket.Conn

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan frame

	incoming chan transport.Event

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newConn(log *slog.Logger, raw *websocket.Conn) *Conn {
	c := &Conn{
		log:      log,
		ws:       raw,
		pending:  make(map[string]chan frame),
		incoming: make(chan transport.Event, incomingBuffer),
		done:     make(chan struct{}),
	}

	raw.SetReadLimit(maxMessageSize)
	_ = raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(pongWait))
	})
	raw.SetPingHandler(func(data string) error {
		_ = raw.SetReadDeadline(time.Now().Add(pongWait))
		err := raw.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	go c.readPump()
	go c.pingPump()

	return c
}

func (c *Conn) Send(ctx context.Context, name string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return c.write(ctx, frame{Type: name, Payload: body})
}

func (c *Conn) Invoke(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", method, err)
	}

	id := uuid.NewString()
	ch := make(chan frame, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(ctx, frame{Type: frameRPC, ID: id, Method: method, Payload: body}); err != nil {
		return nil, err
	}

	select {
	case reply := <-ch:
		if reply.Error != "" {
			return nil, &RPCError{Method: method, Msg: reply.Error}
		}
		return reply.Payload, nil
	case <-c.done:
		return nil, c.err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) Receive(ctx context.Context) (transport.Event, error) {
	select {
	case ev := <-c.incoming:
		return ev, nil
	default:
	}

	select {
	case ev := <-c.incoming:
		return ev, nil
	case <-c.done:
		return transport.Event{}, c.err()
	case <-ctx.Done():
		return transport.Event{}, ctx.Err()
	}
}

func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	c.shutdown(transport.ErrClosed)
	return nil
}

func (c *Conn) write(ctx context.Context, f frame) error {
	select {
	case <-c.done:
		return c.err()
	default:
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.shutdown(fmt.Errorf("%w: %v", transport.ErrClosed, err))
		return fmt.Errorf("write %s: %w: %v", f.Type, transport.ErrClosed, err)
	}
	return nil
}

func (c *Conn) readPump() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown(fmt.Errorf("%w: %v", transport.ErrClosed, err))
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			c.log.Warn("dropping malformed frame", sl.Err(err))
			continue
		}

		if f.Type == frameRPCResult {
			c.resolve(f)
			continue
		}

		select {
		case c.incoming <- transport.Event{Name: f.Type, Payload: f.Payload}:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.shutdown(fmt.Errorf("%w: ping: %v", transport.ErrClosed, err))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) resolve(f frame) {
	c.pendingMu.Lock()
	ch, ok := c.pending[f.ID]
	c.pendingMu.Unlock()

	if !ok {
		c.log.Debug("rpc result without pending call", slog.String("id", f.ID))
		return
	}

	select {
	case ch <- f:
	default:
	}
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.pendingMu.Lock()
		c.closeErr = err
		c.pendingMu.Unlock()
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) err() error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if c.closeErr == nil {
		return transport.ErrClosed
	}
	return c.closeErr
}
