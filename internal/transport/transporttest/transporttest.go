// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ozzus/netcheck-agent/internal/transport"
)

var ErrDialRefused = errors.New("dial refused")

type Sent struct {
	Name    string
	Payload json.RawMessage
}

// Conn is a scripted transport.Conn. Inbound events are pushed with Push;
// outbound sends are recorded.
type Conn struct {
	events chan transport.Event
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	sent    []Sent
	notify  chan Sent
	sendErr error

	// InvokeFunc answers Invoke; nil means every call fails.
	InvokeFunc func(ctx context.Context, method string, payload any) (json.RawMessage, error)
}

func NewConn() *Conn {
	return &Conn{
		events: make(chan transport.Event, 64),
		closed: make(chan struct{}),
		notify: make(chan Sent, 256),
	}
}

func (c *Conn) Push(name string, payload any) {
	body, _ := json.Marshal(payload)
	c.events <- transport.Event{Name: name, Payload: body}
}

func (c *Conn) PushRaw(name string, raw string) {
	c.events <- transport.Event{Name: name, Payload: json.RawMessage(raw)}
}

// Drop simulates the peer going away.
func (c *Conn) Drop() {
	c.once.Do(func() { close(c.closed) })
}

func (c *Conn) SetSendErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *Conn) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// SentNames lists the names of recorded sends in order.
func (c *Conn) SentNames() []string {
	sent := c.Sent()
	out := make([]string, 0, len(sent))
	for _, s := range sent {
		out = append(out, s.Name)
	}
	return out
}

// Await returns the next send named name, failing t after timeout.
func (c *Conn) Await(t testing.TB, name string, timeout time.Duration) Sent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case s := <-c.notify:
			if s.Name == name {
				return s
			}
		case <-deadline:
			t.Fatalf("no %q sent within %s (sent: %v)", name, timeout, c.SentNames())
			return Sent{}
		}
	}
}

func (c *Conn) Send(_ context.Context, name string, payload any) error {
	select {
	case <-c.closed:
		return transport.ErrClosed
	default:
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	s := Sent{Name: name, Payload: body}
	c.sent = append(c.sent, s)
	c.mu.Unlock()

	select {
	case c.notify <- s:
	default:
	}
	return nil
}

func (c *Conn) Invoke(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	if c.InvokeFunc == nil {
		return nil, errors.New("invoke not supported")
	}
	return c.InvokeFunc(ctx, method, payload)
}

func (c *Conn) Receive(ctx context.Context) (transport.Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case <-c.closed:
		return transport.Event{}, transport.ErrClosed
	case <-ctx.Done():
		return transport.Event{}, ctx.Err()
	}
}

func (c *Conn) Close() error {
	c.Drop()
	return nil
}

// Dialer hands out queued connections in order and refuses when none is queued.
type Dialer struct {
	mu       sync.Mutex
	queue    []*Conn
	requests []transport.DialRequest
	dialed   chan *Conn
}

func NewDialer(conns ...*Conn) *Dialer {
	return &Dialer{
		queue:  conns,
		dialed: make(chan *Conn, 16),
	}
}

func (d *Dialer) Queue(c *Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, c)
}

func (d *Dialer) Dial(ctx context.Context, req transport.DialRequest) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.requests = append(d.requests, req)
	if len(d.queue) == 0 {
		d.mu.Unlock()
		return nil, ErrDialRefused
	}
	c := d.queue[0]
	d.queue = d.queue[1:]
	d.mu.Unlock()

	select {
	case d.dialed <- c:
	default:
	}
	return c, nil
}

// Requests returns every dial attempt so far.
func (d *Dialer) Requests() []transport.DialRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]transport.DialRequest(nil), d.requests...)
}

// Dialed yields each connection as it is handed out.
func (d *Dialer) Dialed() <-chan *Conn {
	return d.dialed
}
