package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ozzus/netcheck-agent/internal/domain"
	"ozzus/netcheck-agent/internal/lib/logger"
	"ozzus/netcheck-agent/internal/transport/transporttest"
)

func testOptions(t *testing.T, maxAttempts int) domain.AgentOptions {
	t.Helper()
	opts, err := domain.NewAgentOptions(domain.AgentOptionsParams{
		ServerURL:            "ws://coordinator.test",
		Token:                "tok",
		AgentName:            "agent-1",
		ReconnectDelay:       time.Millisecond,
		ReconnectDelayMax:    5 * time.Millisecond,
		MaxReconnectAttempts: maxAttempts,
	})
	require.NoError(t, err)
	return opts
}

func runAsync(ctx context.Context, s *Session) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	return errCh
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, 2*time.Second, time.Millisecond)
}

func TestBackoff_Properties(t *testing.T) {
	initial, maxDelay := 100*time.Millisecond, 350*time.Millisecond

	assert.Equal(t, initial, Backoff(0, initial, maxDelay))

	prev := time.Duration(0)
	for n := 0; n < 50; n++ {
		d := Backoff(n, initial, maxDelay)
		assert.GreaterOrEqual(t, d, prev, "n=%d", n)
		assert.LessOrEqual(t, d, maxDelay, "n=%d", n)
		prev = d
	}

	assert.Equal(t, []time.Duration{100, 200, 300, 350, 350}, []time.Duration{
		Backoff(0, initial, maxDelay) / time.Millisecond,
		Backoff(1, initial, maxDelay) / time.Millisecond,
		Backoff(2, initial, maxDelay) / time.Millisecond,
		Backoff(3, initial, maxDelay) / time.Millisecond,
		Backoff(4, initial, maxDelay) / time.Millisecond,
	})
	assert.Equal(t, maxDelay, Backoff(1<<40, initial, maxDelay))
}

func TestRun_ExhaustsReconnectAttempts(t *testing.T) {
	dialer := transporttest.NewDialer()
	s := New(logger.Discard(), dialer, testOptions(t, 2))

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReconnectAttemptsExhausted))
	assert.Len(t, dialer.Requests(), 3)
	assert.Equal(t, Disconnected, s.State())
}

func TestRun_UnlimitedStopsOnCancel(t *testing.T) {
	dialer := transporttest.NewDialer()
	s := New(logger.Discard(), dialer, testOptions(t, 0))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runAsync(ctx, s)

	require.Eventually(t, func() bool { return len(dialer.Requests()) > 5 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestRun_DialRequestCarriesOptions(t *testing.T) {
	conn := transporttest.NewConn()
	dialer := transporttest.NewDialer(conn)
	s := New(logger.Discard(), dialer, testOptions(t, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runAsync(ctx, s)
	waitState(t, s, Connected)

	req := dialer.Requests()[0]
	assert.Equal(t, "ws://coordinator.test", req.URL)
	assert.Equal(t, "tok", req.Token)
	assert.Equal(t, "agent-1", req.AgentName)
}

func TestRun_ReconnectsAfterDropAndRerunsHooks(t *testing.T) {
	first, second := transporttest.NewConn(), transporttest.NewConn()
	dialer := transporttest.NewDialer(first, second)
	s := New(logger.Discard(), dialer, testOptions(t, 1))

	hooks := make(chan struct{}, 4)
	s.OnConnected(func(ctx context.Context) {
		hooks <- struct{}{}
	})

	errCh := runAsync(context.Background(), s)

	for _, conn := range []*transporttest.Conn{first, second} {
		select {
		case <-hooks:
		case <-time.After(2 * time.Second):
			t.Fatal("hook not run on connect")
		}
		assert.True(t, s.Connected())
		conn.Drop()
	}

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, ErrReconnectAttemptsExhausted))
	case <-time.After(2 * time.Second):
		t.Fatal("run did not give up")
	}
	assert.Len(t, dialer.Requests(), 3)
}

func TestEmit_NoopWhileDisconnected(t *testing.T) {
	s := New(logger.Discard(), transporttest.NewDialer(), testOptions(t, 0))

	assert.NoError(t, s.Emit(context.Background(), domain.EventHeartbeat, map[string]string{"a": "b"}))

	_, err := s.Invoke(context.Background(), domain.MethodIssueToken, nil)
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestEmit_WhileConnected(t *testing.T) {
	conn := transporttest.NewConn()
	s := New(logger.Discard(), transporttest.NewDialer(conn), testOptions(t, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runAsync(ctx, s)
	waitState(t, s, Connected)

	require.NoError(t, s.Emit(ctx, "register", map[string]string{"agent": "agent-1"}))
	sent := conn.Await(t, "register", time.Second)
	assert.JSONEq(t, `{"agent":"agent-1"}`, string(sent.Payload))

	conn.SetSendErr(errors.New("broken pipe"))
	assert.Error(t, s.Emit(ctx, "register", nil))
}

func TestOn_LaterHandlerReplacesEarlier(t *testing.T) {
	conn := transporttest.NewConn()
	s := New(logger.Discard(), transporttest.NewDialer(conn), testOptions(t, 0))

	calls := make(chan string, 4)
	s.On("job-request", func(ctx context.Context, _ json.RawMessage) { calls <- "first" })
	s.On("job-request", func(ctx context.Context, payload json.RawMessage) { calls <- "second:" + string(payload) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runAsync(ctx, s)

	conn.PushRaw("unknown", `{}`)
	conn.PushRaw("job-request", `{"id":"1"}`)

	select {
	case got := <-calls:
		assert.Equal(t, `second:{"id":"1"}`, got)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	assert.Empty(t, calls)
}

func TestInvoke_UsesConnection(t *testing.T) {
	conn := transporttest.NewConn()
	conn.InvokeFunc = func(ctx context.Context, method string, payload any) (json.RawMessage, error) {
		_, hasDeadline := ctx.Deadline()
		if !hasDeadline {
			return nil, errors.New("missing deadline")
		}
		return json.RawMessage(`{"ok":true}`), nil
	}
	s := New(logger.Discard(), transporttest.NewDialer(conn), testOptions(t, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runAsync(ctx, s)
	waitState(t, s, Connected)

	out, err := s.Invoke(ctx, domain.MethodIssueToken, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
}
