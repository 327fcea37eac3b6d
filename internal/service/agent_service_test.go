package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ozzus/netcheck-agent/internal/domain"
	"ozzus/netcheck-agent/internal/lib/logger"
	"ozzus/netcheck-agent/internal/session"
	"ozzus/netcheck-agent/internal/transport/transporttest"
)

const waitFor = 2 * time.Second

// gatedExecutor holds every job until the test releases it by id.
type gatedExecutor struct {
	mu      sync.Mutex
	release map[string]chan struct{}
}

func newGatedExecutor() *gatedExecutor {
	return &gatedExecutor{release: make(map[string]chan struct{})}
}

func (e *gatedExecutor) gate(id string) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.release[id]
	if !ok {
		ch = make(chan struct{})
		e.release[id] = ch
	}
	return ch
}

func (e *gatedExecutor) Release(id string) {
	close(e.gate(id))
}

func (e *gatedExecutor) Execute(ctx context.Context, job domain.Job) (domain.JobResult, error) {
	select {
	case <-e.gate(job.ID):
		return domain.NewJobResult(job.ID, []domain.CheckResult{{Check: "tcp:h:1", Success: true}}), nil
	case <-ctx.Done():
		return domain.JobResult{}, ctx.Err()
	}
}

type harness struct {
	svc    *AgentService
	conn   *transporttest.Conn
	cancel context.CancelFunc
	done   chan error
}

func startHarness(t *testing.T, exec JobExecutor, overrides ...func(*Deps)) *harness {
	t.Helper()

	opts, err := domain.NewAgentOptions(domain.AgentOptionsParams{
		ServerURL:         "ws://coordinator.test",
		Token:             "tok",
		AgentName:         "agent-1",
		ReconnectDelay:    time.Millisecond,
		ReconnectDelayMax: 10 * time.Millisecond,
		Metadata:          map[string]string{"zone": "eu"},
	})
	require.NoError(t, err)

	conn := transporttest.NewConn()
	sess := session.New(logger.Discard(), transporttest.NewDialer(conn), opts)
	deps := Deps{
		Session:  sess,
		Executor: exec,
		Version:  "test",
	}
	for _, override := range overrides {
		override(&deps)
	}
	svc := NewAgentService(logger.Discard(), opts, deps)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{svc: svc, conn: conn, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- svc.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})

	require.Eventually(t, sess.Connected, waitFor, time.Millisecond)
	return h
}

func jobID(t *testing.T, s transporttest.Sent) string {
	t.Helper()
	var body struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal(s.Payload, &body))
	return body.JobID
}

func indexOf(sent []transporttest.Sent, name, id string, t *testing.T) int {
	for i, s := range sent {
		if s.Name == name && jobID(t, s) == id {
			return i
		}
	}
	return -1
}

func TestAgentService_RegistersOnConnect(t *testing.T) {
	h := startHarness(t, newGatedExecutor())

	sent := h.conn.Await(t, domain.EventRegister, waitFor)

	var reg domain.AgentRegistration
	require.NoError(t, json.Unmarshal(sent.Payload, &reg))
	assert.Equal(t, "agent-1", reg.Agent)
	assert.Equal(t, "test", reg.Version)
	assert.Equal(t, domain.Capabilities, reg.Capabilities)
	assert.Equal(t, map[string]string{"zone": "eu"}, reg.Metadata)
	require.NotNil(t, reg.Runtime)
	assert.NotEmpty(t, reg.Runtime.InstanceID)
}

func TestAgentService_SecondJobWaitsForFirstResult(t *testing.T) {
	exec := newGatedExecutor()
	h := startHarness(t, exec)

	h.conn.PushRaw(domain.EventJobRequest, `{"id":"A","type":"tcp","payload":{"host":"h","port":1},"metadata":{"k":"v"}}`)
	accepted := h.conn.Await(t, domain.EventJobAccepted, waitFor)
	assert.Equal(t, "A", jobID(t, accepted))

	h.conn.PushRaw(domain.EventJobRequest, `{"job":{"jobId":"B","command":"tcp"}}`)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, -1, indexOf(h.conn.Sent(), domain.EventJobAccepted, "B", t))
	assert.Equal(t, "A", h.svc.GetStatus().CurrentJob)

	exec.Release("A")
	result := h.conn.Await(t, domain.EventJobResult, waitFor)
	assert.Equal(t, "A", jobID(t, result))

	var ev domain.JobResultEvent
	require.NoError(t, json.Unmarshal(result.Payload, &ev))
	assert.True(t, ev.Success)
	assert.Equal(t, "agent-1", ev.Agent)
	assert.Equal(t, map[string]any{"k": "v"}, ev.Metadata)

	acceptedB := h.conn.Await(t, domain.EventJobAccepted, waitFor)
	assert.Equal(t, "B", jobID(t, acceptedB))

	sent := h.conn.Sent()
	assert.Less(t, indexOf(sent, domain.EventJobResult, "A", t), indexOf(sent, domain.EventJobAccepted, "B", t))

	exec.Release("B")
	h.conn.Await(t, domain.EventJobResult, waitFor)

	status := h.svc.GetStatus()
	assert.Equal(t, int64(2), status.JobsProcessed)
	assert.Equal(t, int64(0), status.JobsFailed)
	assert.Empty(t, status.CurrentJob)
}

func TestAgentService_CancelInFlightJob(t *testing.T) {
	h := startHarness(t, newGatedExecutor())

	h.conn.PushRaw(domain.EventJobRequest, `{"id":"C","type":"ping","payload":{"host":"h"}}`)
	h.conn.Await(t, domain.EventJobAccepted, waitFor)

	h.conn.PushRaw(domain.EventJobCancel, `{"jobId":"other"}`)
	h.conn.PushRaw(domain.EventJobCancel, `{"jobId":"C"}`)

	result := h.conn.Await(t, domain.EventJobResult, waitFor)

	var ev domain.JobResultEvent
	require.NoError(t, json.Unmarshal(result.Payload, &ev))
	assert.Equal(t, "C", ev.JobID)
	assert.False(t, ev.Success)
	assert.True(t, ev.Cancelled)
	assert.Equal(t, "cancelled", ev.Error)
	assert.Equal(t, int64(1), h.svc.GetStatus().JobsFailed)
}

func TestAgentService_ShutdownSuppressesResult(t *testing.T) {
	h := startHarness(t, newGatedExecutor())

	h.conn.PushRaw(domain.EventJobRequest, `{"id":"S","type":"ping","payload":{"host":"h"}}`)
	h.conn.Await(t, domain.EventJobAccepted, waitFor)

	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(waitFor):
		t.Fatal("service did not stop")
	}

	assert.Equal(t, -1, indexOf(h.conn.Sent(), domain.EventJobResult, "S", t))
	assert.False(t, h.svc.GetStatus().Running)
}

func TestAgentService_RejectsInvalidEnvelope(t *testing.T) {
	h := startHarness(t, newGatedExecutor())

	h.conn.PushRaw(domain.EventJobRequest, `{"type":"tcp"}`)
	h.conn.PushRaw(domain.EventJobRequest, `{"id":"bad","type":"traceroute"}`)

	result := h.conn.Await(t, domain.EventJobResult, waitFor)

	var ev domain.JobResultEvent
	require.NoError(t, json.Unmarshal(result.Payload, &ev))
	assert.Equal(t, "bad", ev.JobID)
	assert.False(t, ev.Success)
	assert.Contains(t, ev.Error, "unsupported job type")
	assert.Equal(t, -1, indexOf(h.conn.Sent(), domain.EventJobAccepted, "bad", t))
}

func TestAgentService_ReadyFollowsSession(t *testing.T) {
	h := startHarness(t, newGatedExecutor())

	assert.NoError(t, h.svc.HealthCheck(context.Background()))
	assert.NoError(t, h.svc.Ready(context.Background()))

	h.conn.Drop()
	require.Eventually(t, func() bool {
		return h.svc.Ready(context.Background()) != nil
	}, waitFor, time.Millisecond)
	assert.NoError(t, h.svc.HealthCheck(context.Background()))
}

// blockingResults holds every export until released.
type blockingResults struct {
	release chan struct{}
	saved   chan string
}

func (r *blockingResults) SaveResult(ctx context.Context, event domain.JobResultEvent) error {
	select {
	case <-r.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.saved <- event.JobID
	return nil
}

func (r *blockingResults) Close() error { return nil }

func TestAgentService_SlowExportDoesNotHoldGate(t *testing.T) {
	exec := newGatedExecutor()
	results := &blockingResults{release: make(chan struct{}), saved: make(chan string, 4)}
	h := startHarness(t, exec, func(d *Deps) { d.Results = results })

	var once sync.Once
	unblock := func() { once.Do(func() { close(results.release) }) }
	t.Cleanup(unblock)

	h.conn.PushRaw(domain.EventJobRequest, `{"id":"A","type":"tcp"}`)
	h.conn.Await(t, domain.EventJobAccepted, waitFor)
	exec.Release("A")
	h.conn.Await(t, domain.EventJobResult, waitFor)

	h.conn.PushRaw(domain.EventJobRequest, `{"id":"B","type":"tcp"}`)
	accepted := h.conn.Await(t, domain.EventJobAccepted, 500*time.Millisecond)
	assert.Equal(t, "B", jobID(t, accepted))

	unblock()
	select {
	case id := <-results.saved:
		assert.Equal(t, "A", id)
	case <-time.After(waitFor):
		t.Fatal("result A was never exported")
	}
}

type failingResults struct{}

func (failingResults) SaveResult(context.Context, domain.JobResultEvent) error {
	return errors.New("broker down")
}

func (failingResults) Close() error { return nil }

func TestAgentService_ExportFailureDoesNotAffectResult(t *testing.T) {
	exec := newGatedExecutor()
	h := startHarness(t, exec, func(d *Deps) { d.Results = failingResults{} })

	h.conn.PushRaw(domain.EventJobRequest, `{"id":"A","type":"tcp"}`)
	h.conn.Await(t, domain.EventJobAccepted, waitFor)
	exec.Release("A")

	sent := h.conn.Await(t, domain.EventJobResult, waitFor)
	assert.Equal(t, "A", jobID(t, sent))
	require.Eventually(t, func() bool { return h.svc.GetStatus().JobsProcessed == 1 }, waitFor, time.Millisecond)
}
