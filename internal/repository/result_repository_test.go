package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ozzus/netcheck-agent/internal/domain"
	"ozzus/netcheck-agent/internal/lib/logger"
	"ozzus/netcheck-agent/internal/repository/kafka"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaResultRepository_SaveResult(t *testing.T) {
	w := &fakeWriter{}
	repo := NewKafkaResultRepository(logger.Discard(), kafka.NewProducerWithWriter(w, "job-results"))

	event := domain.JobResultEvent{
		JobResult:   domain.NewJobResult("j1", []domain.CheckResult{{Check: "tcp:h:1", Success: true}}),
		Agent:       "agent-1",
		CompletedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, repo.SaveResult(context.Background(), event))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "j1", string(w.msgs[0].Key))

	headers := map[string]string{}
	for _, h := range w.msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, map[string]string{"event": "job-result", "agent": "agent-1"}, headers)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "j1", decoded["jobId"])
	assert.Equal(t, "agent-1", decoded["agent"])
	assert.Equal(t, true, decoded["success"])

	require.NoError(t, repo.Close())
	assert.True(t, w.closed)
}

func TestKafkaResultRepository_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	repo := NewKafkaResultRepository(logger.Discard(), kafka.NewProducerWithWriter(w, "job-results"))

	err := repo.SaveResult(context.Background(), domain.JobResultEvent{JobResult: domain.NewJobResult("j2", nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
