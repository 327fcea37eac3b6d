package jobs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ozzus/netcheck-agent/internal/domain"
)

func TestParseJob_Aliases(t *testing.T) {
	job, err := ParseJob([]byte(`{"job":{"jobId":"42","command":"Check","payload":{"host":"a"},"metadata":{"trace":"t1"}}}`))
	require.NoError(t, err)

	assert.Equal(t, "42", job.ID)
	assert.Equal(t, domain.JobTypeCheck, job.Type)
	assert.Equal(t, map[string]any{"host": "a"}, job.Payload)
	assert.Equal(t, map[string]any{"trace": "t1"}, job.Metadata)
	assert.False(t, job.ReceivedAt.IsZero())
}

func TestParseJob_NumericIDAndMissingPayload(t *testing.T) {
	job, err := ParseJob([]byte(`{"id":7,"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, "7", job.ID)
	assert.NotNil(t, job.Payload)
	assert.Nil(t, job.Metadata)
}

func TestParseJob_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":      `{`,
		"null":          `null`,
		"no id":         `{"type":"tcp"}`,
		"no type":       `{"id":"1"}`,
		"unknown type":  `{"id":"1","type":"traceroute"}`,
		"payload array": `{"id":"1","type":"tcp","payload":[1,2]}`,
	}

	for name, raw := range cases {
		_, err := ParseJob([]byte(raw))
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrValidation), name)
	}
}

func TestParseJob_KeepsIDOnLaterFailure(t *testing.T) {
	job, err := ParseJob([]byte(`{"id":"j9","type":"bogus"}`))
	require.Error(t, err)
	assert.Equal(t, "j9", job.ID)
}

func TestParseCancel(t *testing.T) {
	id, err := ParseCancel([]byte(`{"jobId":"j1"}`))
	require.NoError(t, err)
	assert.Equal(t, "j1", id)

	_, err = ParseCancel([]byte(`{}`))
	assert.Error(t, err)
}
