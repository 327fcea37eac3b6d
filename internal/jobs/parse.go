package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ozzus/netcheck-agent/internal/domain"
	"ozzus/netcheck-agent/internal/lib/payload"
)

// ParseJob decodes a job-request envelope. The job may be nested under "job";
// id and type accept the aliases jobId and command.
func ParseJob(raw []byte) (domain.Job, error) {
	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return domain.Job{}, invalidf("malformed job request: %v", err)
	}
	if envelope == nil {
		return domain.Job{}, invalidf("malformed job request: empty envelope")
	}

	fields := payload.Fields(envelope)
	if nested, ok := fields.Object("job"); ok {
		fields = nested
	}

	id, ok, err := fields.String("id", "jobId")
	if err != nil || !ok || id == "" {
		return domain.Job{}, invalidf("job id is required")
	}

	rawType, ok, err := fields.String("type", "command")
	if err != nil || !ok {
		return domain.Job{ID: id}, invalidf("job type is required")
	}

	jobType := domain.JobType(strings.ToLower(rawType))
	if !jobType.Valid() {
		return domain.Job{ID: id}, invalidf("unsupported job type %q", rawType)
	}

	job := domain.Job{
		ID:         id,
		Type:       jobType,
		Payload:    map[string]any{},
		Metadata:   fields["metadata"],
		ReceivedAt: time.Now().UTC(),
	}

	if v, present := fields["payload"]; present && v != nil {
		p, isObject := v.(map[string]any)
		if !isObject {
			return job, invalidf("job payload must be an object, got %T", v)
		}
		job.Payload = p
	}

	return job, nil
}

// ParseCancel extracts the job id from a job-cancel event.
func ParseCancel(raw []byte) (string, error) {
	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", fmt.Errorf("malformed job cancel: %w", err)
	}

	fields := payload.Fields(envelope)
	if nested, ok := fields.Object("job"); ok {
		fields = nested
	}

	id, ok, err := fields.String("id", "jobId")
	if err != nil || !ok || id == "" {
		return "", invalidf("job id is required")
	}
	return id, nil
}
