package repository

import (
	"context"
	"fmt"
	"log/slog"

	"ozzus/netcheck-agent/internal/domain"
	"ozzus/netcheck-agent/internal/repository/kafka"
)

// ResultRepository exports emitted job results outside the coordinator session.
type ResultRepository interface {
	SaveResult(ctx context.Context, result domain.JobResultEvent) error
	Close() error
}

type KafkaResultRepository struct {
	log      *slog.Logger
	producer *kafka.Producer
}

func NewKafkaResultRepository(log *slog.Logger, producer *kafka.Producer) *KafkaResultRepository {
	return &KafkaResultRepository{
		log:      log.With(slog.String("component", "result_repository")),
		producer: producer,
	}
}

// SaveResult publishes the result keyed by job id.
func (r *KafkaResultRepository) SaveResult(ctx context.Context, result domain.JobResultEvent) error {
	headers := map[string]string{
		"event": domain.EventJobResult,
		"agent": result.Agent,
	}
	if err := r.producer.Publish(ctx, result.JobID, result, headers); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}

	r.log.Debug("result exported",
		slog.String("job_id", result.JobID),
		slog.String("topic", r.producer.Topic()),
		slog.Bool("success", result.Success),
	)
	return nil
}

func (r *KafkaResultRepository) Close() error {
	return r.producer.Close()
}

// NopResultRepository is used when export is disabled.
type NopResultRepository struct{}

func (NopResultRepository) SaveResult(context.Context, domain.JobResultEvent) error { return nil }

func (NopResultRepository) Close() error { return nil }
