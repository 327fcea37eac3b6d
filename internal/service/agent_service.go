package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"ozzus/netcheck-agent/internal/credentials"
	"ozzus/netcheck-agent/internal/domain"
	"ozzus/netcheck-agent/internal/jobs"
	"ozzus/netcheck-agent/internal/lib/logger/sl"
	"ozzus/netcheck-agent/internal/repository"
	"ozzus/netcheck-agent/internal/session"
)

const exportTimeout = 5 * time.Second

type JobExecutor interface {
	Execute(ctx context.Context, job domain.Job) (domain.JobResult, error)
}

type Deps struct {
	Session     *session.Session
	Executor    JobExecutor
	Results     repository.ResultRepository
	Credentials credentials.Store
	Version     string
}

// AgentService runs one job at a time on behalf of the coordinator.
type AgentService struct {
	log        *slog.Logger
	opts       domain.AgentOptions
	version    string
	instanceID string
	startedAt  time.Time

	session   *session.Session
	executor  JobExecutor
	results   repository.ResultRepository
	registrar *Registrar
	heartbeat *Heartbeat

	gate    *semaphore.Weighted
	pending conc.WaitGroup

	mu       sync.Mutex
	runCtx   context.Context
	inflight *inflightJob

	running       atomic.Bool
	jobsProcessed atomic.Int64
	jobsFailed    atomic.Int64
}

type inflightJob struct {
	id     string
	cancel context.CancelFunc
}

func NewAgentService(log *slog.Logger, opts domain.AgentOptions, deps Deps) *AgentService {
	if deps.Results == nil {
		deps.Results = repository.NopResultRepository{}
	}

	instanceID := uuid.NewString()
	log = log.With(slog.String("agent", opts.AgentName()))

	s := &AgentService{
		log:        log,
		opts:       opts,
		version:    deps.Version,
		instanceID: instanceID,
		startedAt:  time.Now(),
		session:    deps.Session,
		executor:   deps.Executor,
		results:    deps.Results,
		gate:       semaphore.NewWeighted(1),
	}

	s.registrar = NewRegistrar(log, deps.Session, opts, deps.Credentials, deps.Version, instanceID)
	s.heartbeat = NewHeartbeat(log, deps.Session, opts.AgentName(), opts.HeartbeatInterval())

	return s
}

// Start wires the handlers and blocks until ctx ends or the session gives up.
func (s *AgentService) Start(ctx context.Context) error {
	const op = "service.Start"

	g, gctx := errgroup.WithContext(ctx)

	s.mu.Lock()
	s.runCtx = gctx
	s.mu.Unlock()

	s.session.On(domain.EventJobRequest, s.handleJobRequest)
	s.session.On(domain.EventJobCancel, s.handleJobCancel)
	s.session.OnConnected(s.registrar.OnConnected)

	s.running.Store(true)
	defer s.running.Store(false)

	s.log.Info("agent service started",
		slog.String("server", s.opts.ServerURL()),
		slog.String("instance_id", s.instanceID),
		slog.Duration("heartbeat", s.opts.HeartbeatInterval()),
	)

	g.Go(func() error {
		return s.session.Run(gctx)
	})
	g.Go(func() error {
		s.heartbeat.Run(gctx)
		return nil
	})

	err := g.Wait()
	s.pending.Wait()
	s.registrar.Wait()

	if err != nil {
		s.log.Error("agent service stopped", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("agent service stopped")
	return nil
}

func (s *AgentService) handleJobRequest(_ context.Context, payload json.RawMessage) {
	job, err := jobs.ParseJob(payload)
	if err != nil && job.ID == "" {
		s.log.Warn("dropping malformed job request", sl.Err(err))
		return
	}

	ctx := s.context()
	s.pending.Go(func() {
		s.process(ctx, job, err)
	})
}

func (s *AgentService) handleJobCancel(_ context.Context, payload json.RawMessage) {
	id, err := jobs.ParseCancel(payload)
	if err != nil {
		s.log.Warn("dropping malformed job cancel", sl.Err(err))
		return
	}

	s.mu.Lock()
	job := s.inflight
	s.mu.Unlock()

	if job == nil || job.id != id {
		s.log.Info("cancel for job not in flight", slog.String("job_id", id))
		return
	}

	s.log.Info("cancelling job", slog.String("job_id", id))
	job.cancel()
}

// process runs under the execution gate: accepted, execute, result.
func (s *AgentService) process(ctx context.Context, job domain.Job, parseErr error) {
	log := s.log.With(slog.String("job_id", job.ID))

	if err := s.gate.Acquire(ctx, 1); err != nil {
		log.Debug("job dropped during shutdown")
		return
	}
	defer s.gate.Release(1)

	if parseErr != nil {
		log.Warn("rejecting job", sl.Err(parseErr))
		s.emitResult(ctx, job, domain.FailedJobResult(job.ID, parseErr.Error(), ""))
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.inflight = &inflightJob{id: job.ID, cancel: cancel}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inflight = nil
		s.mu.Unlock()
	}()

	s.emit(ctx, domain.EventJobAccepted, domain.JobAccepted{
		JobID:      job.ID,
		Agent:      s.opts.AgentName(),
		Type:       job.Type,
		ReceivedAt: job.ReceivedAt,
		Metadata:   job.Metadata,
	})

	log.Info("job accepted", slog.String("type", string(job.Type)))

	result, err := s.executor.Execute(jobCtx, job)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("job abandoned, agent is stopping")
			return
		}
		log.Info("job cancelled", sl.Err(err))
		result = domain.CancelledJobResult(job.ID)
	}

	s.emitResult(ctx, job, result)
}

func (s *AgentService) emitResult(ctx context.Context, job domain.Job, result domain.JobResult) {
	result.JobID = job.ID

	event := domain.JobResultEvent{
		JobResult:   result,
		Agent:       s.opts.AgentName(),
		CompletedAt: time.Now().UTC(),
		Metadata:    job.Metadata,
	}

	s.emit(ctx, domain.EventJobResult, event)

	s.jobsProcessed.Add(1)
	if !result.Success {
		s.jobsFailed.Add(1)
	}

	s.log.Info("job finished",
		slog.String("job_id", job.ID),
		slog.Bool("success", result.Success),
		slog.Bool("cancelled", result.Cancelled),
		slog.Int("checks", len(result.Checks)),
	)

	s.export(ctx, event)
}

// export publishes the result off the execution gate. It may outlive the run
// context by at most exportTimeout.
func (s *AgentService) export(ctx context.Context, event domain.JobResultEvent) {
	ctx = context.WithoutCancel(ctx)

	s.pending.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, exportTimeout)
		defer cancel()

		if err := s.results.SaveResult(ctx, event); err != nil {
			s.log.Warn("result export failed", slog.String("job_id", event.JobID), sl.Err(err))
		}
	})
}

func (s *AgentService) emit(ctx context.Context, event string, payload any) {
	if err := s.session.Emit(ctx, event, payload); err != nil {
		s.log.Warn("emit failed", slog.String("event", event), sl.Err(err))
	}
}

func (s *AgentService) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil {
		return context.Background()
	}
	return s.runCtx
}

func (s *AgentService) HealthCheck(_ context.Context) error {
	if !s.running.Load() {
		return fmt.Errorf("service is not running")
	}
	return nil
}

// Ready reports whether the agent can take jobs right now.
func (s *AgentService) Ready(ctx context.Context) error {
	if err := s.HealthCheck(ctx); err != nil {
		return err
	}
	if !s.session.Connected() {
		return fmt.Errorf("coordinator session is %s", s.session.State())
	}
	return nil
}

func (s *AgentService) GetStatus() domain.AgentStatus {
	s.mu.Lock()
	var current string
	if s.inflight != nil {
		current = s.inflight.id
	}
	s.mu.Unlock()

	return domain.AgentStatus{
		Agent:         s.opts.AgentName(),
		Version:       s.version,
		InstanceID:    s.instanceID,
		Running:       s.running.Load(),
		Session:       s.session.State().String(),
		CurrentJob:    current,
		JobsProcessed: s.jobsProcessed.Load(),
		JobsFailed:    s.jobsFailed.Load(),
		LastHeartbeat: s.heartbeat.LastSent(),
		StartedAt:     s.startedAt,
	}
}

func (s *AgentService) AgentName() string {
	return s.opts.AgentName()
}

func (s *AgentService) Version() string {
	return s.version
}
