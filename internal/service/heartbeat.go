package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ozzus/netcheck-agent/internal/domain"
	"ozzus/netcheck-agent/internal/lib/logger/sl"
)

type connectedEmitter interface {
	Emitter
	Connected() bool
}

// Heartbeat emits a liveness signal at a fixed interval while connected.
type Heartbeat struct {
	log       *slog.Logger
	session   connectedEmitter
	agent     string
	interval  time.Duration
	startedAt time.Time

	mu       sync.Mutex
	lastSent time.Time
}

func NewHeartbeat(log *slog.Logger, session connectedEmitter, agent string, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		log:       log.With(slog.String("component", "heartbeat")),
		session:   session,
		agent:     agent,
		interval:  interval,
		startedAt: time.Now(),
	}
}

func (h *Heartbeat) Run(ctx context.Context) {
	if h.interval <= 0 {
		h.log.Debug("heartbeat disabled")
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.beat(ctx)
		case <-ctx.Done():
			h.log.Debug("heartbeat loop stopped")
			return
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context) {
	if !h.session.Connected() {
		return
	}

	now := time.Now().UTC()
	hb := domain.Heartbeat{
		Agent:         h.agent,
		Timestamp:     now,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}

	if err := h.session.Emit(ctx, domain.EventHeartbeat, hb); err != nil {
		h.log.Warn("heartbeat failed", sl.Err(err))
		return
	}

	h.mu.Lock()
	h.lastSent = now
	h.mu.Unlock()

	h.log.Debug("heartbeat sent")
}

// LastSent is nil until the first heartbeat goes out.
func (h *Heartbeat) LastSent() *time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastSent.IsZero() {
		return nil
	}
	t := h.lastSent
	return &t
}
