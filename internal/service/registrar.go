package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"strings"
	"time"

	"github.com/sourcegraph/conc"

	"ozzus/netcheck-agent/internal/credentials"
	"ozzus/netcheck-agent/internal/domain"
	"ozzus/netcheck-agent/internal/lib/logger/sl"
)

type Emitter interface {
	Emit(ctx context.Context, event string, payload any) error
}

type Invoker interface {
	Invoke(ctx context.Context, method string, payload any) (json.RawMessage, error)
}

type sessionClient interface {
	Emitter
	Invoker
}

// Registrar announces the agent on every connect and, when enabled,
// exchanges the configured token for a personal one.
type Registrar struct {
	log        *slog.Logger
	session    sessionClient
	opts       domain.AgentOptions
	store      credentials.Store
	version    string
	instanceID string

	bootstraps conc.WaitGroup

	runtimeOnce sync.Once
	runtime     domain.RuntimeInfo

	mu    sync.Mutex
	token string
}

func NewRegistrar(
	log *slog.Logger,
	session sessionClient,
	opts domain.AgentOptions,
	store credentials.Store,
	version string,
	instanceID string,
) *Registrar {
	return &Registrar{
		log:        log.With(slog.String("component", "registrar")),
		session:    session,
		opts:       opts,
		store:      store,
		version:    version,
		instanceID: instanceID,
		token:      opts.Token(),
	}
}

// OnConnected registers synchronously and bootstraps the token in the
// background so jobs are not held up by the exchange.
func (r *Registrar) OnConnected(ctx context.Context) {
	r.Register(ctx)

	if r.opts.AutoIssuePersonalToken() {
		r.bootstraps.Go(func() {
			if err := r.BootstrapToken(ctx); err != nil {
				r.log.Warn("personal token bootstrap failed", sl.Err(err))
			}
		})
	}
}

// Wait blocks until background token exchanges started by OnConnected finish.
func (r *Registrar) Wait() {
	r.bootstraps.Wait()
}

func (r *Registrar) Register(ctx context.Context) {
	runtime := r.runtimeInfo(ctx)

	reg := domain.AgentRegistration{
		Agent:        r.opts.AgentName(),
		Version:      r.version,
		Capabilities: append([]domain.JobType(nil), domain.Capabilities...),
		Metadata:     r.opts.Metadata(),
		Runtime:      &runtime,
	}

	if err := r.session.Emit(ctx, domain.EventRegister, reg); err != nil {
		r.log.Warn("register failed", sl.Err(err))
		return
	}
	r.log.Info("registered with coordinator", slog.Int("capabilities", len(reg.Capabilities)))
}

// BootstrapToken asks the coordinator for a personal token and persists it
// when it differs from the one in use.
func (r *Registrar) BootstrapToken(ctx context.Context) error {
	const op = "service.BootstrapToken"

	raw, err := r.session.Invoke(ctx, domain.MethodIssueToken, domain.IssueTokenRequest{Agent: r.opts.AgentName()})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var resp domain.IssueTokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	if !resp.OK || resp.Token == "" {
		return fmt.Errorf("%s: coordinator declined to issue a token", op)
	}

	if resp.Token == r.currentToken() {
		r.log.Debug("personal token unchanged")
		return nil
	}

	if r.store == nil {
		return fmt.Errorf("%s: no credentials store configured", op)
	}

	creds := domain.Credentials{
		AgentName: r.opts.AgentName(),
		ServerURL: r.opts.ServerURL(),
		Token:     resp.Token,
		IssuedAt:  time.Now().UTC(),
		Metadata:  r.opts.Metadata(),
	}
	if err := r.store.Save(creds); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	r.token = resp.Token
	r.mu.Unlock()

	r.log.Info("personal token issued and saved")
	return nil
}

func (r *Registrar) currentToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

func (r *Registrar) runtimeInfo(ctx context.Context) domain.RuntimeInfo {
	r.runtimeOnce.Do(func() {
		r.runtime = collectRuntimeInfo(ctx, r.instanceID)
	})
	return r.runtime
}

// PreferStoredToken replaces the configured token with a stored personal token
// issued for the same agent name and server.
func PreferStoredToken(log *slog.Logger, store credentials.Store, p domain.AgentOptionsParams) domain.AgentOptionsParams {
	if store == nil {
		return p
	}

	creds, err := store.Load()
	if err != nil {
		if !errors.Is(err, credentials.ErrNotFound) {
			log.Warn("failed to read stored credentials", sl.Err(err))
		}
		return p
	}

	if !creds.Matches(strings.TrimSpace(p.AgentName), strings.TrimSpace(p.ServerURL)) {
		log.Debug("stored credentials belong to another agent or server")
		return p
	}

	log.Info("using stored personal token", slog.Time("issued_at", creds.IssuedAt))
	p.Token = creds.Token
	return p
}
