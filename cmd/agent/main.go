package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	apihttp "ozzus/netcheck-agent/internal/api/http"
	"ozzus/netcheck-agent/internal/checks"
	"ozzus/netcheck-agent/internal/config"
	"ozzus/netcheck-agent/internal/credentials"
	"ozzus/netcheck-agent/internal/domain"
	"ozzus/netcheck-agent/internal/jobs"
	"ozzus/netcheck-agent/internal/lib/logger"
	"ozzus/netcheck-agent/internal/lib/logger/sl"
	"ozzus/netcheck-agent/internal/repository"
	"ozzus/netcheck-agent/internal/repository/kafka"
	"ozzus/netcheck-agent/internal/service"
	"ozzus/netcheck-agent/internal/session"
	"ozzus/netcheck-agent/internal/transport/ws"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// version задаётся при сборке через -ldflags "-X main.version=..."
var version = ""

func main() {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	// Загружаем конфигурацию
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("Failed to load config: %v", err)
	}
	if version != "" {
		cfg.Agent.Version = version
	}

	// Настраиваем логгер
	logg, logCloser := logger.Setup(cfg.Env, cfg.LogFile())
	defer logCloser.Close()

	if err := run(cfg, logg); err != nil {
		logg.Error("agent failed", sl.Err(err))
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	log.Info("starting application",
		slog.String("env", cfg.Env),
		slog.String("agent", cfg.Agent.Name),
		slog.String("version", cfg.Agent.Version),
	)

	var store credentials.Store
	if cfg.Agent.CredentialsPath != "" {
		store = credentials.NewFileStore(cfg.Agent.CredentialsPath)
	}

	opts, err := domainOptions(cfg, log, store)
	if err != nil {
		return err
	}

	sess := session.New(log, ws.NewDialer(log), opts)

	log.Debug("initializing checkers")
	checker := checks.NewChecker(log, cfg.CheckDefaults())
	executor := jobs.NewExecutor(log, checker, checker.Defaults())

	results, err := resultRepository(cfg, log)
	if err != nil {
		return err
	}
	defer results.Close()

	agentService := service.NewAgentService(log, opts, service.Deps{
		Session:     sess,
		Executor:    executor,
		Results:     results,
		Credentials: store,
		Version:     cfg.Agent.Version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	httpServer := startHealthServer(&wg, cfg, log, agentService)

	log.Info("application started",
		slog.String("server", opts.ServerURL()),
		slog.String("agent_id", opts.AgentName()),
	)

	runErr := agentService.Start(ctx)

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown failed", sl.Err(err))
		}
	}
	wg.Wait()

	if errors.Is(runErr, session.ErrReconnectAttemptsExhausted) {
		return runErr
	}
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}

	log.Info("agent stopped gracefully")
	return nil
}

func domainOptions(cfg *config.Config, log *slog.Logger, store credentials.Store) (domain.AgentOptions, error) {
	params := service.PreferStoredToken(log, store, cfg.AgentOptionsParams())

	opts, err := domain.NewAgentOptions(params)
	if err != nil {
		return domain.AgentOptions{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return opts, nil
}

func resultRepository(cfg *config.Config, log *slog.Logger) (repository.ResultRepository, error) {
	if !cfg.Kafka.Enabled {
		return repository.NopResultRepository{}, nil
	}
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		return nil, errors.New("kafka export enabled without brokers or topic")
	}

	log.Info("initializing Kafka result export",
		slog.Any("brokers", cfg.Kafka.Brokers),
		slog.String("topic", cfg.Kafka.Topic),
	)
	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	return repository.NewKafkaResultRepository(log, producer), nil
}

func startHealthServer(
	wg *sync.WaitGroup,
	cfg *config.Config,
	log *slog.Logger,
	agentService *service.AgentService,
) *nethttp.Server {
	if !cfg.Health.Enabled {
		return nil
	}

	if cfg.Env != logger.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	healthController := apihttp.NewHealthController(agentService, agentService.AgentName())
	router := apihttp.NewRouter(log, healthController)

	httpServer := &nethttp.Server{
		Addr:              ":" + cfg.Health.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("starting health server", slog.String("port", cfg.Health.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Error("HTTP server failed", sl.Err(err))
		}
	}()

	return httpServer
}
