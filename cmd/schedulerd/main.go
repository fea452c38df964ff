// Command schedulerd runs the orcaci execution core: it loads pipeline
// definitions, connects to Postgres and the event bus, and drives the
// run scheduler's dispatch loop, completion consumer, and sweepers.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/orcaci/internal/api"
	"github.com/codeready-toolchain/orcaci/internal/bus"
	"github.com/codeready-toolchain/orcaci/internal/config"
	"github.com/codeready-toolchain/orcaci/internal/domain"
	"github.com/codeready-toolchain/orcaci/internal/notify"
	"github.com/codeready-toolchain/orcaci/internal/pipelineyaml"
	"github.com/codeready-toolchain/orcaci/internal/queue"
	"github.com/codeready-toolchain/orcaci/internal/scheduler"
	"github.com/codeready-toolchain/orcaci/internal/storage/postgres"
	"github.com/codeready-toolchain/orcaci/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config", getEnv("ORCACI_CONFIG", "./deploy/config/orcaci.yaml"), "path to schedulerd config file")
	flag.Parse()

	envPath := filepath.Join(filepath.Dir(*configPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("no .env file at %s, continuing with existing environment", envPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	slog.Info("starting schedulerd", "version", version.Full())

	cfg, err := config.Initialize(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, err := postgres.Open(ctx, postgres.Config{
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer store.Close()
	slog.Info("connected to postgres")

	natsBus, err := bus.ConnectNats(bus.NatsConfig{
		URLs:       cfg.Bus.URLs,
		StreamName: cfg.Bus.StreamName,
		MaxDeliver: cfg.Bus.MaxDeliver,
	})
	if err != nil {
		log.Fatalf("failed to connect to event bus: %v", err)
	}
	defer func() { _ = natsBus.Close() }()
	slog.Info("connected to event bus", "urls", cfg.Bus.URLs)

	pipelineRepo := postgres.NewPipelineRepository(store)
	runRepo := postgres.NewRunRepository(store)
	agentRepo := postgres.NewAgentRepository(store)
	approvalRepo := postgres.NewApprovalRepository(store)

	if cfg.Pipelines.Dir != "" {
		defs, err := pipelineyaml.Load(cfg.Pipelines.Dir)
		if err != nil {
			log.Fatalf("failed to load pipeline definitions: %v", err)
		}
		for _, p := range defs {
			existing, err := pipelineRepo.GetByName(ctx, p.Name)
			if err == nil {
				err = pipelineRepo.Update(ctx, existing.ID, p)
			} else {
				_, err = pipelineRepo.Create(ctx, p)
			}
			if err != nil {
				log.Fatalf("failed to upsert pipeline %q: %v", p.Name, err)
			}
		}
		slog.Info("loaded pipeline definitions", "count", len(defs), "dir", cfg.Pipelines.Dir)
	}

	limits := queue.Limits{Group: cfg.Scheduler.ConcurrencyLimits}
	if len(cfg.Scheduler.PipelineLimits) > 0 {
		limits.Pipeline = make(map[domain.ID]int, len(cfg.Scheduler.PipelineLimits))
		for name, limit := range cfg.Scheduler.PipelineLimits {
			p, err := pipelineRepo.GetByName(ctx, name)
			if err != nil {
				slog.Warn("pipeline_limits names unknown pipeline, ignoring", "pipeline", name, "error", err)
				continue
			}
			limits.Pipeline[p.ID] = limit
		}
	}

	sched := scheduler.New(pipelineRepo, runRepo, agentRepo, approvalRepo, natsBus, limits, scheduler.Config{
		DispatchWorkers:      cfg.Scheduler.DispatchWorkers,
		HeartbeatInterval:    time.Duration(cfg.Scheduler.HeartbeatIntervalSec) * time.Second,
		DispatchPollInterval: scheduler.DefaultConfig().DispatchPollInterval,
		CompletionGroup:      scheduler.DefaultConfig().CompletionGroup,
	})
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	if err := sched.SyncCronTriggers(ctx); err != nil {
		slog.Error("failed to sync cron triggers", "error", err)
	}

	if cfg.Slack != nil && cfg.Slack.Enabled {
		slackService := notify.NewService(notify.ServiceConfig{
			Token:        os.Getenv(cfg.Slack.TokenEnv),
			Channel:      cfg.Slack.Channel,
			DashboardURL: cfg.Slack.DashboardURL,
		})
		if slackService == nil {
			slog.Warn("slack notifications enabled but token/channel missing, skipping")
		} else {
			sub := notify.NewSubscriber(natsBus, slackService, runRepo)
			if err := sub.Start(ctx); err != nil {
				slog.Error("failed to start slack notification subscriber", "error", err)
			} else {
				slog.Info("slack notifications enabled", "channel", cfg.Slack.Channel)
			}
		}
	}

	srv := api.NewServer(sched, agentRepo, store)
	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: srv.Engine()}
	go func() {
		slog.Info("ops http server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ops http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	_ = httpServer.Shutdown(context.Background())
}
