// Command autoflow runs the workflow engine against its production backends:
// MongoDB for workflow and execution storage, Redis for locks, the hot
// execution cache, AI quotas, and Pulse event streams. On boot it recovers
// executions that were paused when the previous process stopped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"goa.design/clue/health"
	"goa.design/clue/log"

	"github.com/autoflowhq/autoflow/config"
	"github.com/autoflowhq/autoflow/features/ai/anthropic"
	"github.com/autoflowhq/autoflow/features/ai/openai"
	"github.com/autoflowhq/autoflow/features/ai/quota"
	"github.com/autoflowhq/autoflow/features/ai/router"
	cacheredis "github.com/autoflowhq/autoflow/features/cache/redis"
	eventspulse "github.com/autoflowhq/autoflow/features/events/pulse"
	executionmongo "github.com/autoflowhq/autoflow/features/execution/mongo"
	lockredis "github.com/autoflowhq/autoflow/features/lock/redis"
	workflowmongo "github.com/autoflowhq/autoflow/features/workflow/mongo"
	"github.com/autoflowhq/autoflow/runtime/engine"
	"github.com/autoflowhq/autoflow/runtime/hooks"
	"github.com/autoflowhq/autoflow/runtime/model"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/node/builtin"
	"github.com/autoflowhq/autoflow/runtime/telemetry"
)

func main() {
	var (
		configF   = flag.String("config", "", "Path to the YAML configuration file")
		httpPortF = flag.String("http-port", "8080", "HTTP port for health endpoints")
		dbgF      = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg, err := config.Load(*configF)
	if err != nil {
		log.Fatal(ctx, err, log.KV{K: "msg", V: "load configuration"})
	}

	// Shared connections.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	mongoClient, err := mongodriver.Connect(connectCtx, mongooptions.Client().ApplyURI(cfg.Mongo.URI))
	cancel()
	if err != nil {
		log.Fatal(ctx, err, log.KV{K: "msg", V: "connect mongo"})
	}
	defer func() {
		_ = mongoClient.Disconnect(context.Background())
	}()

	// Stores, lock, and cache.
	workflows, err := workflowmongo.New(workflowmongo.Options{
		Client:   mongoClient,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal(ctx, err, log.KV{K: "msg", V: "workflow store"})
	}
	executions, err := executionmongo.New(executionmongo.Options{
		Client:   mongoClient,
		Database: cfg.Mongo.Database,
	})
	if err != nil {
		log.Fatal(ctx, err, log.KV{K: "msg", V: "execution store"})
	}
	logger := telemetry.NewClueLogger()
	locker, err := lockredis.New(lockredis.Options{
		Client:         rdb,
		TTL:            cfg.Engine.LockTTL,
		AcquireTimeout: cfg.Engine.LockAcquireTimeout,
		Logger:         logger,
	})
	if err != nil {
		log.Fatal(ctx, err, log.KV{K: "msg", V: "redis locker"})
	}
	hotCache, err := cacheredis.New(rdb)
	if err != nil {
		log.Fatal(ctx, err, log.KV{K: "msg", V: "redis cache"})
	}

	// Event bus and the Pulse stream forwarder.
	bus := hooks.NewBus()
	pulseClient, err := eventspulse.New(eventspulse.Options{Redis: rdb})
	if err != nil {
		log.Fatal(ctx, err, log.KV{K: "msg", V: "pulse client"})
	}
	forwarder, err := eventspulse.NewForwarder(eventspulse.ForwarderOptions{
		Client: pulseClient,
		Logger: logger,
	})
	if err != nil {
		log.Fatal(ctx, err, log.KV{K: "msg", V: "pulse forwarder"})
	}
	fwdSub, err := forwarder.Attach(bus)
	if err != nil {
		log.Fatal(ctx, err, log.KV{K: "msg", V: "attach forwarder"})
	}
	defer fwdSub.Close()

	// Node handlers.
	deps := builtin.Deps{Bus: bus, Logger: logger}
	if len(cfg.AI.Providers) > 0 {
		ai, err := buildRouter(ctx, cfg, rdb, logger)
		if err != nil {
			log.Fatal(ctx, err, log.KV{K: "msg", V: "ai router"})
		}
		deps.AI = router.NewNodeClient(ai)
	}
	registry := node.NewRegistry()
	if err := builtin.Register(registry, deps); err != nil {
		log.Fatal(ctx, err, log.KV{K: "msg", V: "register handlers"})
	}

	eng, err := engine.New(engine.Options{
		Workflows:  workflows,
		Executions: executions,
		Cache:      hotCache,
		Locker:     locker,
		Registry:   registry,
		Bus:        bus,
		Logger:     logger,
		Metrics:    telemetry.NewClueMetrics(),
		CacheTTL:   cfg.Engine.CacheTTL,
	})
	if err != nil {
		log.Fatal(ctx, err, log.KV{K: "msg", V: "engine"})
	}
	defer eng.Close()

	if err := eng.Recover(ctx); err != nil {
		log.Fatal(ctx, err, log.KV{K: "msg", V: "boot recovery"})
	}

	// Health endpoints.
	checker := health.NewChecker(workflows, executions, hotCache)
	mux := http.NewServeMux()
	mux.Handle("/healthz", health.Handler(checker))
	mux.Handle("/livez", health.Handler(health.NewChecker()))
	srv := &http.Server{Addr: ":" + *httpPortF, Handler: mux}
	go func() {
		log.Print(ctx, log.KV{K: "msg", V: "health endpoints listening"},
			log.KV{K: "addr", V: srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, err, log.KV{K: "msg", V: "health server"})
		}
	}()

	log.Print(ctx, log.KV{K: "msg", V: "engine ready"},
		log.KV{K: "mongo", V: cfg.Mongo.Database},
		log.KV{K: "redis", V: cfg.Redis.Addr})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Print(ctx, log.KV{K: "msg", V: "shutting down"})
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// buildRouter assembles the AI provider fleet from the configuration, sharing
// the Redis connection for cross-replica quota accounting.
func buildRouter(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger telemetry.Logger) (*router.Router, error) {
	var providers []router.Provider
	for name, pc := range cfg.AI.Providers {
		var (
			client model.Client
			err    error
		)
		switch name {
		case "openai":
			client, err = openai.NewFromAPIKey(pc.APIKey, pc.Model)
		case "anthropic":
			client, err = anthropic.NewFromAPIKey(pc.APIKey, pc.Model)
		default:
			log.Print(ctx, log.KV{K: "msg", V: "skipping unknown ai provider"},
				log.KV{K: "provider", V: name})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		providers = append(providers, router.Provider{
			Name:                 name,
			Client:               client,
			DailyTokenLimit:      pc.DailyTokenLimit,
			RequestsPerMinute:    pc.RequestsPerMinute,
			CostPerMillionTokens: pc.CostPerMillionTokens,
			Fallbacks:            pc.Fallbacks,
		})
	}
	policy := make(map[router.TaskType]string, len(cfg.AI.Policy))
	for task, provider := range cfg.AI.Policy {
		policy[router.TaskType(task)] = provider
	}
	quotas, err := quota.NewRedis(rdb)
	if err != nil {
		return nil, err
	}
	return router.New(router.Config{
		Providers: providers,
		Policy:    policy,
		Default:   cfg.AI.DefaultProvider,
		Quota:     quotas,
		Logger:    logger,
	})
}
