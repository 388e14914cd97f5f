package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kestrel-run/agentcore/internal/asynctool"
	"github.com/kestrel-run/agentcore/internal/bus"
	"github.com/kestrel-run/agentcore/internal/cache"
	"github.com/kestrel-run/agentcore/internal/cacheredis"
	"github.com/kestrel-run/agentcore/internal/fork"
	"github.com/kestrel-run/agentcore/internal/llmprovider/anthropic"
	"github.com/kestrel-run/agentcore/internal/llmprovider/bedrock"
	"github.com/kestrel-run/agentcore/internal/looprunner"
	"github.com/kestrel-run/agentcore/internal/obslog"
	"github.com/kestrel-run/agentcore/internal/obsmetrics"
	"github.com/kestrel-run/agentcore/internal/obstrace"
	"github.com/kestrel-run/agentcore/internal/paralleltool"
	"github.com/kestrel-run/agentcore/internal/runtimeconfig"
	"github.com/kestrel-run/agentcore/internal/sessionmgr"
	"github.com/kestrel-run/agentcore/internal/step"
	"github.com/kestrel-run/agentcore/internal/stopctl"
	"github.com/kestrel-run/agentcore/internal/storagepg"
	"github.com/kestrel-run/agentcore/internal/toolexec"
	"github.com/kestrel-run/agentcore/internal/toolregistry"
	"github.com/kestrel-run/agentcore/pkg/models"
)

// asyncCache and lockCache narrow the cache collaborator down to what each
// consumer actually needs, so either cacheredis.Cache or cache.Memory can
// back them interchangeably.
type asyncCache = asynctool.Cache
type lockCache = sessionmgr.Cache

// runtime holds every wired-up component a CLI command drives. Close tears
// down the Postgres pool and Redis client.
type runtime struct {
	cfg       *runtimeconfig.Config
	logger    *slog.Logger
	store     *storagepg.Store
	redis     *redis.Client
	metrics   *obsmetrics.Metrics
	tracer    *obstrace.Tracer
	shutdownTracer func(context.Context) error

	bus       *bus.Bus
	stopCtl   *stopctl.Controller
	registry  *toolregistry.Registry
	tools     *toolexec.Executor
	parallel  *paralleltool.Executor
	async     *asynctool.Executor
	forkSys   *fork.Subsystem
	stepExec  *step.Executor
	sessions  *sessionmgr.Manager
	runner    *looprunner.Runner

	close func()
}

// buildRuntime loads configuration and constructs every component. configPath
// may be empty, in which case runtimeconfig.Default() is used.
func buildRuntime(ctx context.Context, configPath string, logFormat string) (*runtime, error) {
	cfg := runtimeconfig.Default()
	if configPath != "" {
		loaded, err := runtimeconfig.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("agentcored: loading config: %w", err)
		}
		cfg = loaded
	}

	logger := obslog.New(logFormat, slog.LevelInfo, os.Stderr)

	dsn := os.Getenv("AGENTCORE_DATABASE_URL")
	if dsn == "" {
		return nil, fmt.Errorf("agentcored: AGENTCORE_DATABASE_URL is required")
	}
	store, err := storagepg.Open(ctx, storagepg.DefaultConfig(dsn))
	if err != nil {
		return nil, fmt.Errorf("agentcored: opening storage: %w", err)
	}

	var asyncC asyncCache
	var lockC lockCache
	var rdb *redis.Client
	if redisURL := os.Getenv("AGENTCORE_REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("agentcored: parsing redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		redisCache := cacheredis.New(rdb)
		asyncC = redisCache
		lockC = redisCache
	} else {
		mem := cache.NewMemory()
		asyncC = mem
		lockC = mem
		logger.Warn("AGENTCORE_REDIS_URL not set, falling back to in-memory cache (single process only)")
	}

	metrics := obsmetrics.New()
	tracer, shutdownTracer := obstrace.New(nil, obstrace.Config{ServiceName: "agentcored"})

	b := bus.New(func(tag models.EventTag, err error) {
		logger.Error("event listener failed", "tag", tag, "error", err)
	}, logger)

	stopCtl := stopctl.New()
	registry := toolregistry.New(func(format string, args ...any) {
		logger.Warn(fmt.Sprintf(format, args...))
	})
	registerBuiltinTools(registry)

	toolsExec := toolexec.New(registry)
	parallelExec := paralleltool.New(toolsExec, retryableFromToolExec, b)
	asyncExec := asynctool.New(asyncC, b, time.Duration(cfg.Executor.DefaultTimeoutSeconds)*time.Second, cfg.Executor.MaxRetries)

	sessStore := sessionStoreAdapter{store: store}
	stepStoreA := stepStoreAdapter{store: store}
	forkStoreA := forkStoreAdapter{store: store}

	llm, err := buildLLMClient()
	if err != nil {
		store.Close()
		return nil, err
	}

	sessions := sessionmgr.New(sessStore, lockC, nil, b, logger, sessionmgr.Config{
		MaxSessionsPerUser: cfg.SessionManager.MaxSessionsPerUser,
		StaleAfter:         cfg.SessionManager.StaleAfter(),
		SweepInterval:      cfg.SessionManager.SweepInterval(),
		LockTTL:            10 * time.Second,
	})

	// runner is filled in below, once looprunner.New has run; runFn only
	// invokes it once a sub-agent task is actually dispatched, by which
	// time construction has finished.
	var runner *looprunner.Runner

	runFn := func(ctx context.Context, task *models.ForkAgentTask, opts fork.SubAgentOptions) (*models.TaskResult, error) {
		sub, err := sessions.Get(ctx, task.SubSessionID)
		if err != nil {
			return nil, fmt.Errorf("agentcored: loading sub-agent session: %w", err)
		}
		return runner.Run(ctx, sub, looprunner.Options{
			Tools:         registry.AsSchemaProjections(),
			MaxSteps:      task.StepCap,
			Timeout:       time.Duration(task.TimeoutSeconds) * time.Second,
			KnowledgeTopK: cfg.Loop.KnowledgeTopK,
		})
	}
	adapter := fork.NewInProcessAdapter(forkStoreA, runFn)
	forkSys := fork.New(forkStoreA, sessStore, nil, adapter, b, fork.Config{
		MaxDepth:             cfg.Fork.MaxDepth,
		CompressionThreshold: cfg.Fork.CompressionThreshold,
		DefaultMaxSteps:      cfg.Fork.DefaultMaxSteps,
		DefaultTimeoutSec:    cfg.Fork.DefaultTimeoutSec,
	})

	stepExec := step.New(stepStoreA, toolsExec, parallelExec, forkSys, sessions, b)

	runner = looprunner.New(
		llm,
		looprunner.NewDefaultPromptBuilder(),
		looprunner.NewDefaultResponseParser(),
		nil,
		sessions,
		stepStoreA,
		stepExec,
		stopCtl,
		b,
	)

	rt := &runtime{
		cfg: cfg, logger: logger, store: store, redis: rdb,
		metrics: metrics, tracer: tracer, shutdownTracer: shutdownTracer,
		bus: b, stopCtl: stopCtl, registry: registry, tools: toolsExec,
		parallel: parallelExec, async: asyncExec, forkSys: forkSys,
		stepExec: stepExec, sessions: sessions, runner: runner,
	}
	rt.close = func() {
		shutdownTracer(context.Background())
		store.Close()
		if rdb != nil {
			rdb.Close()
		}
	}
	return rt, nil
}

func retryableFromToolExec(err error) bool {
	var perr *toolexec.Error
	if errors.As(err, &perr) {
		return perr.CanRetry
	}
	return false
}

func buildLLMClient() (looprunner.LLMClient, error) {
	switch os.Getenv("AGENTCORE_LLM_PROVIDER") {
	case "bedrock":
		region := os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-1"
		}
		model := os.Getenv("AGENTCORE_LLM_MODEL")
		if model == "" {
			model = "anthropic.claude-3-5-sonnet-20241022-v2:0"
		}
		return bedrock.NewFromRegion(context.Background(), region, model, 4096)
	default:
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("agentcored: ANTHROPIC_API_KEY is required (or set AGENTCORE_LLM_PROVIDER=bedrock)")
		}
		model := os.Getenv("AGENTCORE_LLM_MODEL")
		if model == "" {
			model = "claude-sonnet-4-20250514"
		}
		return anthropic.NewFromAPIKey(apiKey, model, 4096)
	}
}

// registerBuiltinTools registers the small set of tools the demo CLI can
// exercise end to end without any external service.
func registerBuiltinTools(r *toolregistry.Registry) {
	_ = r.Register(&models.ToolDescriptor{
		Name:           "echo",
		Description:    "Echoes the text parameter back as the result.",
		Version:        "1.0.0",
		Category:       "demo",
		Risk:           models.RiskLow,
		TimeoutSeconds: 5,
		ParamSchema:    json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
		Handler: func(ctx context.Context, params json.RawMessage, tc models.ToolContext) (*models.ToolResult, error) {
			var in struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(params, &in); err != nil {
				return nil, err
			}
			return &models.ToolResult{Success: true, Result: in.Text, Summary: "echoed input"}, nil
		},
	})
}
