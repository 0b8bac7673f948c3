package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ultraflow/internal/aiengine"
	"ultraflow/internal/extract"
	"ultraflow/internal/gateway/config"
	"ultraflow/internal/gateway/handler"
	"ultraflow/internal/gateway/handler/rpc"
	"ultraflow/internal/gateway/server"
	"ultraflow/internal/gateway/service/flowchart"
	"ultraflow/internal/llm"
	"ultraflow/internal/llmclient"
	"ultraflow/internal/observability"
	"ultraflow/internal/pipeline"
	"ultraflow/internal/render"
)

type App struct {
	cfg    *config.Config
	logger *zap.Logger
	engine *aiengine.Engine
	server *server.Server
}

func New(ctx context.Context, args []string) (*App, error) {
	cfg, err := config.Load(args)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	a, err := Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// Build wires every component from an already loaded config.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	metrics := observability.NewCollector("ultraflow")

	reg, err := aiengine.BuildRegistry(aiengine.ProviderSettings{
		Gemini:     llmclient.ProviderOptions{APIKey: cfg.LLM.GeminiAPIKey, Tier: cfg.LLM.GeminiTier},
		Groq:       llmclient.ProviderOptions{APIKey: cfg.LLM.GroqAPIKey, Tier: cfg.LLM.GroqTier, BaseURL: cfg.LLM.GroqBaseURL},
		ModelsFile: cfg.LLM.ModelsFile,
	})
	if err != nil {
		return nil, err
	}

	engine, err := aiengine.New(ctx, reg, engineConfig(cfg.LLM),
		aiengine.WithLogger(logger.Named("llm")),
		aiengine.WithRecorder(metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise %s backend: %w", cfg.LLM.Provider, err)
	}
	provider, model := engine.DefaultModel()
	logger.Info("llm backend selected", zap.String("provider", provider), zap.String("model", model))

	extractor := extract.New(engine,
		extract.WithLogger(logger.Named("extract")),
		extract.WithMaxReprompts(cfg.Extract.MaxReprompts),
		extract.WithDropRecorder(metrics))
	exec := pipeline.New(extractor, render.New(renderOptions(cfg.Render)...),
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithRecorder(metrics))
	svc := flowchart.New(exec, logger)

	rpcPath, rpcHandler := rpc.NewServiceHandler(rpc.NewFlowchartHandler(svc, logger.Named("rpc")))
	h := handler.New(svc, engine, logger.Named("http"))
	router := h.Router(handler.RouterDeps{
		Metrics:        metrics.Handler(),
		RPCPath:        rpcPath,
		RPC:            rpcHandler,
		HTTPRecorder:   metrics,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	return &App{
		cfg:    cfg,
		logger: logger,
		engine: engine,
		server: server.New(cfg.Port, router, logger),
	}, nil
}

func renderOptions(c config.RenderConfig) []render.Option {
	var opts []render.Option
	if c.InitDirective != "" {
		opts = append(opts, render.WithInitDirective(c.InitDirective))
	}
	if c.Indent > 0 {
		opts = append(opts, render.WithIndent(strings.Repeat(" ", c.Indent)))
	}
	return opts
}

func engineConfig(c config.LLMConfig) aiengine.Config {
	out := aiengine.Config{
		Provider:    c.Provider,
		Model:       c.Model,
		Level:       llmclient.ModelLevel(c.Level),
		Timeout:     c.Timeout,
		MaxAttempts: c.MaxAttempts,
		RetryDelay:  c.RetryDelay,
		RPS:         c.RPS,
		Burst:       c.Burst,
	}
	if c.Breaker.Enabled {
		b := llm.DefaultBreakerConfig("")
		b.FailureThreshold = c.Breaker.FailureThreshold
		b.MinRequests = c.Breaker.MinRequests
		b.Timeout = c.Breaker.OpenTimeout
		out.Breaker = &b
	}
	return out
}

func (a *App) Logger() *zap.Logger { return a.logger }

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if cerr := a.engine.Close(); cerr != nil && err == nil {
		err = cerr
	}
	_ = a.logger.Sync()
	return err
}
