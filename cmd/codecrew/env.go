package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/dshills/codecrew/internal/config"
	"github.com/dshills/codecrew/internal/telemetry"
	"github.com/dshills/codecrew/workflow"
	"github.com/dshills/codecrew/workflow/emit"
	"github.com/dshills/codecrew/workflow/luaselect"
	"github.com/dshills/codecrew/workflow/model"
	"github.com/dshills/codecrew/workflow/model/anthropic"
	"github.com/dshills/codecrew/workflow/model/google"
	"github.com/dshills/codecrew/workflow/model/ollama"
	"github.com/dshills/codecrew/workflow/model/openai"
	"github.com/dshills/codecrew/workflow/store"
)

// env is everything a command needs to build coordinators.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *workflow.Registry
	chat     model.ChatModel
	// roleChats holds the per-role model overrides.
	roleChats map[string]model.ChatModel
	selector  workflow.Selector
	store     store.Store
	metrics   *workflow.PrometheusMetrics
	costs     *workflow.CostTracker
	emitter   emit.Emitter

	// metricsAddr is the bound metrics listener address, if any.
	metricsAddr string
	closers     []func(context.Context) error
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.maxIterations > 0 {
		cfg.Workflow.MaxIterations = flags.maxIterations
	}
	if flags.provider != "" {
		cfg.Model.Provider = flags.provider
	}
	if flags.model != "" {
		cfg.Model.Name = flags.model
	}
	if flags.metricsAddr != "" {
		cfg.Metrics.Addr = flags.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setupEnv wires the configured collaborators. Logs go to logOut. Call
// Close when done.
func setupEnv(cfg *config.Config, logOut io.Writer) (_ *env, err error) {
	e := &env{
		cfg:    cfg,
		logger: telemetry.NewLogger(logOut, cfg.Log.Level, cfg.Log.Format),
		costs:  workflow.NewCostTracker(),
	}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	if cfg.Roles.File != "" {
		e.registry, err = workflow.LoadRolesFile(cfg.Roles.File)
		if err != nil {
			return nil, err
		}
	} else {
		e.registry = workflow.DefaultRegistry()
	}

	e.chat, err = newChatModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	if err := e.setupRoleModels(); err != nil {
		return nil, err
	}

	if err := e.setupSelector(); err != nil {
		return nil, err
	}
	if err := e.setupStore(); err != nil {
		return nil, err
	}
	if err := e.setupMetrics(); err != nil {
		return nil, err
	}

	emitters := emit.Multi{emit.NewLogEmitter(e.logger)}
	if cfg.Tracing.Enabled {
		tp, shutdown, err := telemetry.NewTracerProvider(os.Stderr, "codecrew", version)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		e.closers = append(e.closers, shutdown)
		emitters = append(emitters, emit.NewOTelEmitter(tp.Tracer("codecrew")))
	}
	e.emitter = emitters

	return e, nil
}

// newChatModel builds the binding named by cfg.Provider.
func newChatModel(cfg config.ModelConfig) (model.ChatModel, error) {
	key := cfg.ResolveAPIKey()
	needKey := func() error {
		if key == "" {
			return fmt.Errorf("model.api_key is required for provider %s", cfg.Provider)
		}
		return nil
	}

	switch cfg.Provider {
	case "ollama":
		return ollama.NewChatModel(cfg.BaseURL, cfg.Name), nil
	case "openai":
		if err := needKey(); err != nil {
			return nil, err
		}
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.NewChatModel(key, cfg.Name, opts...), nil
	case "gemini":
		if err := needKey(); err != nil {
			return nil, err
		}
		base := cfg.BaseURL
		if base == "" {
			base = openai.GeminiBaseURL
		}
		name := cfg.Name
		if name == "" {
			name = "gemini-2.5-flash-lite"
		}
		return openai.NewChatModel(key, name, openai.WithBaseURL(base)), nil
	case "anthropic":
		if err := needKey(); err != nil {
			return nil, err
		}
		return anthropic.NewChatModel(key, cfg.Name), nil
	case "google":
		if err := needKey(); err != nil {
			return nil, err
		}
		return google.NewChatModel(key, cfg.Name), nil
	}
	return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
}

// setupRoleModels builds the models of roles.models. Overrides inherit
// unset fields from the role model.
func (e *env) setupRoleModels() error {
	e.roleChats = make(map[string]model.ChatModel, len(e.cfg.Roles.Models))
	for name, mc := range e.cfg.Roles.Models {
		if _, ok := e.registry.Lookup(name); !ok {
			return fmt.Errorf("roles.models: %w: %q", workflow.ErrUnknownRole, name)
		}
		m, err := newChatModel(mc.Inherit(e.cfg.Model))
		if err != nil {
			return fmt.Errorf("roles.models.%s: %w", name, err)
		}
		e.roleChats[name] = m
	}
	return nil
}

func (e *env) setupSelector() error {
	switch e.cfg.Selector.Kind {
	case "model":
		chat := e.chat
		if e.cfg.Selector.Model.Provider != "" {
			m, err := newChatModel(e.cfg.Selector.Model.Inherit(e.cfg.Model))
			if err != nil {
				return fmt.Errorf("selector.model: %w", err)
			}
			chat = m
		}
		e.selector = workflow.NewModelSelector(chat)
	case "lua":
		sel, err := luaselect.NewFromFile(e.cfg.Selector.Script, luaselect.WithLogger(e.logger))
		if err != nil {
			return err
		}
		e.closers = append(e.closers, func(context.Context) error {
			sel.Close()
			return nil
		})
		e.selector = sel
	default:
		e.selector = workflow.LinearSelector{}
	}
	return nil
}

func (e *env) setupStore() error {
	switch e.cfg.Store.Driver {
	case "sqlite":
		s, err := store.NewSQLiteStore(e.cfg.Store.DSN)
		if err != nil {
			return err
		}
		e.store = s
	case "mysql":
		s, err := store.NewMySQLStore(e.cfg.Store.DSN)
		if err != nil {
			return err
		}
		e.store = s
	default:
		e.store = store.NewMemStore()
	}
	st := e.store
	e.closers = append(e.closers, func(context.Context) error { return st.Close() })
	return nil
}

// setupMetrics registers workflow metrics on a private registry and serves
// them when metrics.addr is set.
func (e *env) setupMetrics() error {
	reg := prometheus.NewRegistry()
	e.metrics = workflow.NewPrometheusMetrics(reg)
	if e.cfg.Metrics.Addr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", e.cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	e.metricsAddr = ln.Addr().String()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server", "error", err)
		}
	}()
	e.logger.Info("serving metrics", "addr", e.metricsAddr)
	e.closers = append(e.closers, srv.Shutdown)
	return nil
}

// coordinator builds a coordinator with the given message cap; zero uses
// the configured cap.
func (e *env) coordinator(maxIterations int) (*workflow.Coordinator, error) {
	if maxIterations == 0 {
		maxIterations = e.cfg.Workflow.MaxIterations
	}
	wf := e.cfg.Workflow
	return workflow.New(e.registry, e.invoker(),
		workflow.WithMaxIterations(maxIterations),
		workflow.WithCompletionToken(wf.CompletionToken),
		workflow.WithTurnTimeout(wf.TurnTimeout),
		workflow.WithRetryPolicy(workflow.RetryPolicy{
			MaxAttempts: wf.Retry.MaxAttempts,
			BaseDelay:   wf.Retry.BaseDelay,
			MaxDelay:    wf.Retry.MaxDelay,
		}),
		workflow.WithSelector(e.selector),
		workflow.WithStore(e.store),
		workflow.WithMetrics(e.metrics),
		workflow.WithCostTracker(e.costs),
		workflow.WithEmitter(e.emitter),
		workflow.WithLogger(e.logger),
	)
}

// invoker sends every role to the role model, except roles with an
// override in roles.models.
func (e *env) invoker() workflow.Invoker {
	def := workflow.NewModelInvoker(e.chat)
	if len(e.roleChats) == 0 {
		return def
	}
	router := workflow.NewPerRoleInvoker(def)
	for name, m := range e.roleChats {
		router.Route(name, workflow.NewModelInvoker(m))
	}
	return router
}

// Close releases collaborators in reverse order of creation.
func (e *env) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			e.logger.Warn("shutdown", "error", err)
		}
	}
	e.closers = nil
}
