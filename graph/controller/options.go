package controller

import (
	"errors"
	"log/slog"
	"time"

	"github.com/dshills/agentpipe/graph"
	"github.com/dshills/agentpipe/graph/emit"
	"github.com/dshills/agentpipe/graph/model/provider"
	"github.com/dshills/agentpipe/graph/nodes"
	"github.com/dshills/agentpipe/graph/tool"
)

// DefaultMaxMessages is the number of conversation turns kept per task.
const DefaultMaxMessages = 10

// Option configures a Controller.
//
//	ctrl, err := controller.New(st, selector,
//	    controller.WithEmitter(emit.NewLogEmitter(os.Stderr, false)),
//	    controller.WithMetrics(metrics),
//	    controller.WithMaxMessages(20),
//	)
type Option func(*config) error

type config struct {
	emitters     []emit.Emitter
	metrics      *graph.PrometheusMetrics
	logger       *slog.Logger
	now          func() time.Time
	maxMessages  int
	models       provider.Factory
	toolExecutor func(sb *tool.Sandbox) (*tool.Executor, error)
	compiler     *graph.PlanCompiler
	newRegistry  func(nodes.Deps) graph.Registry
	newTaskID    func() string
	newRunID     func() string
	catalogPath  string
	modelDir     string
}

// WithEmitter adds a trace emitter. Events always go to the decision log
// first; added emitters receive them afterwards in the order given.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *config) error {
		if e == nil {
			return errors.New("emitter must not be nil")
		}
		cfg.emitters = append(cfg.emitters, e)
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
func WithMetrics(m *graph.PrometheusMetrics) Option {
	return func(cfg *config) error {
		cfg.metrics = m
		return nil
	}
}

// WithLogger sets the logger for swallowed secondary failures. The default
// discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) error {
		if l == nil {
			return errors.New("logger must not be nil")
		}
		cfg.logger = l
		return nil
	}
}

// WithClock replaces time.Now for trace offsets and node latency.
func WithClock(now func() time.Time) Option {
	return func(cfg *config) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}
		cfg.now = now
		return nil
	}
}

// WithMaxMessages sets how many conversation turns a task retains.
//
// Default: 10.
func WithMaxMessages(n int) Option {
	return func(cfg *config) error {
		if n <= 0 {
			return errors.New("max messages must be positive")
		}
		cfg.maxMessages = n
		return nil
	}
}

// WithModelFactory sets how the LLM worker builds chat models. The default
// is provider.Env.
func WithModelFactory(f provider.Factory) Option {
	return func(cfg *config) error {
		cfg.models = f
		return nil
	}
}

// WithToolExecutor sets how the tool node builds an executor for a
// sandbox. The default registers the file tools.
func WithToolExecutor(build func(sb *tool.Sandbox) (*tool.Executor, error)) Option {
	return func(cfg *config) error {
		cfg.toolExecutor = build
		return nil
	}
}

// WithCompiler replaces the plan compiler.
func WithCompiler(c *graph.PlanCompiler) Option {
	return func(cfg *config) error {
		if c == nil {
			return errors.New("compiler must not be nil")
		}
		cfg.compiler = c
		return nil
	}
}

// WithNodeRegistry replaces the per-run node registry constructor. build
// is called once per Run.
func WithNodeRegistry(build func(nodes.Deps) graph.Registry) Option {
	return func(cfg *config) error {
		if build == nil {
			return errors.New("registry constructor must not be nil")
		}
		cfg.newRegistry = build
		return nil
	}
}

// WithIDGenerators replaces the task and run id generators. A nil
// argument keeps the default.
func WithIDGenerators(taskID, runID func() string) Option {
	return func(cfg *config) error {
		if taskID != nil {
			cfg.newTaskID = taskID
		}
		if runID != nil {
			cfg.newRunID = runID
		}
		return nil
	}
}

// WithCatalogLocation sets the catalog path and model directory named in
// the missing-model message.
//
// Default: models/models.yaml and models/.
func WithCatalogLocation(catalogPath, modelDir string) Option {
	return func(cfg *config) error {
		cfg.catalogPath = catalogPath
		cfg.modelDir = modelDir
		return nil
	}
}
