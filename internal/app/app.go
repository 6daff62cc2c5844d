// Package app assembles the assistant from a Config. It is shared by the
// Lambda entry point and the command-line tool.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"citizen-assistant/handler"
	"citizen-assistant/internal/actions"
	"citizen-assistant/internal/analyzer"
	"citizen-assistant/internal/config"
	"citizen-assistant/internal/directory"
	"citizen-assistant/internal/integrations/directoryapi"
	"citizen-assistant/internal/integrations/paramstore"
	"citizen-assistant/internal/metrics"
	"citizen-assistant/internal/patterns"
	"citizen-assistant/internal/policy"
	"citizen-assistant/internal/proactive"
	"citizen-assistant/internal/repository"
	"citizen-assistant/internal/usecase"
)

const metricsNamespace = "assistant"

type App struct {
	Assistant *usecase.Assistant
	Handler   *handler.Handler
	Metrics   *metrics.Collector
	Store     usecase.ConversationStore
	Directory directory.Directory

	closers []func() error
}

type Option func(*builder)

// WithAWSConfig supplies the AWS configuration instead of loading the
// default chain on first use.
func WithAWSConfig(cfg aws.Config) Option {
	return func(b *builder) { b.aws = &cfg }
}

// WithRedisClient supplies the client used by the redis store backend.
func WithRedisClient(client redis.UniversalClient) Option {
	return func(b *builder) { b.redis = client }
}

// WithClock fixes the time used by the demo directory and the assistant.
func WithClock(now func() time.Time) Option {
	return func(b *builder) {
		if now != nil {
			b.now = now
		}
	}
}

type builder struct {
	cfg    config.Config
	logger *zap.Logger
	aws    *aws.Config
	redis  redis.UniversalClient
	params *paramstore.Client
	now    func() time.Time
}

// New builds every component named by cfg. AWS clients are only created
// for the backends that need them.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		return nil, errors.New("app: registerer must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &builder{cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}

	a := &App{}
	store, err := b.store(ctx, a)
	if err != nil {
		return nil, err
	}
	a.Store = store

	tables, err := b.patterns(ctx)
	if err != nil {
		return nil, err
	}
	dir, err := b.directory(ctx)
	if err != nil {
		return nil, err
	}
	a.Directory = dir

	an, err := analyzer.New(tables)
	if err != nil {
		return nil, fmt.Errorf("app: analyzer: %w", err)
	}
	rules := proactive.NewEngine(
		proactive.WithRules(proactive.DefaultRules(cfg.Proactive)),
		proactive.WithLogger(logger),
	)
	pol, err := policy.New(dir, an, policy.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("app: policy: %w", err)
	}
	dispatcher, err := actions.New(dir,
		actions.WithAssessor(cfg.Directory.Assessor),
		actions.WithWindows(cfg.Proactive),
		actions.WithClock(b.now),
		actions.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app: actions: %w", err)
	}

	a.Metrics = metrics.NewCollector(metricsNamespace, reg)
	a.Assistant, err = usecase.NewAssistant(an, rules, pol, store, dir, dispatcher,
		usecase.WithMetrics(a.Metrics),
		usecase.WithLogger(logger),
		usecase.WithClock(b.now),
	)
	if err != nil {
		return nil, fmt.Errorf("app: assistant: %w", err)
	}
	a.Handler, err = handler.NewHandler(a.Assistant, handler.WithMetrics(a.Metrics), handler.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("app: handler: %w", err)
	}

	logger.Info("assistant ready",
		zap.String("store", cfg.Store.Backend),
		zap.Bool("remote_directory", cfg.Directory.BaseURL != ""),
		zap.Strings("actions", dispatcher.Names()))
	return a, nil
}

// Close releases connections opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sweep evicts idle conversations from the memory store. Other backends
// expire entries themselves and report zero.
func (a *App) Sweep() int {
	if m, ok := a.Store.(*repository.MemoryStore); ok {
		return m.Sweep()
	}
	return 0
}

func (b *builder) awsConfig(ctx context.Context) (aws.Config, error) {
	if b.aws != nil {
		return *b.aws, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("app: load AWS config: %w", err)
	}
	b.aws = &cfg
	return cfg, nil
}

func (b *builder) paramStore(ctx context.Context) (*paramstore.Client, error) {
	if b.params != nil {
		return b.params, nil
	}
	awsCfg, err := b.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg), paramstore.WithCacheTTL(b.cfg.Params.CacheTTL))
	if err != nil {
		return nil, fmt.Errorf("app: paramstore: %w", err)
	}
	b.params = ps
	return ps, nil
}

func (b *builder) store(ctx context.Context, a *App) (usecase.ConversationStore, error) {
	sc := b.cfg.Store
	switch sc.Backend {
	case config.BackendDynamoDB:
		awsCfg, err := b.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		store, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), sc.Table, repository.WithDynamoTTL(sc.TTL))
		if err != nil {
			return nil, fmt.Errorf("app: dynamodb store: %w", err)
		}
		return store, nil
	case config.BackendRedis:
		client := b.redis
		if client == nil {
			owned := redis.NewClient(&redis.Options{
				Addr:     sc.Redis.Addr,
				Password: sc.Redis.Password,
				DB:       sc.Redis.DB,
			})
			a.closers = append(a.closers, owned.Close)
			client = owned
		}
		store, err := repository.NewRedisStore(client,
			repository.WithRedisKeyPrefix(sc.Redis.KeyPrefix),
			repository.WithRedisTTL(sc.TTL))
		if err != nil {
			return nil, fmt.Errorf("app: redis store: %w", err)
		}
		if err := store.Ping(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app: redis store: %w", err)
		}
		return store, nil
	default:
		return repository.NewMemoryStore(sc.TTL), nil
	}
}

func (b *builder) patterns(ctx context.Context) (*patterns.Tables, error) {
	pc := b.cfg.Patterns
	switch {
	case pc.File != "":
		t, err := patterns.LoadFile(pc.File)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return t, nil
	case pc.Parameter != "":
		ps, err := b.paramStore(ctx)
		if err != nil {
			return nil, err
		}
		t, err := patterns.LoadParameter(ctx, ps, b.cfg.PatternParameterName())
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		return t, nil
	default:
		return patterns.Default(), nil
	}
}

func (b *builder) directory(ctx context.Context) (directory.Directory, error) {
	dc := b.cfg.Directory
	if dc.BaseURL == "" {
		return directory.NewDemo(b.now(), directory.WithClock(b.now)), nil
	}
	ps, err := b.paramStore(ctx)
	if err != nil {
		return nil, err
	}
	client, err := directoryapi.NewClient(dc.BaseURL, ps, b.cfg.Params.Prefix,
		directoryapi.WithRateLimit(dc.RateLimit, dc.Burst),
		directoryapi.WithClock(b.now))
	if err != nil {
		return nil, fmt.Errorf("app: directory client: %w", err)
	}
	return client, nil
}
