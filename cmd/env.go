package main

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coldreach/coldreach/internal/activity"
	"github.com/coldreach/coldreach/internal/company"
	"github.com/coldreach/coldreach/internal/contact"
	"github.com/coldreach/coldreach/internal/draft"
	"github.com/coldreach/coldreach/internal/ocr"
	"github.com/coldreach/coldreach/internal/pipeline"
	"github.com/coldreach/coldreach/internal/profile"
	"github.com/coldreach/coldreach/internal/quality"
	"github.com/coldreach/coldreach/internal/review"
	"github.com/coldreach/coldreach/internal/scrape"
	"github.com/coldreach/coldreach/internal/store"
	"github.com/coldreach/coldreach/internal/transport"
	anthropicpkg "github.com/coldreach/coldreach/pkg/anthropic"
	"github.com/coldreach/coldreach/pkg/hunter"
	"github.com/coldreach/coldreach/pkg/jina"
	"github.com/coldreach/coldreach/pkg/notion"
)

// appEnv holds the store and the components built on it. Pipeline is nil
// for commands that only read.
type appEnv struct {
	Store    store.Store
	Log      *activity.Log
	Profiles *profile.Store
	Pipeline *pipeline.Pipeline
	Review   *review.Queue // nil when Notion is not configured

	claude  anthropicpkg.Client
	reader  jina.Client
	closers []func() error
}

// Close releases everything the environment opened, store last.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close resource", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initStoreEnv opens and migrates the store and builds the read side.
func initStoreEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{
		Store:  st,
		Log:    activity.NewLog(st),
		claude: anthropicpkg.NewClient(cfg.Anthropic.Key),
		reader: jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL)),
	}
	env.Profiles = profile.NewStore(st, profile.NewLLMSummarizer(
		ocr.NewExtractor(cfg.OCR), env.reader, env.claude, cfg.Anthropic.ProfileModel, cfg.Anthropic.MaxTokens,
	))

	if cfg.Notion.Token != "" && cfg.Notion.ReviewDB != "" {
		q, err := review.NewQueue(notion.NewClient(cfg.Notion.Token), cfg.Notion.ReviewDB)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Review = q
	}
	return env, nil
}

// initPipeline builds the full outreach pipeline for the given mode ("run"
// or "serve"). Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key is required (COLDREACH_ANTHROPIC_KEY)")
	}
	if cfg.Hunter.Key == "" {
		return nil, eris.New("hunter key is required (COLDREACH_HUNTER_KEY)")
	}

	env, err := initStoreEnv(ctx)
	if err != nil {
		return nil, err
	}
	p, err := buildPipeline(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Pipeline = p
	return env, nil
}

func buildPipeline(ctx context.Context, env *appEnv) (*pipeline.Pipeline, error) {
	roles := contact.DefaultRolePriorities()
	if cfg.Pipeline.RolesFile != "" {
		var err error
		if roles, err = contact.LoadRolePriorities(cfg.Pipeline.RolesFile); err != nil {
			return nil, err
		}
	}
	hunterClient := hunter.NewClient(cfg.Hunter.Key,
		hunter.WithBaseURL(cfg.Hunter.BaseURL),
		hunter.WithRateLimit(cfg.Hunter.RPS),
	)
	resolver := contact.NewResolver(contact.NewHunterProvider(hunterClient, cfg.Hunter.Limit), roles)

	reserver, closeReserver, err := contact.NewReserver(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, closeReserver)

	gate, err := quality.NewGate(quality.NewHeuristic(), cfg.Pipeline.ScoreThreshold)
	if err != nil {
		return nil, err
	}
	ctrl, err := pipeline.NewController(
		draft.NewClaudeGenerator(env.claude, cfg.Anthropic.DraftModel, cfg.Anthropic.MaxTokens),
		gate,
		env.Log,
		pipeline.ControllerConfig{
			MaxAttempts:      cfg.Pipeline.MaxAttempts,
			GeneratorTimeout: cfg.Pipeline.GeneratorTimeout(),
			ScorerTimeout:    cfg.Pipeline.ScorerTimeout(),
		},
	)
	if err != nil {
		return nil, err
	}

	tr, err := transport.New(cfg)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Profiles:   env.Profiles,
		Companies:  company.NewWebSummarizer(scrape.NewChain(scrape.NewLocalScraper(), scrape.NewJinaAdapter(env.reader))),
		Resolver:   resolver,
		Selector:   contact.NewSelector(reserver, cfg.Pipeline.Cooldown()),
		Controller: ctrl,
		Sender:     pipeline.NewSendCoordinator(tr, env.Store, env.Log),
		Sessions:   env.Store,
		Log:        env.Log,
	}
	if env.Review != nil {
		deps.Review = env.Review
	} else {
		zap.L().Debug("notion review queue not configured, exhausted sessions stay local")
	}

	zap.L().Info("pipeline ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("transport", tr.Name()),
		zap.Int("max_attempts", cfg.Pipeline.MaxAttempts),
		zap.Float64("threshold", cfg.Pipeline.ScoreThreshold),
		zap.Duration("cooldown", cfg.Pipeline.Cooldown()),
		zap.Bool("shared_reservations", cfg.Redis.Addr != ""),
	)
	return pipeline.New(deps), nil
}

// storeNotFound reports whether err means a missing row.
func storeNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

const defaultRequestTimeout = 5 * time.Minute
