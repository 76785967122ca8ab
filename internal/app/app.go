package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"royalties/internal/catalog"
	"royalties/internal/config"
	"royalties/internal/distribution"
	"royalties/internal/jobs"
	"royalties/internal/logging"
	"royalties/internal/matching"
	"royalties/internal/notifications"
	"royalties/internal/processor"
	"royalties/internal/review"
	"royalties/internal/services/cohere"
	"royalties/internal/services/llm"
	"royalties/internal/statement"
	"royalties/internal/store"
)

// App holds the wired services for one process.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Store        *store.Store
	Cache        *catalog.Cache
	Bus          *catalog.Bus
	Redis        *redis.Client
	Engine       *matching.Engine
	Review       *review.Queue
	Distribution *distribution.Service
	Processor    *processor.Processor
	Jobs         *jobs.Manager
	Embedder     *cohere.Embedder
	Notifier     notifications.Service
}

// New opens the store and builds every service described by cfg.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, Store: st, Notifier: notifications.NewService(cfg)}

	if cfg.RedisEnabled() {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	a.Cache = catalog.NewCache(st,
		catalog.WithTTL(cfg.CacheTTL()),
		catalog.WithShareTolerance(cfg.Distribution.ShareTolerance),
		catalog.WithLogger(logger),
	)
	a.Bus = catalog.NewBus(a.Redis, cfg.Redis.InvalidationChannel, a.Cache, logger)

	engine, embedder, err := buildEngine(cfg, a.Cache, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = engine
	a.Embedder = embedder

	a.Review = review.NewQueue(st, review.WithLogger(logger))
	a.Distribution = distribution.NewService(
		distribution.NewCalculator(
			distribution.WithTolerance(cfg.Distribution.ShareTolerance),
			distribution.WithLogger(logger),
		),
		st,
	)

	procOpts := []processor.Option{
		processor.WithBatchSize(cfg.Processing.BatchSize),
		processor.WithConcurrency(cfg.Processing.Concurrency),
		processor.WithLogger(logger),
	}
	if cfg.Processing.CalculateDistributions {
		procOpts = append(procOpts, processor.WithDistributor(a.Distribution))
	}
	a.Processor = processor.New(st, a.Cache, a.Engine, a.Review, procOpts...)

	var locker jobs.Locker = jobs.NewLocalLocker()
	if a.Redis != nil {
		locker = jobs.NewRedisLocker(a.Redis, time.Duration(cfg.Redis.LockTTLSeconds)*time.Second)
	}
	a.Jobs = jobs.NewManager(st, a.processJob,
		jobs.WithLocker(locker),
		jobs.WithLogger(logger),
		jobs.WithWorkers(cfg.Workflow.Workers),
		jobs.WithPollInterval(time.Duration(cfg.Workflow.QueuePollInterval)*time.Second),
		jobs.WithErrorRetryInterval(time.Duration(cfg.Workflow.ErrorRetryInterval)*time.Second),
		jobs.WithHeartbeat(
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		jobs.WithTaskTimeout(cfg.TaskTimeout()),
	)
	return a, nil
}

func buildEngine(cfg *config.Config, cache *catalog.Cache, logger *slog.Logger) (*matching.Engine, *cohere.Embedder, error) {
	opts := []matching.Option{matching.WithLogger(logger)}
	var embedder *cohere.Embedder
	if cfg.Matching.SemanticEnabled {
		switch cfg.Embeddings.Provider {
		case config.EmbeddingsCohere:
			var err error
			embedder, err = cohere.New(cohere.Config{
				APIKey:         cfg.Embeddings.APIKey,
				Model:          cfg.Embeddings.Model,
				TimeoutSeconds: cfg.Embeddings.TimeoutSeconds,
			})
			if err != nil {
				return nil, nil, err
			}
			opts = append(opts, matching.WithCandidateSource(
				matching.NewEmbeddingSource(embedder, matching.NewSnapshotIndex(cache)),
			))
		case config.EmbeddingsFingerprint:
			opts = append(opts, matching.WithCandidateSource(matching.NewFingerprintSource()))
		}
	}
	if cfg.Matching.RerankEnabled {
		llmCfg := cfg.GetLLM()
		client := llm.NewClient(llm.Config{
			APIKey:         llmCfg.APIKey,
			BaseURL:        llmCfg.BaseURL,
			Model:          llmCfg.Model,
			Referer:        llmCfg.Referer,
			Title:          llmCfg.Title,
			TimeoutSeconds: llmCfg.TimeoutSeconds,
		})
		if client.Configured() {
			opts = append(opts, matching.WithReranker(matching.NewLLMReranker(client, cfg.Matching.RerankRequestsPerSecond)))
		} else {
			logging.WarnWithContext(logger, "rerank enabled without an LLM api key; stage disabled", "rerank_disabled",
				logging.String(logging.FieldErrorHint, "set llm.api_key or ROYALTIES_LLM_API_KEY"),
				logging.String(logging.FieldImpact, "borderline matches are not reranked"),
			)
		}
	}
	return matching.NewEngine(matching.PolicyFromConfig(cfg.Matching), opts...), embedder, nil
}

// processJob is the job handler: one job processes one statement.
func (a *App) processJob(ctx context.Context, job jobs.Job, progress jobs.ProgressFunc) (json.RawMessage, error) {
	result, runErr := a.Processor.ProcessStatement(ctx, job.StatementID, processor.ProgressFunc(progress))
	a.notify(ctx, job.StatementID, result, runErr)
	if result == nil {
		return nil, runErr
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Join(runErr, fmt.Errorf("encode processing result: %w", err))
	}
	return payload, runErr
}

func (a *App) notify(ctx context.Context, statementID string, result *processor.Result, runErr error) {
	event := notifications.EventStatementFailed
	payload := notifications.Payload{"statementId": statementID}
	switch {
	case runErr != nil:
		payload["error"] = runErr.Error()
	case result == nil:
		return
	case result.Status == statement.StatusReview:
		event = notifications.EventReviewRequired
		payload["items"] = result.Stats.ReviewRequired
	default:
		event = notifications.EventStatementCompleted
		payload["rows"] = result.Stats.ProcessedRows
		payload["exact"] = result.Stats.ExactMatches
		payload["fuzzy"] = result.Stats.FuzzyMatches
		payload["unmatched"] = result.Stats.NoMatches
	}
	if err := a.Notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(a.Logger, "notification failed", "notification_failed",
			logging.String(logging.FieldStatementID, statementID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "operators are not alerted about this statement"),
		)
	}
}

// ImportCatalog stores works for a tenant and invalidates its snapshot.
// With a cohere embedder configured, works without a vector are embedded
// first so the semantic stage can find them.
func (a *App) ImportCatalog(ctx context.Context, tenantID string, works []catalog.Work) (int, error) {
	if a.Embedder != nil {
		if err := a.embedWorks(ctx, works); err != nil {
			return 0, err
		}
	}
	written, err := a.Store.UpsertWorks(ctx, tenantID, works)
	if err != nil {
		return 0, err
	}
	if err := a.InvalidateCatalog(ctx, tenantID); err != nil {
		logging.WarnWithContext(a.Logger, "catalog invalidation not broadcast", "catalog_invalidate_failed",
			logging.String(logging.FieldTenantID, tenantID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "other processes keep the old snapshot until its TTL expires"),
		)
	}
	return written, nil
}

func (a *App) embedWorks(ctx context.Context, works []catalog.Work) error {
	var (
		texts []string
		index []int
	)
	for i := range works {
		if len(works[i].Embedding) > 0 {
			continue
		}
		works[i].Normalize()
		texts = append(texts, works[i].SearchText())
		index = append(index, i)
	}
	if len(texts) == 0 {
		return nil
	}
	vectors, err := a.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return err
	}
	for j, i := range index {
		if j < len(vectors) {
			works[i].Embedding = vectors[j]
		}
	}
	return nil
}

// InvalidateCatalog drops a tenant's snapshot here and, with redis, in every
// other process.
func (a *App) InvalidateCatalog(ctx context.Context, tenantID string) error {
	return a.Bus.Invalidate(ctx, tenantID)
}

// Close releases the store and redis client.
func (a *App) Close() error {
	var firstErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
