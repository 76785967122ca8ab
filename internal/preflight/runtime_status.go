package preflight

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"royalties/internal/config"
	"royalties/internal/notifications"
)

// CheckEmbeddingsFromConfig reports which semantic candidate source is
// active. No network call is made; the cohere key is checked on first use.
func CheckEmbeddingsFromConfig(cfg *config.Config) Result {
	const name = "Embeddings"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.Matching.SemanticEnabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	switch cfg.Embeddings.Provider {
	case config.EmbeddingsCohere:
		if strings.TrimSpace(cfg.Embeddings.APIKey) == "" {
			return Result{Name: name, Detail: "cohere selected but API key missing"}
		}
		return Result{Name: name, Passed: true, Detail: "cohere (" + cfg.Embeddings.Model + ")"}
	case config.EmbeddingsFingerprint:
		return Result{Name: name, Passed: true, Detail: "local fingerprints"}
	default:
		return Result{Name: name, Detail: "semantic stage enabled without a provider"}
	}
}

// CheckLLMFromConfig evaluates the reranker endpoint from config and connectivity.
func CheckLLMFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Rerank LLM"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.Matching.RerankEnabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return CheckLLM(ctx, name, cfg.GetLLM())
}

// CheckRedisFromConfig evaluates redis from config, dialing a short-lived
// client when none is supplied.
func CheckRedisFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Redis"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.RedisEnabled() {
		return Result{Name: name, Passed: true, Detail: "Disabled (local locks, no cross-process invalidation)"}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()
	return CheckRedis(ctx, client)
}

// CheckNotificationsFromConfig reports the ntfy topic. With send set, a test
// notification is published and its delivery error reported.
func CheckNotificationsFromConfig(ctx context.Context, cfg *config.Config, send bool) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	if !send {
		return Result{Name: name, Passed: true, Detail: topic}
	}
	if err := notifications.NewService(cfg).Publish(ctx, notifications.EventTest, nil); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "Test notification sent to " + topic}
}
