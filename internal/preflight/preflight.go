package preflight

import (
	"context"

	"github.com/redis/go-redis/v9"

	"royalties/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled. client may
// be nil when redis is not configured.
func RunAll(ctx context.Context, cfg *config.Config, client *redis.Client) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Data and log directories (always checked)
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckDatabase(ctx, cfg.DatabasePath()))

	if cfg.Paths.InboxDir != "" {
		results = append(results, CheckDirectoryAccess("Inbox directory", cfg.Paths.InboxDir))
	}

	if cfg.Matching.SemanticEnabled {
		results = append(results, CheckEmbeddingsFromConfig(cfg))
	}

	if cfg.Matching.RerankEnabled {
		results = append(results, CheckLLM(ctx, "Rerank LLM", cfg.GetLLM()))
	}

	if cfg.RedisEnabled() {
		results = append(results, CheckRedis(ctx, client))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
