package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateEmbeddings(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be non-negative")
	}
	if c.Cache.TTLMinutes <= 0 {
		return errors.New("cache.ttl_minutes must be positive")
	}
	if c.Distribution.ShareTolerance < 0 || c.Distribution.ShareTolerance > 1 {
		return errors.New("distribution.share_tolerance must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateMatching() error {
	m := c.Matching
	for name, value := range map[string]float64{
		"matching.auto_match_threshold":    m.AutoMatchThreshold,
		"matching.review_threshold":        m.ReviewThreshold,
		"matching.minimum_threshold":       m.MinimumThreshold,
		"matching.title_weight":            m.TitleWeight,
		"matching.rerank_prior_weight":     m.RerankPriorWeight,
		"matching.semantic_min_similarity": m.SemanticMinSimilarity,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if m.MinimumThreshold > m.ReviewThreshold || m.ReviewThreshold > m.AutoMatchThreshold {
		return errors.New("matching thresholds must satisfy minimum <= review <= auto_match")
	}
	if m.MaxCandidates <= 0 {
		return errors.New("matching.max_candidates must be positive")
	}
	if m.SemanticEnabled && m.SemanticTopK <= 0 {
		return errors.New("matching.semantic_top_k must be positive when semantic matching is enabled")
	}
	if m.RerankEnabled && m.RerankTopK <= 0 {
		return errors.New("matching.rerank_top_k must be positive when reranking is enabled")
	}
	if m.RerankRequestsPerSecond < 0 {
		return errors.New("matching.rerank_requests_per_second must not be negative")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if c.Processing.BatchSize <= 0 {
		return errors.New("processing.batch_size must be positive")
	}
	if c.Processing.Concurrency < 1 || c.Processing.Concurrency > 32 {
		return errors.New("processing.concurrency must be between 1 and 32")
	}
	if c.Processing.TaskTimeoutMinutes <= 0 {
		return errors.New("processing.task_timeout_minutes must be positive")
	}
	return nil
}

func (c *Config) validateEmbeddings() error {
	switch c.Embeddings.Provider {
	case "", EmbeddingsFingerprint:
		return nil
	case EmbeddingsCohere:
		if c.Embeddings.APIKey == "" {
			return errors.New("embeddings.api_key is required for the cohere provider (or set COHERE_API_KEY)")
		}
		return nil
	default:
		return fmt.Errorf("embeddings.provider: unsupported value %q", c.Embeddings.Provider)
	}
}

func (c *Config) validateWorkflow() error {
	w := c.Workflow
	if w.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if w.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	if w.HeartbeatInterval <= 0 || w.HeartbeatTimeout <= w.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed a positive heartbeat_interval")
	}
	if w.Workers < 1 {
		return errors.New("workflow.workers must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
