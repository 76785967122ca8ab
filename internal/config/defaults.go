package config

const (
	defaultConfigPath              = "~/.config/royalties/config.toml"
	defaultDataDir                 = "~/.local/share/royalties"
	defaultLogDir                  = "~/.local/share/royalties/logs"
	defaultAutoMatchThreshold      = 0.95
	defaultReviewThreshold         = 0.70
	defaultMinimumThreshold        = 0.30
	defaultMaxCandidates           = 5
	defaultTitleWeight             = 0.6
	defaultSemanticTopK            = 10
	defaultSemanticMinSimilarity   = 0.5
	defaultRerankTopK              = 5
	defaultRerankPriorWeight       = 0.4
	defaultRerankRequestsPerSecond = 2
	defaultCacheTTLMinutes         = 30
	defaultBatchSize               = 100
	defaultConcurrency             = 3
	defaultTaskTimeoutMinutes      = 30
	defaultShareTolerance          = 0.01
	defaultCurrency                = "USD"
	defaultLLMBaseURL              = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                = "google/gemini-3-flash-preview"
	defaultLLMTitle                = "Royalties Reranker"
	defaultLLMTimeoutSeconds       = 60
	defaultEmbeddingModel          = "embed-english-v3.0"
	defaultEmbeddingTimeoutSeconds = 60
	defaultRedisChannel            = "royalties:catalog:invalidate"
	defaultRedisLockTTLSeconds     = 60
	defaultNtfyTimeoutSeconds      = 10
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Matching: Matching{
			AutoMatchThreshold:      defaultAutoMatchThreshold,
			ReviewThreshold:         defaultReviewThreshold,
			MinimumThreshold:        defaultMinimumThreshold,
			MaxCandidates:           defaultMaxCandidates,
			TitleWeight:             defaultTitleWeight,
			SemanticTopK:            defaultSemanticTopK,
			SemanticMinSimilarity:   defaultSemanticMinSimilarity,
			RerankTopK:              defaultRerankTopK,
			RerankPriorWeight:       defaultRerankPriorWeight,
			RerankRequestsPerSecond: defaultRerankRequestsPerSecond,
		},
		Cache: Cache{
			TTLMinutes: defaultCacheTTLMinutes,
		},
		Processing: Processing{
			BatchSize:              defaultBatchSize,
			Concurrency:            defaultConcurrency,
			TaskTimeoutMinutes:     defaultTaskTimeoutMinutes,
			CalculateDistributions: true,
		},
		Distribution: Distribution{
			ShareTolerance: defaultShareTolerance,
			Currency:       defaultCurrency,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Embeddings: Embeddings{
			Model:          defaultEmbeddingModel,
			TimeoutSeconds: defaultEmbeddingTimeoutSeconds,
		},
		Redis: Redis{
			InvalidationChannel: defaultRedisChannel,
			LockTTLSeconds:      defaultRedisLockTTLSeconds,
		},
		Workflow: Workflow{
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			HeartbeatInterval:  15,
			HeartbeatTimeout:   120,
			Workers:            1,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
