package testsupport

import (
	"path/filepath"
	"testing"

	"royalties/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.InboxDir = filepath.Join(base, "inbox")
	cfgVal.LLM.APIKey = ""
	cfgVal.Embeddings.Provider = ""
	cfgVal.Redis.Addr = ""
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithLLM points the reranker at baseURL with a test key and enables rerank.
func WithLLM(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.APIKey = "test"
		b.cfg.LLM.BaseURL = baseURL
		b.cfg.Matching.RerankEnabled = true
	}
}

// WithFingerprintEmbeddings enables the local semantic stage.
func WithFingerprintEmbeddings() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Embeddings.Provider = "fingerprint"
		b.cfg.Matching.SemanticEnabled = true
	}
}

// WithProcessing overrides batch size and concurrency.
func WithProcessing(batchSize, concurrency int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.BatchSize = batchSize
		b.cfg.Processing.Concurrency = concurrency
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
