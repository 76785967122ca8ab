// Package services defines shared utilities consumed by the statement
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp statement IDs, tenants, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that let the processor and
//     job manager classify failures (input, transient, integrity, persistence).
//
// Subpackages hold the HTTP clients for the optional matching collaborators
// (LLM reranking, Cohere embeddings).
package services
