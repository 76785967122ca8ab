// Package llm provides an OpenAI-compatible chat completion client used to
// rerank catalog candidates for ambiguous statement lines.
//
// Requests use JSON response mode. The client retries HTTP 408/429/5xx,
// network timeouts, and empty completions with exponential backoff, honouring
// Retry-After. Context cancellation aborts retries immediately.
//
// Callers treat every error as transient: a failed rerank leaves the prior
// candidate order in place.
package llm
