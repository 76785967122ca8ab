// Package config loads, normalizes, and validates royalties configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for secrets
// such as ROYALTIES_LLM_API_KEY and COHERE_API_KEY, optionally sourced from a
// .env file beside the config file. Matching thresholds,
// processing limits, and collaborator endpoints are all discovered in one pass.
package config
