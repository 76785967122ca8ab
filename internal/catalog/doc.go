// Package catalog holds the tenant catalog model and the per-tenant snapshot
// cache consulted by the matching engine.
//
// A Snapshot is an immutable view of a tenant's works with lookup indices for
// ISWC, ISRC, and work code. The Cache loads snapshots through a Loader,
// expires them after a TTL, and collapses concurrent loads for the same
// tenant. Bus propagates invalidations between processes over redis pub/sub.
package catalog
