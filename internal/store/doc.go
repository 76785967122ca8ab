// Package store persists statements, rows, review items, distributions,
// background jobs, and tenant catalogs in SQLite.
//
// The store implements the repository interfaces declared by the processor,
// review, distribution, jobs, and catalog packages. Multi-row writes run in a
// single transaction and retry while SQLite reports the database as busy.
package store
