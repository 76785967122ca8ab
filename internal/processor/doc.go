// Package processor drives a statement through parsing, matching, review
// routing, and distribution.
//
// A run moves the statement uploaded → processing → matching and ends in
// review (some rows need a person), completed, or failed. Rows are matched in
// batches with bounded parallelism; each batch is persisted before the next
// starts so a failed run keeps its progress, and reprocessing replaces it.
package processor
