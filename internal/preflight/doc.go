// Package preflight provides readiness checks for the filesystem paths and
// external services the royalty pipeline depends on.
//
// These checks run in two contexts:
//   - royaltyd calls RunAll at startup and logs every failed check before
//     workers begin claiming jobs.
//   - The CLI "royalty doctor" command prints the same results, including
//     disabled features, so operators can see what is configured.
//
// Each service check is gated by its config toggle; disabled features are
// skipped by RunAll and reported as such by the FromConfig helpers.
package preflight
