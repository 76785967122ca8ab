// Package review manages the manual review queue for rows whose match
// confidence falls between the minimum and auto-match thresholds.
//
// Each (statement, row) pair has at most one review item. Resolving an item
// and writing the row's match fields happen in one transaction; when the last
// pending item of a statement in review is resolved the statement moves to
// completed.
package review
