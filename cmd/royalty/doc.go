// Command royalty is the operator CLI: it uploads and processes statements,
// works the review queue, calculates and pays distributions, imports
// catalogs, and inspects the job queue. It opens the same SQLite database
// the daemon uses, so it works whether or not royaltyd is running.
package main
