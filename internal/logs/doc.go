// Package logs reads royalties log files for the CLI.
//
// Tail returns the last matching lines and the byte offset where reading
// stopped; Follow polls from that offset until the context ends. A Filter
// narrows output to one statement, job, or tenant and understands both the
// JSON and console log formats.
package logs
