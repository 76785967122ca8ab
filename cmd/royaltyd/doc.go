// Command royaltyd runs the background worker pool that processes queued
// statements. It also watches the inbox directory for dropped statement
// files and, when redis is configured, listens for catalog invalidations
// published by other processes.
package main
