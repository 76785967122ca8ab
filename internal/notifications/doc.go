// Package notifications publishes statement processing events to ntfy.
//
// The service posts to the topic URL configured under [notifications] and
// degrades to a no-op when no topic is set. Callers pass an Event plus a
// loosely typed Payload; message formatting lives here so job handlers stay
// free of HTTP glue.
package notifications
