// Package process manages the lifecycle of a single external subprocess:
// spawn, output streaming, liveness observation, and bounded-grace
// termination. The supervisor owns at most one Handle at a time.
package process
