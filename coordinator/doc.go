// Package coordinator implements the bidirectional event coordination core:
// a strict-priority delivery loop over four FIFO queues, request/response
// correlation with timeouts, stream interruption, and bubbling of events
// from nested child coordinators up to a root delivery loop.
package coordinator
