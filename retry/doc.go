// Package retry decides whether and when a failed call should be attempted
// again. The Policy is a pure decision function; sleeping, cancellation and
// observability events are the pipeline's job. Provider-specific error
// classifiers normalize SDK errors into categories and surface provider
// retry hints (Retry-After).
package retry
