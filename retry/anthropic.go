package retry

import (
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
)

// AnthropicClassifier maps errors returned by the official Anthropic client
// into normalized categories. Rate limiting (429) and overload (529)
// responses carry the Retry-After header as a provider hint.
type AnthropicClassifier struct{}

// NewAnthropicClassifier creates a classifier for Anthropic API errors.
func NewAnthropicClassifier() *AnthropicClassifier { return &AnthropicClassifier{} }

// Classify implements Classifier.
func (*AnthropicClassifier) Classify(err error) Classification {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, apiErr.Response)
	}

	if c, ok := classifyGeneric(err); ok {
		return c
	}

	return Classification{Category: CategoryUnknown}
}
