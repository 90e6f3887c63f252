package retry

import (
	"errors"

	"github.com/openai/openai-go"
)

// OpenAIClassifier maps errors returned by the official OpenAI client into
// normalized categories, honoring the Retry-After header on rate limits.
type OpenAIClassifier struct{}

// NewOpenAIClassifier creates a classifier for OpenAI API errors.
func NewOpenAIClassifier() *OpenAIClassifier { return &OpenAIClassifier{} }

// Classify implements Classifier.
func (*OpenAIClassifier) Classify(err error) Classification {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, apiErr.Response)
	}

	if c, ok := classifyGeneric(err); ok {
		return c
	}

	return Classification{Category: CategoryUnknown}
}
