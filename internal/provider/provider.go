// Package provider defines the answer-generation capability contract and
// its backends.
package provider

import "context"

// Response is a successful generation. Model and TokensUsed are optional
// backend metadata passed through opaquely by callers.
type Response struct {
	Text       string `json:"text"`
	Model      string `json:"model,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// Provider answers a single prompt. Implementations own their timeout and
// retry policy; callers treat a call as blocking and do not impose one.
type Provider interface {
	Name() string
	Answer(ctx context.Context, prompt string) (*Response, error)
}
