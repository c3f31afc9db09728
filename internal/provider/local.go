package provider

import (
	"context"
	"fmt"
	"strings"
)

// LocalProvider is an offline fallback backend. It answers from the prompt
// itself: when the prompt carries retrieved context it reflects the most
// relevant excerpt back, otherwise it returns a study hint. Deterministic,
// always available, never errors.
type LocalProvider struct {
	name string
}

// NewLocal creates a local provider with the given registered name.
func NewLocal(name string) *LocalProvider {
	if name == "" {
		name = "local"
	}
	return &LocalProvider{name: name}
}

func (p *LocalProvider) Name() string { return p.name }

func (p *LocalProvider) Answer(_ context.Context, prompt string) (*Response, error) {
	text := p.compose(prompt)
	return &Response{Text: text, Model: "local-fallback"}, nil
}

func (p *LocalProvider) compose(prompt string) string {
	// prompts built by the orchestrator separate context from the question
	// with a "Question:" marker
	if idx := strings.LastIndex(prompt, "Question:"); idx > 0 {
		contextPart := strings.TrimSpace(prompt[:idx])
		question := strings.TrimSpace(strings.TrimPrefix(prompt[idx:], "Question:"))
		if contextPart != "" {
			firstChunk := contextPart
			if cut := strings.Index(contextPart, "\n\n"); cut > 0 {
				firstChunk = contextPart[:cut]
			}
			return fmt.Sprintf("Based on your study materials: %s\n\nThis is the closest match for %q. Review the excerpt above and try working through it step by step.", firstChunk, question)
		}
		prompt = question
	}

	return fmt.Sprintf("I couldn't reach an AI tutor right now. For %q, start by breaking the problem into smaller parts and checking your course notes for related worked examples.", strings.TrimSpace(prompt))
}
