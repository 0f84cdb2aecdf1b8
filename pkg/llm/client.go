// Package llm implements SQL generation, table guessing and chart suggestion
// on top of a chat-completion model.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Client sends one system and user prompt pair to a model and returns the
// text of its reply.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// ProviderByName resolves a --llm-provider value.
func ProviderByName(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "anthropic", "claude":
		return ProviderAnthropic, nil
	case "openai", "openai-compatible":
		return ProviderOpenAI, nil
	}
	return "", fmt.Errorf("unsupported LLM provider: %q", name)
}

// sanitize drops invalid UTF-8 so that text copied out of the database cannot
// break request encoding.
func sanitize(s string) string {
	return strings.ToValidUTF8(s, "")
}
