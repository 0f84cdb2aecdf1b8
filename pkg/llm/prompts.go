package llm

import (
	"fmt"
	"strings"

	"github.com/kattapik/texttosql-project/pkg/llm/prompts"
)

// Prompts holds the system prompts loaded from embedded files. Each contains
// a {{SCHEMA}} placeholder for the expected response schema; Generate also
// contains {{DIALECT}}.
type Prompts struct {
	Generate string
	Guess    string
	Chart    string
}

// LoadPrompts loads all prompts from the embedded filesystem.
func LoadPrompts() (*Prompts, error) {
	p := &Prompts{}

	var err error
	if p.Generate, err = loadPrompt("GENERATE.md"); err != nil {
		return nil, fmt.Errorf("failed to load GENERATE: %w", err)
	}
	if p.Guess, err = loadPrompt("GUESS.md"); err != nil {
		return nil, fmt.Errorf("failed to load GUESS: %w", err)
	}
	if p.Chart, err = loadPrompt("CHART.md"); err != nil {
		return nil, fmt.Errorf("failed to load CHART: %w", err)
	}
	return p, nil
}

func loadPrompt(path string) (string, error) {
	data, err := prompts.PromptsFS.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
