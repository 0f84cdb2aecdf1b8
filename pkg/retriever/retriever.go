// Package retriever selects the schema context for a question.
//
// Selection is an ordered list of tiers, each a strategy over the catalog's
// table names. The first tier that selects at least one table wins:
//
//   - keyword: tables whose name occurs in the question
//   - guess: tables an LLM guesses, restricted to real catalog tables
//   - fallback: the first FallbackLimit catalog tables
//
// The selected tables are then described through the catalog.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kattapik/texttosql-project/pkg/catalog"
	"github.com/kattapik/texttosql-project/pkg/metrics"
)

const defaultFallbackLimit = 5

type Tier string

const (
	TierKeyword  Tier = "keyword"
	TierGuess    Tier = "guess"
	TierFallback Tier = "fallback"
	// TierNone means nothing was selected, either because the catalog is
	// empty or because it could not be listed.
	TierNone Tier = "none"
)

// TableGuesser picks the tables relevant to a question from the full list.
// Implementations may return names that are not in tables.
type TableGuesser interface {
	GuessTables(ctx context.Context, question string, tables []string) ([]string, error)
}

type Catalog interface {
	catalog.TableLister
	catalog.SchemaDescriber
}

type Config struct {
	Logger  *slog.Logger
	Catalog Catalog
	// Guesser is optional; without it the guess tier never selects.
	Guesser TableGuesser

	// FallbackLimit caps the tables selected when neither keywords nor the
	// guesser produce a match.
	FallbackLimit int
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Catalog == nil {
		return errors.New("catalog is required")
	}
	if c.FallbackLimit < 0 {
		return errors.New("fallback limit must not be negative")
	}
	if c.FallbackLimit == 0 {
		c.FallbackLimit = defaultFallbackLimit
	}
	return nil
}

// Result is the selected context and how it was selected.
type Result struct {
	Tier    Tier
	Tables  []string
	Context []catalog.SchemaInfo
}

type strategy struct {
	tier   Tier
	choose func(ctx context.Context, question string, tables []string) []string
}

type Retriever struct {
	log        *slog.Logger
	cfg        Config
	strategies []strategy
}

func New(cfg Config) (*Retriever, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate retriever config: %w", err)
	}
	r := &Retriever{
		log: cfg.Logger,
		cfg: cfg,
	}
	r.strategies = []strategy{
		{tier: TierKeyword, choose: r.keywordTables},
		{tier: TierGuess, choose: r.guessedTables},
		{tier: TierFallback, choose: r.fallbackTables},
	}
	return r, nil
}

// Retrieve never fails: catalog errors are logged and produce an empty
// context, which the generator has to cope with.
func (r *Retriever) Retrieve(ctx context.Context, question string) *Result {
	res := &Result{Tier: TierNone, Context: []catalog.SchemaInfo{}}

	tables, err := r.cfg.Catalog.ListTables(ctx)
	if err != nil {
		r.log.Error("retriever: failed to list tables", "error", err)
		metrics.RetrievalTierTotal.WithLabelValues(string(res.Tier)).Inc()
		return res
	}
	if len(tables) == 0 {
		r.log.Warn("retriever: catalog has no tables")
		metrics.RetrievalTierTotal.WithLabelValues(string(res.Tier)).Inc()
		return res
	}

	for _, s := range r.strategies {
		selected := s.choose(ctx, question, tables)
		if len(selected) == 0 {
			continue
		}
		res.Tier = s.tier
		res.Tables = selected
		break
	}
	metrics.RetrievalTierTotal.WithLabelValues(string(res.Tier)).Inc()

	switch res.Tier {
	case TierFallback:
		r.log.Warn("retriever: no tables matched, using fallback context", "tables", res.Tables, "limit", r.cfg.FallbackLimit)
	case TierNone:
		return res
	default:
		r.log.Debug("retriever: selected tables", "tier", res.Tier, "tables", res.Tables)
	}

	infos, err := r.cfg.Catalog.DescribeTables(ctx, res.Tables)
	if err != nil {
		r.log.Error("retriever: failed to describe tables", "tables", res.Tables, "error", err)
		return res
	}
	if infos != nil {
		res.Context = infos
	}
	return res
}

func (r *Retriever) keywordTables(_ context.Context, question string, tables []string) []string {
	q := strings.ToLower(question)
	return dedupe(tables, func(table string) (string, bool) {
		return table, strings.Contains(q, strings.ToLower(table))
	})
}

func (r *Retriever) guessedTables(ctx context.Context, question string, tables []string) []string {
	if r.cfg.Guesser == nil {
		return nil
	}
	r.log.Debug("retriever: no keyword match, asking for a guess", "question", question)
	guessed, err := r.cfg.Guesser.GuessTables(ctx, question, tables)
	if err != nil {
		r.log.Warn("retriever: table guess failed", "error", err)
		return nil
	}

	exact := make(map[string]struct{}, len(tables))
	folded := make(map[string]string, len(tables))
	for _, t := range tables {
		exact[t] = struct{}{}
		if _, ok := folded[strings.ToLower(t)]; !ok {
			folded[strings.ToLower(t)] = t
		}
	}
	selected := dedupe(guessed, func(name string) (string, bool) {
		name = strings.TrimSpace(name)
		if _, ok := exact[name]; ok {
			return name, true
		}
		t, ok := folded[strings.ToLower(name)]
		return t, ok
	})
	if len(selected) < len(guessed) {
		r.log.Debug("retriever: discarded guessed tables", "guessed", guessed, "kept", selected)
	}
	return selected
}

func (r *Retriever) fallbackTables(_ context.Context, _ string, tables []string) []string {
	n := min(r.cfg.FallbackLimit, len(tables))
	return dedupe(tables[:n], func(table string) (string, bool) {
		return table, true
	})
}

// dedupe maps and filters names, keeping the first occurrence of each result.
func dedupe(names []string, keep func(string) (string, bool)) []string {
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, name := range names {
		mapped, ok := keep(name)
		if !ok {
			continue
		}
		if _, dup := seen[mapped]; dup {
			continue
		}
		seen[mapped] = struct{}{}
		out = append(out, mapped)
	}
	return out
}
