package engine

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/dukex/chatflow/pkg/models"
)

// TriggerMatcher matches inbound text against the start triggers of active flows.
type TriggerMatcher struct {
	logger *slog.Logger
}

// MatchResult is a flow whose trigger matched, scored so the best one wins.
type MatchResult struct {
	Flow    *models.Flow
	Keyword string
	// Score ranks exact matches above partial ones, then longer keywords
	// above shorter ones.
	Score int
}

const exactMatchBonus = 1_000_000

// Exact reports whether the text equals the keyword.
func (m MatchResult) Exact() bool {
	return m.Score >= exactMatchBonus
}

func NewTriggerMatcher(logger *slog.Logger) *TriggerMatcher {
	return &TriggerMatcher{
		logger: logger.With("module", "trigger_matcher"),
	}
}

// MatchFlows returns every active flow triggered by text, best match first.
// Comparison ignores case and surrounding whitespace.
func (tm *TriggerMatcher) MatchFlows(text string, flows []*models.Flow) []MatchResult {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil
	}

	var results []MatchResult

	for _, flow := range flows {
		if !flow.Active {
			continue
		}

		if match, ok := matchFlow(normalized, flow); ok {
			results = append(results, match)
		}
	}

	slices.SortStableFunc(results, func(a, b MatchResult) int {
		return b.Score - a.Score
	})

	tm.logger.Debug("Completed trigger matching", "text", text, "matches_found", len(results))

	return results
}

// Match returns the best flow triggered by text.
func (tm *TriggerMatcher) Match(text string, flows []*models.Flow) (MatchResult, bool) {
	results := tm.MatchFlows(text, flows)
	if len(results) == 0 {
		return MatchResult{}, false
	}

	return results[0], true
}

func matchFlow(text string, flow *models.Flow) (MatchResult, bool) {
	best := MatchResult{Flow: flow, Score: -1}

	for _, keyword := range flow.TriggerKeywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}

		score := -1

		switch {
		case text == normalized:
			score = exactMatchBonus + len(normalized)
		case flow.MatchType == models.MatchTypePartial && strings.Contains(text, normalized):
			score = len(normalized)
		}

		if score > best.Score {
			best.Score = score
			best.Keyword = keyword
		}
	}

	return best, best.Score >= 0
}
