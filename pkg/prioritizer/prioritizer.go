// Package prioritizer filters and orders test cases for execution.
package prioritizer

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/scorer"
)

// Filter narrows the candidate set before prioritization. All criteria are
// conjunctive; zero values disable the corresponding criterion.
type Filter struct {
	Tags        []string
	MinPriority models.Priority
	MaxDuration time.Duration
}

// Apply returns the test cases matching every configured criterion.
func (f Filter) Apply(cases []*models.TestCase) []*models.TestCase {
	filtered := make([]*models.TestCase, 0, len(cases))

	for _, testCase := range cases {
		if len(f.Tags) > 0 && !testCase.HasAnyTag(f.Tags) {
			continue
		}

		if f.MinPriority != "" && testCase.Priority.Rank() < f.MinPriority.Rank() {
			continue
		}

		if f.MaxDuration > 0 && testCase.DurationEstimate() > f.MaxDuration {
			continue
		}

		filtered = append(filtered, testCase)
	}

	return filtered
}

// Prioritizer orders filtered test cases for execution, optionally deferring
// to an external scorer with the rule-based ordering as mandatory fallback.
type Prioritizer struct {
	scorer scorer.PrioritizationScorer
	logger *slog.Logger
}

func NewPrioritizer(s scorer.PrioritizationScorer, logger *slog.Logger) *Prioritizer {
	return &Prioritizer{
		scorer: s,
		logger: logger.With("module", "prioritizer"),
	}
}

// Prioritize returns a total execution order over the given test cases.
// When an external scorer is configured its proposed order is applied first;
// any tests it omits are appended in rule-based order so nothing is ever
// silently dropped. Scorer failures fall back to the rule-based order.
func (p *Prioritizer) Prioritize(ctx context.Context, cases []*models.TestCase) []*models.TestCase {
	ordered := RuleBasedOrder(cases)

	if p.scorer == nil || len(cases) == 0 {
		return ordered
	}

	summaries := make([]scorer.TestSummary, 0, len(cases))
	for _, testCase := range cases {
		summaries = append(summaries, scorer.NewTestSummary(testCase))
	}

	proposedNames, err := p.scorer.ProposeOrder(ctx, summaries)
	if err != nil {
		p.logger.WarnContext(ctx, "External prioritization failed, using rule-based order", "error", err)

		return ordered
	}

	return applyProposedOrder(ordered, proposedNames)
}

// RuleBasedOrder sorts by declared priority rank (descending), then by
// flakiness score (ascending), then by duration estimate (ascending): cheap,
// fast, stable tests first so failures surface quickly.
func RuleBasedOrder(cases []*models.TestCase) []*models.TestCase {
	ordered := append([]*models.TestCase(nil), cases...)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]

		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}

		if a.FlakinessScore != b.FlakinessScore {
			return a.FlakinessScore < b.FlakinessScore
		}

		return a.DurationEstimate() < b.DurationEstimate()
	})

	return ordered
}

// applyProposedOrder reorders by the scorer's proposed names. Names the
// scorer invented are ignored; tests it omitted keep their fallback order at
// the end of the result.
func applyProposedOrder(fallback []*models.TestCase, proposedNames []string) []*models.TestCase {
	byName := make(map[string]*models.TestCase, len(fallback))
	for _, testCase := range fallback {
		byName[testCase.Name] = testCase
	}

	result := make([]*models.TestCase, 0, len(fallback))
	seen := make(map[string]bool, len(proposedNames))

	for _, name := range proposedNames {
		testCase, ok := byName[name]
		if !ok || seen[name] {
			continue
		}

		seen[name] = true
		result = append(result, testCase)
	}

	for _, testCase := range fallback {
		if !seen[testCase.Name] {
			result = append(result, testCase)
		}
	}

	return result
}
