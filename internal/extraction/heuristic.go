package extraction

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/prefd/internal/preference"
)

// Pattern is one heuristic extraction rule. The regex must carry exactly one
// capture group: the preference value.
type Pattern struct {
	Name     string              `json:"name"`
	Category preference.Category `json:"category"`
	Regex    string              `json:"regex"`
	Weight   float64             `json:"weight"`
}

// DefaultPatterns returns the default preference detection patterns.
func DefaultPatterns() []Pattern {
	return []Pattern{
		// Currency
		{Name: "pay_in", Category: preference.CategoryCurrency, Regex: `(?i)\bprefer (?:to pay|paying|prices?) in ([a-zA-Z. ]+?)(?:[.!?,]|$)`, Weight: 0.85},
		{Name: "prices_in", Category: preference.CategoryCurrency, Regex: `(?i)\bshow (?:me )?prices? in ([a-zA-Z. ]+?)(?:[.!?,]|$)`, Weight: 0.8},
		{Name: "currency_is", Category: preference.CategoryCurrency, Regex: `(?i)\bmy currency is ([a-zA-Z. ]+?)(?:[.!?,]|$)`, Weight: 0.9},

		// Language
		{Name: "respond_in", Category: preference.CategoryLanguage, Regex: `(?i)\b(?:respond|reply|answer|write) (?:to me )?in ([a-zA-Z-]+)`, Weight: 0.8},
		{Name: "speak_in", Category: preference.CategoryLanguage, Regex: `(?i)\bspeak (?:to me )?in ([a-zA-Z-]+)`, Weight: 0.7},
		{Name: "language_is", Category: preference.CategoryLanguage, Regex: `(?i)\bmy (?:preferred )?language is ([a-zA-Z-]+)`, Weight: 0.9},

		// Communication style
		{Name: "keep_it", Category: preference.CategoryCommunicationStyle, Regex: `(?i)\bkeep (?:it|answers|responses|replies) (\w+)`, Weight: 0.6},
		{Name: "be_more", Category: preference.CategoryCommunicationStyle, Regex: `(?i)\bbe more (\w+)`, Weight: 0.55},

		// Product interest
		{Name: "interested_in", Category: preference.CategoryProductCategory, Regex: `(?i)\b(?:interested in|shopping for|looking for) ([a-zA-Z ]+?)(?:[.!?,]|$)`, Weight: 0.6},

		// Standing rules
		{Name: "rule_line", Category: preference.CategoryOther, Regex: `(?im)^rule:\s*(.+)$`, Weight: 1.0},
		{Name: "never_always", Category: preference.CategoryOther, Regex: `(?i)\b((?:never|always) [^.!?\n]+)`, Weight: 0.7},
		{Name: "remember_that", Category: preference.CategoryOther, Regex: `(?i)\bremember that (.+?)(?:[.!?]|$)`, Weight: 0.9},
	}
}

// HeuristicExtractor implements Extractor using pattern matching. It needs
// no credentials and no network, which makes it the default provider.
type HeuristicExtractor struct {
	patterns      []*compiledPattern
	minConfidence float64
	maxTurns      int
}

// compiledPattern holds a pre-compiled regex pattern.
type compiledPattern struct {
	Pattern
	regex *regexp.Regexp
}

// NewHeuristicExtractor creates a new heuristic preference extractor.
func NewHeuristicExtractor(cfg ExtractionConfig) (*HeuristicExtractor, error) {
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}

	compiled := make([]*compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			// Skip invalid patterns
			continue
		}
		if !p.Category.Valid() {
			continue
		}
		compiled = append(compiled, &compiledPattern{
			Pattern: p,
			regex:   re,
		})
	}

	// Zero is a real setting here: no floor, every pattern match is kept.
	minConfidence := cfg.MinConfidence
	if minConfidence < 0 {
		minConfidence = 0
	}

	return &HeuristicExtractor{
		patterns:      compiled,
		minConfidence: minConfidence,
		maxTurns:      cfg.MaxWindowTurns,
	}, nil
}

// Extract finds preference candidates in the window using pattern matching.
func (h *HeuristicExtractor) Extract(ctx context.Context, window Window) (Result, error) {
	if err := window.ValidateMax(h.maxTurns); err != nil {
		return Result{}, err
	}

	var candidates []preference.Candidate

	for i, turn := range window.Turns {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		// Only user turns express preferences.
		if turn.Role != "user" {
			continue
		}

		// One candidate per category per turn: the heaviest matching pattern.
		best := make(map[preference.Category]preference.Candidate)
		for _, p := range h.patterns {
			if p.Weight < h.minConfidence {
				continue
			}
			loc := p.regex.FindStringSubmatchIndex(turn.Content)
			if loc == nil || len(loc) < 4 || loc[2] < 0 {
				continue
			}

			value := strings.TrimSpace(turn.Content[loc[2]:loc[3]])
			if value == "" {
				continue
			}

			if cur, ok := best[p.Category]; ok && cur.Confidence >= p.Weight {
				continue
			}
			best[p.Category] = preference.Candidate{
				Category:   p.Category,
				Value:      value,
				Confidence: p.Weight,
				SourceSpan: preference.Span{
					Turn:  i,
					Start: utf8.RuneCountInString(turn.Content[:loc[2]]),
					End:   utf8.RuneCountInString(turn.Content[:loc[3]]),
				},
			}
		}

		for _, cat := range preference.Categories() {
			if c, ok := best[cat]; ok {
				candidates = append(candidates, c)
			}
		}
	}

	return Result{Candidates: candidates}, nil
}

// Available always returns true: heuristics have no upstream dependency.
func (h *HeuristicExtractor) Available() bool {
	return true
}

// Ensure HeuristicExtractor implements Extractor.
var _ Extractor = (*HeuristicExtractor)(nil)
