package preference

import "sort"

// Reconciliation defaults.
const (
	// DefaultOverrideThreshold requires a disagreeing candidate to carry at
	// least the active record's confidence before it may replace it.
	DefaultOverrideThreshold = 1.0

	// DefaultMaxHistory bounds the audit history kept per record.
	DefaultMaxHistory = 10
)

// Options tune reconciliation behavior.
type Options struct {
	// OverrideThreshold scales the active record's confidence when deciding
	// whether a disagreeing candidate may replace it: the candidate wins
	// when candidate >= existing * OverrideThreshold. 1.0 means
	// equal-or-greater confidence is required; zero means any disagreeing
	// candidate overrides. Negative means DefaultOverrideThreshold.
	OverrideThreshold float64

	// MaxHistory caps the per-record history length. Oldest entries are
	// dropped first. Zero or negative means DefaultMaxHistory.
	MaxHistory int
}

// DefaultOptions returns the documented default reconciliation options.
func DefaultOptions() Options {
	return Options{
		OverrideThreshold: DefaultOverrideThreshold,
		MaxHistory:        DefaultMaxHistory,
	}
}

func (o Options) withDefaults() Options {
	if o.OverrideThreshold < 0 {
		o.OverrideThreshold = DefaultOverrideThreshold
	}
	if o.MaxHistory <= 0 {
		o.MaxHistory = DefaultMaxHistory
	}
	return o
}

// Reconcile merges a candidate batch into a profile and returns the updated
// profile plus a per-candidate outcome list for audit.
//
// Reconcile is a pure function of its inputs: the given profile is never
// mutated, no external calls are made, and the result depends only on
// (profile, candidates, opts). The candidate batch is first put into a total
// order — (category, extracted_at, -confidence), ties broken by input
// position — so repeated runs are byte-for-byte reproducible.
//
// Within a category the winner is the candidate with the highest confidence;
// ties go to the latest extracted_at, then to the earliest input position.
// The winner is compared against the profile's active record:
//
//   - no record            -> Inserted
//   - same canonical value -> Reinforced (confidence = max of the two)
//   - different value      -> Overridden when the candidate clears the
//     override threshold, RejectedLowConfidence otherwise
//
// Every non-winning candidate is reported as Superseded. The profile version
// increments by exactly one when any candidate was Inserted, Reinforced, or
// Overridden, and is untouched otherwise.
func Reconcile(profile *Profile, candidates []Candidate, opts Options) (*Profile, []Applied) {
	opts = opts.withDefaults()
	out := profile.Clone()
	if out == nil {
		out = NewProfile("")
	}

	ordered := orderCandidates(candidates)
	if len(ordered) == 0 {
		return out, nil
	}

	winners := pickWinners(ordered)

	applied := make([]Applied, 0, len(ordered))
	changed := false

	for _, ic := range ordered {
		if winners[ic.cat] != ic.pos {
			applied = append(applied, Applied{Candidate: ic.c, Outcome: OutcomeSuperseded})
			continue
		}

		outcome := applyWinner(out, ic.c, opts)
		if outcome != OutcomeRejectedLowConfidence {
			changed = true
		}
		applied = append(applied, Applied{Candidate: ic.c, Outcome: outcome})
	}

	if changed {
		out.Version++
	}
	return out, applied
}

// indexed keeps a candidate's original batch position so ordering and
// winner selection stay stable.
type indexed struct {
	c   Candidate
	cat Category
	pos int
}

func orderCandidates(candidates []Candidate) []indexed {
	ordered := make([]indexed, 0, len(candidates))
	for i, c := range candidates {
		ordered = append(ordered, indexed{c: c, cat: c.Category, pos: i})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.cat != b.cat {
			return a.cat < b.cat
		}
		if a.c.ExtractedAt != b.c.ExtractedAt {
			return a.c.ExtractedAt < b.c.ExtractedAt
		}
		return a.c.Confidence > b.c.Confidence
	})
	return ordered
}

// pickWinners returns, per category, the batch position of the winning
// candidate: highest confidence, then latest extracted_at, then earliest
// input position.
func pickWinners(ordered []indexed) map[Category]int {
	winners := make(map[Category]int)
	best := make(map[Category]indexed)
	for _, ic := range ordered {
		cur, ok := best[ic.cat]
		if !ok || beats(ic, cur) {
			best[ic.cat] = ic
			winners[ic.cat] = ic.pos
		}
	}
	return winners
}

func beats(a, b indexed) bool {
	if a.c.Confidence != b.c.Confidence {
		return a.c.Confidence > b.c.Confidence
	}
	if a.c.ExtractedAt != b.c.ExtractedAt {
		return a.c.ExtractedAt > b.c.ExtractedAt
	}
	return a.pos < b.pos
}

// applyWinner merges the category winner into the profile and reports the
// outcome. The profile is the resolver's private clone; mutation is safe.
func applyWinner(p *Profile, c Candidate, opts Options) Outcome {
	value := c.Canonical()

	existing, ok := p.Records[c.Category]
	if !ok {
		p.Records[c.Category] = Record{
			Category:    c.Category,
			Value:       value,
			Confidence:  c.Confidence,
			LastUpdated: c.ExtractedAt,
		}
		return OutcomeInserted
	}

	if existing.Value == value {
		if c.Confidence > existing.Confidence {
			existing.Confidence = c.Confidence
		}
		existing.LastUpdated = c.ExtractedAt
		p.Records[c.Category] = existing
		return OutcomeReinforced
	}

	if c.Confidence < existing.Confidence*opts.OverrideThreshold {
		return OutcomeRejectedLowConfidence
	}

	history := append(existing.History, HistoryEntry{
		Value:      existing.Value,
		Confidence: existing.Confidence,
		ReplacedAt: c.ExtractedAt,
	})
	if len(history) > opts.MaxHistory {
		history = history[len(history)-opts.MaxHistory:]
	}

	p.Records[c.Category] = Record{
		Category:    c.Category,
		Value:       value,
		Confidence:  c.Confidence,
		LastUpdated: c.ExtractedAt,
		History:     history,
	}
	return OutcomeOverridden
}
