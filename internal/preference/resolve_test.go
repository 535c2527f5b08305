package preference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(cat Category, norm string, conf float64, seq uint64) Candidate {
	return Candidate{
		Category:        cat,
		Value:           norm,
		NormalizedValue: norm,
		Confidence:      conf,
		ExtractedAt:     seq,
	}
}

func TestReconcile_InsertIntoEmptyProfile(t *testing.T) {
	profile := NewProfile("u1")

	candidates := []Candidate{
		{Category: CategoryCurrency, Value: "US Dollar", NormalizedValue: "USD", Confidence: 0.9, ExtractedAt: 1},
		{Category: CategoryCurrency, Value: "USD", NormalizedValue: "USD", Confidence: 0.95, ExtractedAt: 2},
	}

	updated, applied := Reconcile(profile, candidates, DefaultOptions())

	require.Len(t, applied, 2)
	rec, ok := updated.Records[CategoryCurrency]
	require.True(t, ok)
	assert.Equal(t, "USD", rec.Value)
	assert.Equal(t, 0.95, rec.Confidence)
	assert.Equal(t, uint64(1), updated.Version)

	// The 0.9 mention lost the batch but is still visible for audit.
	outcomes := map[Outcome]int{}
	for _, a := range applied {
		outcomes[a.Outcome]++
	}
	assert.Equal(t, 1, outcomes[OutcomeInserted])
	assert.Equal(t, 1, outcomes[OutcomeSuperseded])

	// Input profile untouched.
	assert.Empty(t, profile.Records)
	assert.Equal(t, uint64(0), profile.Version)
}

func TestReconcile_RejectBelowThreshold(t *testing.T) {
	profile := NewProfile("u1")
	profile.Records[CategoryCurrency] = Record{
		Category: CategoryCurrency, Value: "USD", Confidence: 0.9, LastUpdated: 1,
	}
	profile.Version = 3

	updated, applied := Reconcile(profile, []Candidate{
		cand(CategoryCurrency, "EUR", 0.85, 5),
	}, DefaultOptions())

	require.Len(t, applied, 1)
	assert.Equal(t, OutcomeRejectedLowConfidence, applied[0].Outcome)

	rec := updated.Records[CategoryCurrency]
	assert.Equal(t, "USD", rec.Value)
	assert.Equal(t, 0.9, rec.Confidence)
	assert.Empty(t, rec.History)

	// Nothing changed, so no version bump.
	assert.Equal(t, uint64(3), updated.Version)
}

func TestReconcile_OverrideMovesOldValueToHistory(t *testing.T) {
	profile := NewProfile("u1")
	profile.Records[CategoryCurrency] = Record{
		Category: CategoryCurrency, Value: "USD", Confidence: 0.9, LastUpdated: 1,
	}
	profile.Version = 3

	updated, applied := Reconcile(profile, []Candidate{
		cand(CategoryCurrency, "EUR", 0.95, 5),
	}, DefaultOptions())

	require.Len(t, applied, 1)
	assert.Equal(t, OutcomeOverridden, applied[0].Outcome)

	rec := updated.Records[CategoryCurrency]
	assert.Equal(t, "EUR", rec.Value)
	assert.Equal(t, 0.95, rec.Confidence)
	assert.Equal(t, uint64(5), rec.LastUpdated)
	require.Len(t, rec.History, 1)
	assert.Equal(t, "USD", rec.History[0].Value)
	assert.Equal(t, 0.9, rec.History[0].Confidence)

	assert.Equal(t, uint64(4), updated.Version)
}

func TestReconcile_ReinforceTakesMaxConfidence(t *testing.T) {
	profile := NewProfile("u1")
	profile.Records[CategoryLanguage] = Record{
		Category: CategoryLanguage, Value: "ja", Confidence: 0.7, LastUpdated: 2,
	}

	updated, applied := Reconcile(profile, []Candidate{
		cand(CategoryLanguage, "ja", 0.6, 9),
	}, DefaultOptions())

	require.Len(t, applied, 1)
	assert.Equal(t, OutcomeReinforced, applied[0].Outcome)

	rec := updated.Records[CategoryLanguage]
	// Reinforcement never lowers confidence.
	assert.Equal(t, 0.7, rec.Confidence)
	assert.Equal(t, uint64(9), rec.LastUpdated)
	assert.Equal(t, uint64(1), updated.Version)
}

func TestReconcile_WinnerTieBreaks(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
		wantValue  string
	}{
		{
			name: "higher confidence wins regardless of order",
			candidates: []Candidate{
				cand(CategoryCurrency, "EUR", 0.95, 7),
				cand(CategoryCurrency, "USD", 0.6, 8),
			},
			wantValue: "EUR",
		},
		{
			name: "equal confidence, later extraction wins",
			candidates: []Candidate{
				cand(CategoryCurrency, "EUR", 0.8, 1),
				cand(CategoryCurrency, "USD", 0.8, 2),
			},
			wantValue: "USD",
		},
		{
			name: "full tie falls back to input order",
			candidates: []Candidate{
				cand(CategoryCurrency, "GBP", 0.8, 3),
				cand(CategoryCurrency, "CHF", 0.8, 3),
			},
			wantValue: "GBP",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, _ := Reconcile(NewProfile("u1"), tt.candidates, DefaultOptions())
			assert.Equal(t, tt.wantValue, updated.Records[CategoryCurrency].Value)
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	profile := NewProfile("u1")
	batch := []Candidate{
		cand(CategoryCurrency, "USD", 0.9, 1),
		cand(CategoryLanguage, "en", 0.8, 2),
		cand(CategoryCurrency, "EUR", 0.4, 3),
	}

	once, _ := Reconcile(profile, batch, DefaultOptions())
	twice, _ := Reconcile(once, batch, DefaultOptions())

	// Record contents converge even though each run bumps the version.
	assert.Equal(t, once.Records[CategoryCurrency].Value, twice.Records[CategoryCurrency].Value)
	assert.Equal(t, once.Records[CategoryCurrency].Confidence, twice.Records[CategoryCurrency].Confidence)
	assert.Equal(t, once.Records[CategoryLanguage].Value, twice.Records[CategoryLanguage].Value)
	assert.Equal(t, once.Version+1, twice.Version)
}

func TestReconcile_OneVersionBumpPerBatch(t *testing.T) {
	profile := NewProfile("u1")
	batch := []Candidate{
		cand(CategoryCurrency, "USD", 0.9, 1),
		cand(CategoryLanguage, "en", 0.8, 2),
		cand(CategoryProductCategory, "electronics", 0.7, 3),
	}

	updated, applied := Reconcile(profile, batch, DefaultOptions())

	// Three records changed; still a single version increment.
	assert.Len(t, updated.Records, 3)
	assert.Len(t, applied, 3)
	assert.Equal(t, uint64(1), updated.Version)
}

func TestReconcile_CategoryUniqueness(t *testing.T) {
	profile := NewProfile("u1")
	batch := []Candidate{
		cand(CategoryCurrency, "USD", 0.5, 1),
		cand(CategoryCurrency, "EUR", 0.6, 2),
		cand(CategoryCurrency, "GBP", 0.7, 3),
		cand(CategoryCurrency, "JPY", 0.4, 4),
	}

	updated, applied := Reconcile(profile, batch, DefaultOptions())

	assert.Len(t, updated.Records, 1)
	assert.Equal(t, "GBP", updated.Records[CategoryCurrency].Value)

	superseded := 0
	for _, a := range applied {
		if a.Outcome == OutcomeSuperseded {
			superseded++
		}
	}
	assert.Equal(t, 3, superseded)
}

func TestReconcile_CustomOverrideThreshold(t *testing.T) {
	profile := NewProfile("u1")
	profile.Records[CategoryCurrency] = Record{
		Category: CategoryCurrency, Value: "USD", Confidence: 0.9, LastUpdated: 1,
	}

	// With a relaxed threshold 0.8, a 0.75 candidate clears 0.9*0.8=0.72.
	opts := Options{OverrideThreshold: 0.8}
	updated, applied := Reconcile(profile, []Candidate{
		cand(CategoryCurrency, "EUR", 0.75, 5),
	}, opts)

	require.Len(t, applied, 1)
	assert.Equal(t, OutcomeOverridden, applied[0].Outcome)
	assert.Equal(t, "EUR", updated.Records[CategoryCurrency].Value)
}

func TestReconcile_ZeroThresholdAlwaysOverrides(t *testing.T) {
	profile := NewProfile("u1")
	profile.Records[CategoryCurrency] = Record{
		Category: CategoryCurrency, Value: "USD", Confidence: 0.95, LastUpdated: 1,
	}

	// Threshold zero is its own setting, not a request for the default: any
	// disagreeing candidate wins regardless of confidence.
	opts := Options{OverrideThreshold: 0}
	updated, applied := Reconcile(profile, []Candidate{
		cand(CategoryCurrency, "EUR", 0.1, 5),
	}, opts)

	require.Len(t, applied, 1)
	assert.Equal(t, OutcomeOverridden, applied[0].Outcome)
	assert.Equal(t, "EUR", updated.Records[CategoryCurrency].Value)
}

func TestReconcile_HistoryBounded(t *testing.T) {
	profile := NewProfile("u1")
	opts := Options{OverrideThreshold: 0.1, MaxHistory: 3}

	values := []string{"USD", "EUR", "GBP", "JPY", "CHF", "CAD"}
	for i, v := range values {
		profile, _ = Reconcile(profile, []Candidate{
			cand(CategoryCurrency, v, 0.9, uint64(i+1)),
		}, opts)
	}

	rec := profile.Records[CategoryCurrency]
	assert.Equal(t, "CAD", rec.Value)
	require.Len(t, rec.History, 3)
	// Oldest entries dropped first.
	assert.Equal(t, "GBP", rec.History[0].Value)
	assert.Equal(t, "CHF", rec.History[2].Value)
}

func TestReconcile_EmptyBatch(t *testing.T) {
	profile := NewProfile("u1")
	profile.Version = 7

	updated, applied := Reconcile(profile, nil, DefaultOptions())

	assert.Empty(t, applied)
	assert.Equal(t, uint64(7), updated.Version)
}

func TestReconcile_MultiCategoryBatchDeterministicOrder(t *testing.T) {
	profile := NewProfile("u1")
	batch := []Candidate{
		cand(CategoryLanguage, "en", 0.8, 4),
		cand(CategoryCurrency, "USD", 0.9, 2),
		cand(CategoryLanguage, "ja", 0.9, 5),
		cand(CategoryCurrency, "EUR", 0.3, 3),
	}

	_, applied := Reconcile(profile, batch, DefaultOptions())
	require.Len(t, applied, 4)

	// Applied list follows the total order: categories sorted, then sequence.
	assert.Equal(t, CategoryCurrency, applied[0].Candidate.Category)
	assert.Equal(t, CategoryCurrency, applied[1].Candidate.Category)
	assert.Equal(t, CategoryLanguage, applied[2].Candidate.Category)
	assert.Equal(t, CategoryLanguage, applied[3].Candidate.Category)
}
