package preference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       Candidate
		wantErr error
	}{
		{
			name: "valid",
			c:    Candidate{Category: CategoryCurrency, Value: "USD", Confidence: 0.9},
		},
		{
			name:    "unknown category",
			c:       Candidate{Category: "mood", Value: "x", Confidence: 0.5},
			wantErr: ErrInvalidCategory,
		},
		{
			name:    "empty value",
			c:       Candidate{Category: CategoryOther, Confidence: 0.5},
			wantErr: ErrEmptyValue,
		},
		{
			name:    "confidence out of range",
			c:       Candidate{Category: CategoryOther, Value: "x", Confidence: 1.2},
			wantErr: ErrInvalidConfidence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestCandidateCanonical(t *testing.T) {
	c := Candidate{Value: "US Dollar", NormalizedValue: "USD"}
	assert.Equal(t, "USD", c.Canonical())

	c.NormalizedValue = ""
	assert.Equal(t, "US Dollar", c.Canonical())
}

func TestProfileClone(t *testing.T) {
	p := NewProfile("u1")
	p.Records[CategoryCurrency] = Record{
		Category: CategoryCurrency, Value: "USD", Confidence: 0.9,
		History: []HistoryEntry{{Value: "EUR", Confidence: 0.5, ReplacedAt: 1}},
	}
	p.Version = 2

	clone := p.Clone()
	require.NotSame(t, p, clone)

	// Mutating the clone must not leak into the original.
	rec := clone.Records[CategoryCurrency]
	rec.Value = "GBP"
	rec.History[0].Value = "JPY"
	clone.Records[CategoryCurrency] = rec

	assert.Equal(t, "USD", p.Records[CategoryCurrency].Value)
	assert.Equal(t, "EUR", p.Records[CategoryCurrency].History[0].Value)
}

func TestProfileValidate(t *testing.T) {
	p := NewProfile("")
	assert.ErrorIs(t, p.Validate(), ErrEmptyUserID)

	p = NewProfile("u1")
	p.Records[CategoryCurrency] = Record{Category: CategoryLanguage, Value: "en"}
	assert.Error(t, p.Validate())

	p = NewProfile("u1")
	p.Records[CategoryCurrency] = Record{Category: CategoryCurrency, Value: "USD", Confidence: 0.5}
	assert.NoError(t, p.Validate())
}
