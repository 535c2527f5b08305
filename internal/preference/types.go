package preference

import (
	"errors"
	"fmt"
)

// Common errors for preference operations.
var (
	ErrEmptyUserID       = errors.New("user ID cannot be empty")
	ErrEmptyValue        = errors.New("preference value cannot be empty")
	ErrInvalidCategory   = errors.New("unknown preference category")
	ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")
)

// Category identifies what kind of preference a candidate or record expresses.
type Category string

const (
	// CategoryCurrency is a preferred ISO 4217 currency code.
	CategoryCurrency Category = "currency"

	// CategoryLanguage is a preferred ISO 639-1 language code.
	CategoryLanguage Category = "language"

	// CategoryCommunicationStyle is a free-text communication preference
	// (e.g. "concise", "formal").
	CategoryCommunicationStyle Category = "communication_style"

	// CategoryProductCategory is a free-text product interest.
	CategoryProductCategory Category = "product_category"

	// CategoryOther covers standing rules, facts, and memories that don't
	// fit a more specific category.
	CategoryOther Category = "other"
)

// Categories lists every valid category in declaration order.
func Categories() []Category {
	return []Category{
		CategoryCurrency,
		CategoryLanguage,
		CategoryCommunicationStyle,
		CategoryProductCategory,
		CategoryOther,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCurrency, CategoryLanguage, CategoryCommunicationStyle,
		CategoryProductCategory, CategoryOther:
		return true
	}
	return false
}

// Span locates the utterance a candidate was extracted from, for audit
// and debugging. Offsets are rune positions within the turn's content.
type Span struct {
	// Turn is the zero-based index of the utterance in the window.
	Turn int `json:"turn"`

	// Start and End bound the matched text within the turn, when known.
	Start int `json:"start,omitempty"`
	End   int `json:"end,omitempty"`
}

// Candidate is one extracted, not-yet-reconciled preference statement.
//
// Candidates from the same window may legitimately contradict each other;
// resolving contradictions is entirely the resolver's job.
type Candidate struct {
	// Category is the preference kind. Must be a valid Category.
	Category Category `json:"category"`

	// Value is the raw string as extracted from the conversation.
	Value string `json:"value"`

	// NormalizedValue is the canonical form after normalization.
	// Empty until the candidate has passed through the normalizer.
	NormalizedValue string `json:"normalized_value,omitempty"`

	// Confidence is the extraction confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// SourceSpan points back at the originating utterance.
	SourceSpan Span `json:"source_span"`

	// ExtractedAt is a monotonic logical sequence number, not wall clock.
	// Reconciliation ordering depends only on it, which keeps merges
	// deterministic in tests.
	ExtractedAt uint64 `json:"extracted_at"`
}

// Canonical returns the value reconciliation should compare: the normalized
// form when present, the raw value otherwise.
func (c Candidate) Canonical() string {
	if c.NormalizedValue != "" {
		return c.NormalizedValue
	}
	return c.Value
}

// Validate checks the candidate for structural problems.
func (c Candidate) Validate() error {
	if !c.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, c.Category)
	}
	if c.Value == "" {
		return ErrEmptyValue
	}
	if c.Confidence < 0.0 || c.Confidence > 1.0 {
		return ErrInvalidConfidence
	}
	return nil
}

// HistoryEntry is one superseded value kept for audit.
type HistoryEntry struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	ReplacedAt uint64  `json:"replaced_at"`
}

// Record is the active entry for one category in a user's profile.
type Record struct {
	Category Category `json:"category"`

	// Value is the canonical, normalized value.
	Value string `json:"value"`

	// Confidence is the current confidence in [0,1]. Reinforcement never
	// lowers it.
	Confidence float64 `json:"confidence"`

	// LastUpdated is the logical timestamp of the last change.
	LastUpdated uint64 `json:"last_updated"`

	// History holds superseded values, oldest first. Append-only and
	// bounded; entries are never mutated in place.
	History []HistoryEntry `json:"history,omitempty"`
}

// Profile is the canonical preference profile for one user.
//
// At most one active record exists per category. The profile is created
// lazily on first successful extraction and is only ever mutated by
// reconciliation; deletion is an administrative operation outside the engine.
type Profile struct {
	// UserID is an opaque stable identifier.
	UserID string `json:"user_id"`

	// Records maps category to the active record for that category.
	Records map[Category]Record `json:"records"`

	// Version increments by exactly one on every reconciliation that
	// changed anything. The store uses it for optimistic concurrency.
	Version uint64 `json:"version"`
}

// NewProfile creates an empty profile for the given user.
func NewProfile(userID string) *Profile {
	return &Profile{
		UserID:  userID,
		Records: make(map[Category]Record),
	}
}

// Validate checks the profile for structural problems.
func (p *Profile) Validate() error {
	if p.UserID == "" {
		return ErrEmptyUserID
	}
	for cat, rec := range p.Records {
		if !cat.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidCategory, cat)
		}
		if rec.Category != cat {
			return fmt.Errorf("record filed under %q carries category %q", cat, rec.Category)
		}
		if rec.Confidence < 0.0 || rec.Confidence > 1.0 {
			return ErrInvalidConfidence
		}
	}
	return nil
}

// Clone returns a deep copy of the profile. Reconciliation and the stores
// operate on copies so callers never share mutable state.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := &Profile{
		UserID:  p.UserID,
		Records: make(map[Category]Record, len(p.Records)),
		Version: p.Version,
	}
	for cat, rec := range p.Records {
		cp := rec
		if len(rec.History) > 0 {
			cp.History = make([]HistoryEntry, len(rec.History))
			copy(cp.History, rec.History)
		}
		out.Records[cat] = cp
	}
	return out
}

// Outcome describes what reconciliation did with one candidate.
type Outcome string

const (
	// OutcomeInserted means no active record existed; the candidate became one.
	OutcomeInserted Outcome = "inserted"

	// OutcomeReinforced means the candidate agreed with the active record;
	// confidence was raised to the max of the two.
	OutcomeReinforced Outcome = "reinforced"

	// OutcomeOverridden means the candidate replaced a disagreeing active
	// record; the prior value moved to history.
	OutcomeOverridden Outcome = "overridden"

	// OutcomeRejectedLowConfidence means the candidate disagreed with the
	// active record but did not clear the override threshold.
	OutcomeRejectedLowConfidence Outcome = "rejected_low_confidence"

	// OutcomeSuperseded means another candidate in the same batch won the
	// category. Kept visible for audit, never silently dropped.
	OutcomeSuperseded Outcome = "superseded"
)

// Applied pairs a candidate with the outcome reconciliation assigned it.
type Applied struct {
	Candidate Candidate `json:"candidate"`
	Outcome   Outcome   `json:"outcome"`
}
