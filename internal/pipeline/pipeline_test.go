package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/prefd/internal/extraction"
	"github.com/fyrsmithlabs/prefd/internal/preference"
	"github.com/fyrsmithlabs/prefd/internal/store"
)

// stubExtractor returns scripted results, one per call.
type stubExtractor struct {
	results []extraction.Result
	errs    []error
	calls   int
}

func (s *stubExtractor) Extract(ctx context.Context, window extraction.Window) (extraction.Result, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return extraction.Result{}, s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return extraction.Result{}, nil
}

func (s *stubExtractor) Available() bool { return true }

// flakyStore injects version conflicts into the first n saves.
type flakyStore struct {
	store.Store
	conflicts int
}

func (f *flakyStore) Save(ctx context.Context, profile *preference.Profile, revision uint64) (uint64, error) {
	if f.conflicts > 0 {
		f.conflicts--
		return 0, store.ErrVersionConflict
	}
	return f.Store.Save(ctx, profile, revision)
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.ExtractBackoff = time.Millisecond
	return opts
}

func testWindow(userID string) extraction.Window {
	return extraction.Window{
		UserID: userID,
		Turns: []extraction.Turn{
			{Role: "user", Content: "I'd prefer to pay in euros and please respond in Japanese."},
		},
	}
}

func candidateResult(cands ...preference.Candidate) extraction.Result {
	return extraction.Result{Candidates: cands}
}

func TestProcessTurn_EndToEnd(t *testing.T) {
	st := store.NewMemoryStore()
	ex := &stubExtractor{
		results: []extraction.Result{
			candidateResult(
				preference.Candidate{Category: preference.CategoryCurrency, Value: "euros", Confidence: 0.9},
				preference.Candidate{Category: preference.CategoryLanguage, Value: "Japanese", Confidence: 0.8},
			),
		},
	}

	p, err := New(st, ex, fastOptions(), zap.NewNop())
	require.NoError(t, err)

	result, err := p.ProcessTurn(context.Background(), testWindow("u1"))
	require.NoError(t, err)

	assert.Equal(t, "EUR", result.Profile.Records[preference.CategoryCurrency].Value)
	assert.Equal(t, "ja", result.Profile.Records[preference.CategoryLanguage].Value)
	assert.Equal(t, uint64(1), result.Profile.Version)
	assert.Len(t, result.Applied, 2)
	assert.Empty(t, result.Dropped)

	// And it is persisted.
	stored, _, err := st.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "EUR", stored.Records[preference.CategoryCurrency].Value)
}

func TestProcessTurn_ExtractionUnavailable(t *testing.T) {
	st := store.NewMemoryStore()
	ex := &stubExtractor{
		errs: []error{
			extraction.ErrUnavailable,
			extraction.ErrUnavailable,
			extraction.ErrUnavailable,
			extraction.ErrUnavailable,
		},
	}

	opts := fastOptions()
	opts.MaxExtractRetries = 2

	p, err := New(st, ex, opts, zap.NewNop())
	require.NoError(t, err)

	_, err = p.ProcessTurn(context.Background(), testWindow("u1"))
	assert.ErrorIs(t, err, ErrExtractionUnavailable)
	assert.Equal(t, 3, ex.calls) // first attempt + 2 retries

	// Profile untouched.
	assert.Equal(t, 0, st.Len())
}

func TestProcessTurn_ExtractionRecovers(t *testing.T) {
	st := store.NewMemoryStore()
	ex := &stubExtractor{
		errs: []error{extraction.ErrUnavailable, extraction.ErrUnavailable, nil},
		results: []extraction.Result{
			{}, {},
			candidateResult(preference.Candidate{Category: preference.CategoryCurrency, Value: "USD", Confidence: 0.9}),
		},
	}

	p, err := New(st, ex, fastOptions(), zap.NewNop())
	require.NoError(t, err)

	result, err := p.ProcessTurn(context.Background(), testWindow("u1"))
	require.NoError(t, err)
	assert.Equal(t, 3, ex.calls)
	assert.Equal(t, "USD", result.Profile.Records[preference.CategoryCurrency].Value)
}

func TestProcessTurn_TerminalExtractionErrorDoesNotRetry(t *testing.T) {
	st := store.NewMemoryStore()
	ex := &stubExtractor{
		errs: []error{errors.New("API error (400): invalid model")},
	}

	p, err := New(st, ex, fastOptions(), zap.NewNop())
	require.NoError(t, err)

	_, err = p.ProcessTurn(context.Background(), testWindow("u1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExtractionUnavailable)
	assert.Equal(t, 1, ex.calls)
}

func TestProcessTurn_UnparseableModelOutputFailsOpen(t *testing.T) {
	st := store.NewMemoryStore()
	ex := &stubExtractor{
		results: []extraction.Result{
			{Warnings: []string{"unparseable model response, discarded: invalid character 'S' looking for beginning of value"}},
		},
	}

	p, err := New(st, ex, fastOptions(), zap.NewNop())
	require.NoError(t, err)

	// A window whose model output could not be parsed still succeeds with
	// zero candidates; the discard surfaces as a warning, not a failure.
	result, err := p.ProcessTurn(context.Background(), testWindow("u1"))
	require.NoError(t, err)
	assert.Equal(t, 1, ex.calls)
	require.Len(t, result.Warnings, 1)
	assert.Empty(t, result.Applied)
	assert.Empty(t, result.Profile.Records)
	assert.Equal(t, 0, st.Len())
}

func TestProcessTurn_NormalizationDropsCandidate(t *testing.T) {
	st := store.NewMemoryStore()
	ex := &stubExtractor{
		results: []extraction.Result{
			candidateResult(
				preference.Candidate{Category: preference.CategoryCurrency, Value: "doubloons", Confidence: 0.9},
				preference.Candidate{Category: preference.CategoryLanguage, Value: "Japanese", Confidence: 0.8},
			),
		},
	}

	p, err := New(st, ex, fastOptions(), zap.NewNop())
	require.NoError(t, err)

	result, err := p.ProcessTurn(context.Background(), testWindow("u1"))
	require.NoError(t, err)

	// The bad currency is dropped; the language still lands.
	require.Len(t, result.Dropped, 1)
	_, hasCurrency := result.Profile.Records[preference.CategoryCurrency]
	assert.False(t, hasCurrency)
	assert.Equal(t, "ja", result.Profile.Records[preference.CategoryLanguage].Value)
}

func TestProcessTurn_NoCandidatesLeavesStoreAlone(t *testing.T) {
	st := store.NewMemoryStore()
	ex := &stubExtractor{}

	p, err := New(st, ex, fastOptions(), zap.NewNop())
	require.NoError(t, err)

	result, err := p.ProcessTurn(context.Background(), testWindow("u1"))
	require.NoError(t, err)

	assert.Empty(t, result.Profile.Records)
	assert.Equal(t, uint64(0), result.Profile.Version)
	assert.Equal(t, 0, st.Len())
}

func TestProcessTurn_SaveConflictRetries(t *testing.T) {
	st := &flakyStore{Store: store.NewMemoryStore(), conflicts: 1}
	ex := &stubExtractor{
		results: []extraction.Result{
			candidateResult(preference.Candidate{Category: preference.CategoryCurrency, Value: "USD", Confidence: 0.9}),
		},
	}

	p, err := New(st, ex, fastOptions(), zap.NewNop())
	require.NoError(t, err)

	result, err := p.ProcessTurn(context.Background(), testWindow("u1"))
	require.NoError(t, err)
	assert.Equal(t, "USD", result.Profile.Records[preference.CategoryCurrency].Value)
}

func TestProcessTurn_ConflictExhaustion(t *testing.T) {
	st := &flakyStore{Store: store.NewMemoryStore(), conflicts: 100}
	ex := &stubExtractor{
		results: []extraction.Result{
			candidateResult(preference.Candidate{Category: preference.CategoryCurrency, Value: "USD", Confidence: 0.9}),
		},
	}

	opts := fastOptions()
	opts.MaxSaveRetries = 2

	p, err := New(st, ex, opts, zap.NewNop())
	require.NoError(t, err)

	_, err = p.ProcessTurn(context.Background(), testWindow("u1"))
	assert.ErrorIs(t, err, ErrReconciliationConflict)
}

func TestProcessTurn_RecencyAcrossTurns(t *testing.T) {
	st := store.NewMemoryStore()
	ex := &stubExtractor{
		results: []extraction.Result{
			candidateResult(preference.Candidate{Category: preference.CategoryCurrency, Value: "euros", Confidence: 0.9}),
			candidateResult(preference.Candidate{Category: preference.CategoryCurrency, Value: "USD", Confidence: 0.9}),
		},
	}

	p, err := New(st, ex, fastOptions(), zap.NewNop())
	require.NoError(t, err)

	_, err = p.ProcessTurn(context.Background(), testWindow("u1"))
	require.NoError(t, err)

	// The later turn carries a later logical timestamp and, at equal
	// confidence, overrides the earlier value.
	result, err := p.ProcessTurn(context.Background(), testWindow("u1"))
	require.NoError(t, err)

	rec := result.Profile.Records[preference.CategoryCurrency]
	assert.Equal(t, "USD", rec.Value)
	require.Len(t, rec.History, 1)
	assert.Equal(t, "EUR", rec.History[0].Value)
	assert.Equal(t, uint64(2), result.Profile.Version)
}

func TestProcessTurn_AllRejectedNoVersionBump(t *testing.T) {
	st := store.NewMemoryStore()
	ex := &stubExtractor{
		results: []extraction.Result{
			candidateResult(preference.Candidate{Category: preference.CategoryCurrency, Value: "USD", Confidence: 0.9}),
			candidateResult(preference.Candidate{Category: preference.CategoryCurrency, Value: "euros", Confidence: 0.3}),
		},
	}

	p, err := New(st, ex, fastOptions(), zap.NewNop())
	require.NoError(t, err)

	first, err := p.ProcessTurn(context.Background(), testWindow("u1"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), first.Profile.Version)

	second, err := p.ProcessTurn(context.Background(), testWindow("u1"))
	require.NoError(t, err)

	require.Len(t, second.Applied, 1)
	assert.Equal(t, preference.OutcomeRejectedLowConfidence, second.Applied[0].Outcome)
	assert.Equal(t, uint64(1), second.Profile.Version)
	assert.Equal(t, "USD", second.Profile.Records[preference.CategoryCurrency].Value)

	// The store still holds the first revision; nothing was rewritten.
	_, rev, err := st.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rev)
}

func TestProcessTurn_ConfiguredWindowBound(t *testing.T) {
	opts := fastOptions()
	opts.MaxWindowTurns = 1

	ex := &stubExtractor{}
	p, err := New(store.NewMemoryStore(), ex, opts, zap.NewNop())
	require.NoError(t, err)

	window := extraction.Window{
		UserID: "u1",
		Turns: []extraction.Turn{
			{Role: "user", Content: "I'd prefer euros."},
			{Role: "user", Content: "Actually, dollars."},
		},
	}

	_, err = p.ProcessTurn(context.Background(), window)
	require.Error(t, err)
	assert.Equal(t, 0, ex.calls)

	// A single turn fits the configured bound.
	_, err = p.ProcessTurn(context.Background(), testWindow("u1"))
	require.NoError(t, err)
}

func TestProcessTurn_InvalidWindow(t *testing.T) {
	p, err := New(store.NewMemoryStore(), &stubExtractor{}, fastOptions(), zap.NewNop())
	require.NoError(t, err)

	_, err = p.ProcessTurn(context.Background(), extraction.Window{UserID: "u1"})
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &stubExtractor{}, DefaultOptions(), zap.NewNop())
	assert.Error(t, err)

	_, err = New(store.NewMemoryStore(), nil, DefaultOptions(), zap.NewNop())
	assert.Error(t, err)
}
