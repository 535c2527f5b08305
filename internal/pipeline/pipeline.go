// Package pipeline orchestrates a conversation turn end to end: load the
// profile, extract candidates, normalize them, reconcile, save.
//
// Two failure modes are retried in place. A transient extraction failure is
// retried with exponential backoff up to MaxExtractRetries; exhaustion
// surfaces as ErrExtractionUnavailable with the profile untouched. A save
// rejected for a stale revision loops back to LOAD up to MaxSaveRetries;
// exhaustion surfaces as ErrReconciliationConflict. Everything else fails the
// turn immediately.
//
// The pipeline is safe for concurrent use. Concurrent turns for the same
// user race on the store's revision check, which is detection, not
// prevention: one writer wins, the other reloads and reapplies.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/prefd/internal/extraction"
	"github.com/fyrsmithlabs/prefd/internal/normalize"
	"github.com/fyrsmithlabs/prefd/internal/preference"
	"github.com/fyrsmithlabs/prefd/internal/store"
)

// Common errors for turn processing.
var (
	// ErrExtractionUnavailable means the provider stayed down across every
	// retry. The turn had no effect; callers may resubmit later.
	ErrExtractionUnavailable = errors.New("extraction unavailable after retries")

	// ErrReconciliationConflict means concurrent writers kept invalidating
	// the save. The window's candidates were not applied.
	ErrReconciliationConflict = errors.New("reconciliation conflict after retries")
)

// Defaults for the retry knobs.
const (
	DefaultMaxExtractRetries = 3
	DefaultMaxSaveRetries    = 3
	DefaultExtractBackoff    = 1 * time.Second
)

const instrumentationName = "github.com/fyrsmithlabs/prefd/internal/pipeline"

// Options tune the pipeline's retry behavior and reconciliation.
type Options struct {
	// MaxExtractRetries is how many times a transient extraction failure
	// is retried after the first attempt.
	MaxExtractRetries int

	// ExtractBackoff is the base for exponential extraction backoff
	// (base, 2*base, 4*base, ...).
	ExtractBackoff time.Duration

	// MaxSaveRetries is how many times a conflicted save loops back to
	// LOAD after the first attempt.
	MaxSaveRetries int

	// MaxWindowTurns bounds how many turns an incoming window may carry.
	// Zero or less means extraction.DefaultMaxWindowTurns.
	MaxWindowTurns int

	// Resolve is passed through to reconciliation.
	Resolve preference.Options
}

// DefaultOptions returns the documented default pipeline options.
func DefaultOptions() Options {
	return Options{
		MaxExtractRetries: DefaultMaxExtractRetries,
		ExtractBackoff:    DefaultExtractBackoff,
		MaxSaveRetries:    DefaultMaxSaveRetries,
		Resolve:           preference.DefaultOptions(),
	}
}

func (o Options) withDefaults() Options {
	if o.MaxExtractRetries <= 0 {
		o.MaxExtractRetries = DefaultMaxExtractRetries
	}
	if o.ExtractBackoff <= 0 {
		o.ExtractBackoff = DefaultExtractBackoff
	}
	if o.MaxSaveRetries <= 0 {
		o.MaxSaveRetries = DefaultMaxSaveRetries
	}
	return o
}

// TurnResult is what one processed turn produced.
type TurnResult struct {
	// Profile is the profile after the turn. For turns that changed
	// nothing it is the stored profile as-is; for users with no stored
	// profile and no extracted candidates it is empty and unpersisted.
	Profile *preference.Profile `json:"profile"`

	// Applied lists every candidate with its reconciliation outcome.
	Applied []preference.Applied `json:"applied,omitempty"`

	// Dropped lists candidates lost to normalization, for audit.
	Dropped []string `json:"dropped,omitempty"`

	// Warnings carries extraction-side validation warnings.
	Warnings []string `json:"warnings,omitempty"`

	Usage extraction.Usage `json:"usage"`
}

// Pipeline wires the extractor, normalizer, resolver, and store together.
type Pipeline struct {
	store     store.Store
	extractor extraction.Extractor
	opts      Options
	logger    *zap.Logger
	tracer    trace.Tracer

	// seq issues the monotonic logical timestamps candidates are
	// reconciled under. Process-local by design.
	seq atomic.Uint64
}

// New creates a pipeline. Store and extractor are required.
func New(st store.Store, ex extraction.Extractor, opts Options, logger *zap.Logger) (*Pipeline, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if ex == nil {
		return nil, errors.New("extractor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		store:     st,
		extractor: ex,
		opts:      opts.withDefaults(),
		logger:    logger,
		tracer:    otel.Tracer(instrumentationName),
	}, nil
}

// ProcessTurn runs one conversation window through the engine.
func (p *Pipeline) ProcessTurn(ctx context.Context, window extraction.Window) (*TurnResult, error) {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "pipeline.process_turn",
		trace.WithAttributes(
			attribute.String("user_id", window.UserID),
			attribute.Int("turns", len(window.Turns)),
		))
	defer span.End()

	if err := window.ValidateMax(p.opts.MaxWindowTurns); err != nil {
		TurnsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("invalid window: %w", err)
	}

	result, err := p.processTurn(ctx, window)
	TurnDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		TurnsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrExtractionUnavailable):
		TurnsTotal.WithLabelValues("extraction_unavailable").Inc()
	case errors.Is(err, ErrReconciliationConflict):
		TurnsTotal.WithLabelValues("conflict").Inc()
	default:
		TurnsTotal.WithLabelValues("error").Inc()
	}
	return result, err
}

func (p *Pipeline) processTurn(ctx context.Context, window extraction.Window) (*TurnResult, error) {
	extracted, err := p.extract(ctx, window)
	if err != nil {
		return nil, err
	}

	TokensTotal.WithLabelValues("input").Add(float64(extracted.Usage.InputTokens))
	TokensTotal.WithLabelValues("output").Add(float64(extracted.Usage.OutputTokens))

	candidates, dropped := p.normalizeAll(ctx, window, extracted.Candidates)

	result := &TurnResult{
		Dropped:  dropped,
		Warnings: extracted.Warnings,
		Usage:    extracted.Usage,
	}

	// Nothing to reconcile: report the stored profile untouched. A user
	// with no profile does not get one created for an empty window.
	if len(candidates) == 0 {
		profile, _, err := p.store.Load(ctx, window.UserID)
		if errors.Is(err, store.ErrNotFound) {
			result.Profile = preference.NewProfile(window.UserID)
			return result, nil
		}
		if err != nil {
			return nil, fmt.Errorf("loading profile: %w", err)
		}
		result.Profile = profile
		return result, nil
	}

	profile, applied, err := p.reconcileAndSave(ctx, window.UserID, candidates)
	if err != nil {
		return nil, err
	}

	for _, a := range applied {
		OutcomesTotal.WithLabelValues(string(a.Outcome)).Inc()
	}

	result.Profile = profile
	result.Applied = applied
	return result, nil
}

// extract runs the provider with bounded exponential backoff on transient
// failures. Non-transient errors are terminal on the first occurrence.
func (p *Pipeline) extract(ctx context.Context, window extraction.Window) (extraction.Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.extract")
	defer span.End()

	var lastErr error
	for attempt := 0; attempt <= p.opts.MaxExtractRetries; attempt++ {
		if attempt > 0 {
			ExtractRetries.Inc()
			backoff := p.opts.ExtractBackoff * time.Duration(1<<(attempt-1))
			p.logger.Warn("extraction failed, retrying",
				zap.String("user_id", window.UserID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return extraction.Result{}, ctx.Err()
			}
		}

		result, err := p.extractor.Extract(ctx, window)
		if err == nil {
			span.SetAttributes(attribute.Int("candidates", len(result.Candidates)))
			return result, nil
		}
		if !errors.Is(err, extraction.ErrUnavailable) {
			return extraction.Result{}, fmt.Errorf("extracting candidates: %w", err)
		}
		lastErr = err
	}

	return extraction.Result{}, fmt.Errorf("%w: %v", ErrExtractionUnavailable, lastErr)
}

// normalizeAll canonicalizes candidates and stamps their logical sequence
// numbers. A candidate that fails normalization is dropped, not the turn.
func (p *Pipeline) normalizeAll(ctx context.Context, window extraction.Window, candidates []preference.Candidate) ([]preference.Candidate, []string) {
	_, span := p.tracer.Start(ctx, "pipeline.normalize")
	defer span.End()

	normalized := make([]preference.Candidate, 0, len(candidates))
	var dropped []string

	for _, c := range candidates {
		canonical, err := normalize.Normalize(c.Category, c.Value, window.LocaleHint)
		if err != nil {
			CandidatesDropped.Inc()
			dropped = append(dropped, err.Error())
			p.logger.Warn("dropping unnormalizable candidate",
				zap.String("user_id", window.UserID),
				zap.String("category", string(c.Category)),
				zap.String("value", c.Value),
				zap.Error(err))
			continue
		}

		c.NormalizedValue = canonical
		c.ExtractedAt = p.seq.Add(1)
		normalized = append(normalized, c)
	}

	span.SetAttributes(attribute.Int("dropped", len(dropped)))
	return normalized, dropped
}

// reconcileAndSave runs the LOAD -> RECONCILE -> SAVE loop under optimistic
// concurrency.
func (p *Pipeline) reconcileAndSave(ctx context.Context, userID string, candidates []preference.Candidate) (*preference.Profile, []preference.Applied, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.reconcile_save")
	defer span.End()

	for attempt := 0; attempt <= p.opts.MaxSaveRetries; attempt++ {
		if attempt > 0 {
			SaveRetries.Inc()
		}

		profile, revision, err := p.store.Load(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			profile = preference.NewProfile(userID)
			revision = 0
		} else if err != nil {
			return nil, nil, fmt.Errorf("loading profile: %w", err)
		}

		updated, applied := preference.Reconcile(profile, candidates, p.opts.Resolve)

		// Every candidate bounced off the existing profile; there is
		// nothing to persist and nothing to race against.
		if updated.Version == profile.Version && revision != 0 {
			return updated, applied, nil
		}

		if _, err := p.store.Save(ctx, updated, revision); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				p.logger.Info("profile changed underneath us, retrying",
					zap.String("user_id", userID),
					zap.Int("attempt", attempt+1))
				continue
			}
			return nil, nil, fmt.Errorf("saving profile: %w", err)
		}

		p.logger.Debug("turn reconciled",
			zap.String("user_id", userID),
			zap.Uint64("version", updated.Version),
			zap.Int("applied", len(applied)))
		return updated, applied, nil
	}

	return nil, nil, fmt.Errorf("user %q: %w", userID, ErrReconciliationConflict)
}
