// Package extraction turns conversation windows into preference candidates.
//
// The package supports:
//   - LLM-backed extraction via Anthropic, OpenAI, or a langchaingo-managed
//     provider, all returning the same structured candidate JSON
//   - Heuristic pattern-based extraction for offline and test use
//   - Fail-open response validation: unparseable payloads and malformed
//     candidate entries are discarded with warnings instead of failing the
//     whole window
//   - Token usage accounting per extraction call
//
// # Architecture
//
// The main components are:
//   - Extractor: the single interface the pipeline consumes
//   - Window: an ordered, bounded slice of conversation turns for one user
//   - Result: validated candidates plus warnings and token usage
//
// Providers are selected through NewExtractor using ExtractionConfig. The
// "disabled" provider yields a NoOpExtractor that extracts nothing, which
// keeps the rest of the pipeline exercisable without credentials.
//
// # Error model
//
// Transient provider failures (timeouts, 429s, 5xx) are reported wrapped in
// ErrUnavailable. Retry policy lives with the caller, not here: an extractor
// makes exactly one upstream attempt per Extract call.
package extraction
