package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/prefd/internal/preference"
)

// extractPrompt is the system prompt shared by all LLM providers. It pins
// the category set and the response shape so every provider can be parsed
// by the same code path.
const extractPrompt = `You are an expert at identifying stable user preferences in conversations.

Your task is to read a conversation window and extract preferences the USER has stated or strongly implied. Only extract preferences that would still hold in a future conversation; ignore one-off requests.

Each preference has a category:
- "currency": preferred currency for prices (value: the currency as stated, e.g. "euros", "USD")
- "language": preferred language for responses (value: the language as stated, e.g. "Japanese", "pt-BR")
- "communication_style": how the user wants to be addressed (e.g. "concise", "formal")
- "product_category": a product area the user cares about (e.g. "electronics")
- "other": standing rules or facts worth remembering (e.g. "never suggest seafood")

Languages you may see include: English (en), Spanish (es), French (fr), German (de), Italian (it), Portuguese (pt), Dutch (nl), Japanese (ja), Chinese (zh), Korean (ko), Russian (ru), Arabic (ar), Hindi (hi), Turkish (tr), Polish (pl), Swedish (sv).

Respond with a JSON array. Each element is an object with:
- "category": one of the five categories above
- "value": the preference value as the user expressed it
- "confidence": how certain you are this is a stable preference (0.0 to 1.0)
- "turn": zero-based index of the turn the preference came from

Return [] if the window contains no preferences. Respond ONLY with the JSON array, no additional text.`

// candidateItem is the per-element shape expected from LLM responses.
type candidateItem struct {
	Category   string  `json:"category"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Turn       int     `json:"turn"`
}

// renderWindow flattens a window into the user message sent to providers.
func renderWindow(w Window) string {
	var b strings.Builder
	for i, t := range w.Turns {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i, t.Role, t.Content)
	}
	if w.LocaleHint != "" {
		fmt.Fprintf(&b, "\nUser locale: %s\n", w.LocaleHint)
	}
	return b.String()
}

// parseCandidatesJSON parses and validates an LLM response.
//
// Validation fails open at every level: an entirely unparseable payload is
// discarded as zero candidates with a warning, entries with an unknown
// category or empty value are dropped with a warning, and out-of-range
// confidences are clamped into [0,1] with a warning. A malformed model
// response never fails the window.
func parseCandidatesJSON(content string, turns int) ([]preference.Candidate, []string) {
	cleaned := strings.TrimSpace(content)
	// Some models wrap JSON in markdown code fences.
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var items []candidateItem
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, []string{fmt.Sprintf("unparseable model response, discarded: %v", err)}
	}

	candidates := make([]preference.Candidate, 0, len(items))
	var warnings []string

	for i, item := range items {
		cat := preference.Category(strings.ToLower(strings.TrimSpace(item.Category)))
		if !cat.Valid() {
			warnings = append(warnings, fmt.Sprintf("entry %d: unknown category %q, dropped", i, item.Category))
			continue
		}

		value := strings.TrimSpace(item.Value)
		if value == "" {
			warnings = append(warnings, fmt.Sprintf("entry %d: empty value, dropped", i))
			continue
		}

		confidence := item.Confidence
		if confidence < 0 || confidence > 1 {
			warnings = append(warnings, fmt.Sprintf("entry %d: confidence %.2f out of range, clamped", i, confidence))
			confidence = clamp01(confidence)
		}

		turn := item.Turn
		if turn < 0 || turn >= turns {
			warnings = append(warnings, fmt.Sprintf("entry %d: turn %d out of window, zeroed", i, turn))
			turn = 0
		}

		candidates = append(candidates, preference.Candidate{
			Category:   cat,
			Value:      value,
			Confidence: confidence,
			SourceSpan: preference.Span{Turn: turn},
		})
	}

	return candidates, warnings
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
