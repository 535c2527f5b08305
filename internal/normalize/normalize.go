// Package normalize maps raw preference values to canonical codes.
//
// Currency values resolve to ISO 4217 codes and language values to ISO 639-1
// codes, each via golang.org/x/text plus a small alias table for the spoken
// names an extraction model tends to produce ("US Dollar", "Japanese").
// Free-text categories are normalized by trimming and case-folding only.
//
// Everything here is a pure mapping: no state, no side effects, safe to call
// concurrently and repeatedly.
package normalize

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"

	"github.com/fyrsmithlabs/prefd/internal/preference"
)

// Kind classifies a normalization failure.
type Kind string

const (
	// KindUnknownCurrency means the raw value did not resolve to an ISO 4217 code.
	KindUnknownCurrency Kind = "unknown_currency"

	// KindUnknownLanguage means the raw value did not resolve to a language code.
	KindUnknownLanguage Kind = "unknown_language"

	// KindUnknownCategory means the category is not part of the closed set.
	KindUnknownCategory Kind = "unknown_category"
)

// Error reports an unresolvable raw value. Normalization errors are
// recoverable: the caller drops the candidate and moves on.
type Error struct {
	Kind     Kind
	Category preference.Category
	Raw      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("normalize %s value %q: %s", e.Category, e.Raw, e.Kind)
}

// currencyAliases maps common spoken currency names to ISO 4217 codes.
// Deliberately conservative: ambiguous names ("franc", "peso") are omitted
// rather than guessed.
var currencyAliases = map[string]string{
	"dollar":            "USD",
	"dollars":           "USD",
	"us dollar":         "USD",
	"us dollars":        "USD",
	"u.s. dollar":       "USD",
	"american dollar":   "USD",
	"bucks":             "USD",
	"euro":              "EUR",
	"euros":             "EUR",
	"pound":             "GBP",
	"pounds":            "GBP",
	"pound sterling":    "GBP",
	"pounds sterling":   "GBP",
	"british pound":     "GBP",
	"quid":              "GBP",
	"yen":               "JPY",
	"japanese yen":      "JPY",
	"yuan":              "CNY",
	"renminbi":          "CNY",
	"won":               "KRW",
	"korean won":        "KRW",
	"rupee":             "INR",
	"rupees":            "INR",
	"indian rupee":      "INR",
	"swiss franc":       "CHF",
	"canadian dollar":   "CAD",
	"australian dollar": "AUD",
	"real":              "BRL",
	"brazilian real":    "BRL",
	"krona":             "SEK",
	"swedish krona":     "SEK",
	"zloty":             "PLN",
	"baht":              "THB",
	"ruble":             "RUB",
	"rouble":            "RUB",
}

// languageAliases maps common language names to ISO 639-1 codes.
var languageAliases = map[string]string{
	"english":    "en",
	"japanese":   "ja",
	"spanish":    "es",
	"castilian":  "es",
	"french":     "fr",
	"german":     "de",
	"chinese":    "zh",
	"mandarin":   "zh",
	"cantonese":  "yue",
	"korean":     "ko",
	"italian":    "it",
	"portuguese": "pt",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"thai":       "th",
	"vietnamese": "vi",
	"indonesian": "id",
	"turkish":    "tr",
	"polish":     "pl",
	"swedish":    "sv",
	"ukrainian":  "uk",
	"greek":      "el",
	"hebrew":     "he",
	"danish":     "da",
	"finnish":    "fi",
	"norwegian":  "no",
	"czech":      "cs",
}

// Normalize resolves a raw extracted value to its canonical form.
//
// The locale hint, when present, disambiguates regional language variants:
// a raw "portuguese" with hint "pt-BR" yields "pt-BR" instead of the bare
// base code. Hints never influence currency resolution.
func Normalize(category preference.Category, raw, localeHint string) (string, error) {
	switch category {
	case preference.CategoryCurrency:
		return normalizeCurrency(raw)
	case preference.CategoryLanguage:
		return normalizeLanguage(raw, localeHint)
	case preference.CategoryCommunicationStyle, preference.CategoryProductCategory, preference.CategoryOther:
		return normalizeText(raw), nil
	default:
		return "", &Error{Kind: KindUnknownCategory, Category: category, Raw: raw}
	}
}

func normalizeCurrency(raw string) (string, error) {
	cleaned := normalizeText(raw)
	if cleaned == "" {
		return "", &Error{Kind: KindUnknownCurrency, Category: preference.CategoryCurrency, Raw: raw}
	}

	if code, ok := currencyAliases[cleaned]; ok {
		return code, nil
	}

	unit, err := currency.ParseISO(strings.ToUpper(cleaned))
	if err != nil {
		return "", &Error{Kind: KindUnknownCurrency, Category: preference.CategoryCurrency, Raw: raw}
	}
	return unit.String(), nil
}

func normalizeLanguage(raw, localeHint string) (string, error) {
	cleaned := normalizeText(raw)
	if cleaned == "" {
		return "", &Error{Kind: KindUnknownLanguage, Category: preference.CategoryLanguage, Raw: raw}
	}

	base := ""
	if code, ok := languageAliases[cleaned]; ok {
		base = code
	} else {
		tag, err := language.Parse(cleaned)
		if err != nil {
			return "", &Error{Kind: KindUnknownLanguage, Category: preference.CategoryLanguage, Raw: raw}
		}
		b, conf := tag.Base()
		if conf == language.No {
			return "", &Error{Kind: KindUnknownLanguage, Category: preference.CategoryLanguage, Raw: raw}
		}
		base = b.String()
	}

	// Regional variants collapse to the base language unless the hint names
	// a region explicitly and agrees on the base language.
	if region, ok := explicitRegion(localeHint, base); ok {
		return base + "-" + region, nil
	}
	return base, nil
}

// explicitRegion returns the region subtag carried by the hint, but only when
// the hint spells it out (no inference) and its base language matches.
func explicitRegion(localeHint, base string) (string, bool) {
	hint := strings.TrimSpace(localeHint)
	if hint == "" {
		return "", false
	}
	tag, err := language.Parse(hint)
	if err != nil {
		return "", false
	}
	hintBase, _, region := tag.Raw()
	if hintBase.String() != base {
		return "", false
	}
	if region.String() == "ZZ" || !region.IsCountry() {
		return "", false
	}
	return region.String(), true
}

func normalizeText(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
