package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/prefd/internal/preference"
)

func TestNormalizeCurrency(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"iso code passthrough", "USD", "USD"},
		{"lowercase iso code", "eur", "EUR"},
		{"spoken name", "US Dollar", "USD"},
		{"slang", "bucks", "USD"},
		{"spoken name with whitespace", "  Japanese Yen ", "JPY"},
		{"pound sterling", "Pounds Sterling", "GBP"},
		{"renminbi", "renminbi", "CNY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(preference.CategoryCurrency, tt.raw, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeCurrencyUnknown(t *testing.T) {
	for _, raw := range []string{"doubloons", "XQZ", ""} {
		_, err := Normalize(preference.CategoryCurrency, raw, "")
		require.Error(t, err, "raw=%q", raw)

		var nerr *Error
		require.True(t, errors.As(err, &nerr))
		assert.Equal(t, KindUnknownCurrency, nerr.Kind)
		assert.Equal(t, raw, nerr.Raw)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		hint string
		want string
	}{
		{"iso code passthrough", "en", "", "en"},
		{"common name", "Japanese", "", "ja"},
		{"mandarin maps to zh", "Mandarin", "", "zh"},
		{"regional variant collapses to base", "en-GB", "", "en"},
		{"hint adds explicit region", "portuguese", "pt-BR", "pt-BR"},
		{"hint without region keeps base", "portuguese", "pt", "pt"},
		{"hint for different language ignored", "japanese", "en-US", "ja"},
		{"uppercase code", "FR", "", "fr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(preference.CategoryLanguage, tt.raw, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeLanguageUnknown(t *testing.T) {
	_, err := Normalize(preference.CategoryLanguage, "klingonish gibberish !!", "")
	require.Error(t, err)

	var nerr *Error
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, KindUnknownLanguage, nerr.Kind)
}

func TestNormalizeFreeText(t *testing.T) {
	got, err := Normalize(preference.CategoryCommunicationStyle, "  Concise  ", "")
	require.NoError(t, err)
	assert.Equal(t, "concise", got)

	got, err = Normalize(preference.CategoryProductCategory, "Electronics", "")
	require.NoError(t, err)
	assert.Equal(t, "electronics", got)

	// Free-text normalization never fails, even on empty input.
	got, err = Normalize(preference.CategoryOther, "", "")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestNormalizeUnknownCategory(t *testing.T) {
	_, err := Normalize(preference.Category("mood"), "happy", "")
	require.Error(t, err)

	var nerr *Error
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, KindUnknownCategory, nerr.Kind)
}

func TestNormalizeStableAcrossCalls(t *testing.T) {
	// Same input, same output. Normalization carries no state.
	for i := 0; i < 3; i++ {
		got, err := Normalize(preference.CategoryCurrency, "euros", "")
		require.NoError(t, err)
		assert.Equal(t, "EUR", got)
	}
}
