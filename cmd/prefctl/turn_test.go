package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTranscript(t *testing.T) {
	input := []byte(`user: I'd prefer to pay in euros
assistant: Noted, switching to EUR.

Please keep it concise
`)

	turns, err := parseTranscript(input)
	require.NoError(t, err)
	require.Len(t, turns, 3)

	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "I'd prefer to pay in euros", turns[0].Content)

	assert.Equal(t, "assistant", turns[1].Role)
	assert.Equal(t, "Noted, switching to EUR.", turns[1].Content)

	// Unprefixed lines default to user.
	assert.Equal(t, "user", turns[2].Role)
	assert.Equal(t, "Please keep it concise", turns[2].Content)
}

func TestParseTranscript_Empty(t *testing.T) {
	turns, err := parseTranscript([]byte("\n\n  \n"))
	require.NoError(t, err)
	assert.Empty(t, turns)
}
