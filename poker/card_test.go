package poker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardString(t *testing.T) {
	assert.Equal(t, "AS", NewCard(Ace, Spades).String())
	assert.Equal(t, "TH", NewCard(Ten, Hearts).String())
	assert.Equal(t, "2C", NewCard(Two, Clubs).String())
	assert.Equal(t, "9D", NewCard(Nine, Diamonds).String())
}

func TestParseCardRoundTrip(t *testing.T) {
	for _, c := range NewDeck() {
		parsed, err := ParseCard(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
}

func TestParseCardRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", "A", "ASX", "1S", "AX", "as"} {
		_, err := ParseCard(bad)
		assert.Error(t, err, "expected error for %q", bad)
	}
}

func TestCardJSONRoundTrip(t *testing.T) {
	cards := []Card{NewCard(Ace, Spades), NewCard(Ten, Hearts), NewCard(Two, Clubs)}
	raw, err := json.Marshal(cards)
	require.NoError(t, err)
	assert.Equal(t, `["AS","TH","2C"]`, string(raw))

	var decoded []Card
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, cards, decoded)
}
