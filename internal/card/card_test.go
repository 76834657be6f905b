package card

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDeckIntegrity(t *testing.T) {
	deck := BuildDeck()
	require.Len(t, deck, DeckSize)

	seen := make(map[Card]bool, len(deck))
	glitches := 0
	perRank := map[string]int{}
	for _, c := range deck {
		assert.False(t, seen[c], "duplicate card %s", c)
		seen[c] = true
		if c.Glitch {
			glitches++
			assert.Equal(t, Spades, c.Suit)
			assert.Equal(t, "Q", c.Rank)
		}
		assert.Equal(t, IsGlitch(c), c.Glitch)
		perRank[c.Rank]++
	}
	assert.Equal(t, 1, glitches)
	for _, r := range Ranks {
		if r == "Q" {
			assert.Equal(t, 1, perRank[r])
			continue
		}
		assert.Equal(t, 4, perRank[r], "rank %s", r)
	}
}

func TestShuffleKeepsCards(t *testing.T) {
	deck := BuildDeck()
	rng := rand.New(rand.NewPCG(7, 11))
	shuffled := Shuffle(deck, rng)

	require.Len(t, shuffled, len(deck))
	assert.ElementsMatch(t, deck, shuffled)
	assert.NotEqual(t, deck, shuffled)
	// input untouched
	assert.Equal(t, BuildDeck(), deck)
}

func TestShuffleIsRoughlyUniform(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	deck := BuildDeck()
	counts := make([]int, len(deck))
	const rounds = 4900
	for i := 0; i < rounds; i++ {
		s := Shuffle(deck, rng)
		for pos, c := range s {
			if c.Glitch {
				counts[pos]++
			}
		}
	}
	// expected 100 per slot
	for pos, n := range counts {
		assert.Greater(t, n, 40, "slot %d", pos)
		assert.Less(t, n, 180, "slot %d", pos)
	}
}

func TestDealConservation(t *testing.T) {
	deck := Shuffle(BuildDeck(), rand.New(rand.NewPCG(3, 4)))
	for n := MinPlayers; n <= MaxPlayers; n++ {
		hands, err := Deal(deck, n)
		require.NoError(t, err)
		require.Len(t, hands, n)

		total := 0
		minLen, maxLen := len(deck), 0
		var all []Card
		for _, h := range hands {
			total += len(h)
			minLen = min(minLen, len(h))
			maxLen = max(maxLen, len(h))
			all = append(all, h...)
		}
		assert.Equal(t, DeckSize, total)
		assert.LessOrEqual(t, maxLen-minLen, 1)
		assert.ElementsMatch(t, deck, all)
	}
}

func TestDealRejectsPlayerCount(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		_, err := Deal(BuildDeck(), n)
		assert.ErrorIs(t, err, ErrInvalidPlayerCount, "n=%d", n)
	}
}

func TestSortHand(t *testing.T) {
	hand := []Card{
		MustParse("A", Hearts),
		MustParse("2", Spades),
		MustParse("2", Hearts),
		MustParse("Q", Spades),
		MustParse("10", Clubs),
	}
	SortHand(hand)
	got := make([]string, 0, len(hand))
	for _, c := range hand {
		got = append(got, c.String())
	}
	assert.Equal(t, []string{"2♥", "2♠", "10♣", "Q♠", "A♥"}, got)
}

func TestParse(t *testing.T) {
	c, err := Parse("q", Spades)
	require.NoError(t, err)
	assert.True(t, c.Glitch)
	assert.Equal(t, 12, c.Value)

	_, err = Parse("Q", Hearts)
	assert.ErrorIs(t, err, ErrUnknownCard)
	_, err = Parse("1", Hearts)
	assert.ErrorIs(t, err, ErrUnknownCard)

	assert.True(t, IsPair(MustParse("7", Hearts), MustParse("7", Clubs)))
	assert.False(t, IsPair(MustParse("7", Hearts), MustParse("8", Hearts)))
}
