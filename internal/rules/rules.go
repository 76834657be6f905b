// Package rules holds the pure hand operations of the game. Nothing here
// mutates its inputs.
package rules

import "github.com/park285/glitch-server/internal/card"

// Pair is two same-rank cards removed together.
type Pair [2]card.Card

type PurgeResult struct {
	Pairs     []Pair
	Remaining []card.Card
}

// FindPairs removes pairs greedily in one left-to-right pass: each card is
// matched with the earliest later card of the same rank that is still free.
// The Glitch card never pairs.
func FindPairs(hand []card.Card) PurgeResult {
	used := make([]bool, len(hand))
	var res PurgeResult
	for i := range hand {
		if used[i] || hand[i].Glitch {
			continue
		}
		for j := i + 1; j < len(hand); j++ {
			if used[j] || hand[j].Glitch || !card.IsPair(hand[i], hand[j]) {
				continue
			}
			used[i], used[j] = true, true
			res.Pairs = append(res.Pairs, Pair{hand[i], hand[j]})
			break
		}
	}
	res.Remaining = make([]card.Card, 0, len(hand)-2*len(res.Pairs))
	for i, c := range hand {
		if !used[i] {
			res.Remaining = append(res.Remaining, c)
		}
	}
	return res
}

// PurgePairs is the post-deal purge.
func PurgePairs(hand []card.Card) PurgeResult { return FindPairs(hand) }

type DrawResult struct {
	FormedPair  bool
	MatchedCard *card.Card
	NewHand     []card.Card
}

// ProcessDrawnCard resolves a card drawn into hand. The first same-rank card
// in scan order is discarded with it; otherwise the card is appended.
func ProcessDrawnCard(hand []card.Card, drawn card.Card) DrawResult {
	if !drawn.Glitch {
		for i, c := range hand {
			if c.Glitch || !card.IsPair(c, drawn) {
				continue
			}
			matched := c
			next := make([]card.Card, 0, len(hand)-1)
			next = append(next, hand[:i]...)
			next = append(next, hand[i+1:]...)
			return DrawResult{FormedPair: true, MatchedCard: &matched, NewHand: next}
		}
	}
	next := make([]card.Card, 0, len(hand)+1)
	next = append(next, hand...)
	next = append(next, drawn)
	return DrawResult{NewHand: next}
}

// IsGameOver reports whether exactly one hand is non-empty and it holds only
// the Glitch. loserIndex is -1 when the game goes on.
func IsGameOver(hands [][]card.Card) (over bool, loserIndex int) {
	loserIndex = -1
	for i, h := range hands {
		if len(h) == 0 {
			continue
		}
		if loserIndex != -1 {
			return false, -1
		}
		loserIndex = i
	}
	if loserIndex == -1 {
		return false, -1
	}
	h := hands[loserIndex]
	if len(h) != 1 || !h[0].Glitch {
		return false, -1
	}
	return true, loserIndex
}

// NextPlayer walks forward from current to the next non-empty hand. It
// returns current only when that is the sole non-empty hand, and -1 when
// every hand is empty.
func NextPlayer(current int, hands [][]card.Card) int {
	return walk(current, hands, 1)
}

// PreviousPlayer is NextPlayer walking backward.
func PreviousPlayer(current int, hands [][]card.Card) int {
	return walk(current, hands, -1)
}

func walk(current int, hands [][]card.Card, step int) int {
	n := len(hands)
	if n == 0 {
		return -1
	}
	for k := 1; k <= n; k++ {
		i := ((current+step*k)%n + n) % n
		if len(hands[i]) > 0 {
			return i
		}
	}
	return -1
}

// ActiveCount is the number of non-empty hands.
func ActiveCount(hands [][]card.Card) int {
	n := 0
	for _, h := range hands {
		if len(h) > 0 {
			n++
		}
	}
	return n
}

// GlitchHolder returns the index of the hand holding the Glitch, or -1.
func GlitchHolder(hands [][]card.Card) int {
	for i, h := range hands {
		for _, c := range h {
			if c.Glitch {
				return i
			}
		}
	}
	return -1
}
