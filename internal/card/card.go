package card

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
)

// Suit of a card.
type Suit string

const (
	Hearts   Suit = "hearts"
	Diamonds Suit = "diamonds"
	Clubs    Suit = "clubs"
	Spades   Suit = "spades"
)

// Suits in hand-sorting order.
var Suits = []Suit{Hearts, Diamonds, Clubs, Spades}

// Ranks from lowest to highest. Values run 2..14 in the same order.
var Ranks = []string{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}

// DeckSize is the number of cards in a full deck.
const DeckSize = 49

const (
	MinPlayers = 2
	MaxPlayers = 4
)

// Card is an immutable playing card. Glitch marks the single unpaired spades Queen.
type Card struct {
	Suit   Suit   `json:"suit"`
	Rank   string `json:"rank"`
	Value  int    `json:"value"`
	Glitch bool   `json:"isGlitch"`
}

var suitSymbols = map[Suit]string{Hearts: "♥", Diamonds: "♦", Clubs: "♣", Spades: "♠"}

func (c Card) String() string {
	return c.Rank + suitSymbols[c.Suit]
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrInvalidPlayerCount = staticErr("player count must be between 2 and 4")
	ErrUnknownCard        = staticErr("unknown card")
)

// Parse builds a validated card from its rank and suit.
func Parse(rank string, suit Suit) (Card, error) {
	rank = strings.ToUpper(strings.TrimSpace(rank))
	v := rankValue(rank)
	if v == 0 || suitSymbols[suit] == "" {
		return Card{}, fmt.Errorf("%w: %s of %s", ErrUnknownCard, rank, suit)
	}
	if rank == "Q" && suit != Spades {
		return Card{}, fmt.Errorf("%w: %s of %s is not in the deck", ErrUnknownCard, rank, suit)
	}
	return Card{Suit: suit, Rank: rank, Value: v, Glitch: rank == "Q" && suit == Spades}, nil
}

// MustParse is Parse for fixtures.
func MustParse(rank string, suit Suit) Card {
	c, err := Parse(rank, suit)
	if err != nil {
		panic(err)
	}
	return c
}

func rankValue(rank string) int {
	for i, r := range Ranks {
		if r == rank {
			return i + 2
		}
	}
	return 0
}

// BuildDeck returns the 49-card deck in canonical order.
func BuildDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, s := range Suits {
		for i, r := range Ranks {
			if r == "Q" && s != Spades {
				continue
			}
			deck = append(deck, Card{Suit: s, Rank: r, Value: i + 2, Glitch: r == "Q" && s == Spades})
		}
	}
	if len(deck) != DeckSize {
		panic(fmt.Sprintf("card: built %d cards, want %d", len(deck), DeckSize))
	}
	return deck
}

// Shuffle returns a Fisher-Yates shuffled copy of deck.
func Shuffle(deck []Card, rng *rand.Rand) []Card {
	out := make([]Card, len(deck))
	copy(out, deck)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Deal distributes every card round-robin across n hands.
func Deal(deck []Card, n int) ([][]Card, error) {
	if n < MinPlayers || n > MaxPlayers {
		return nil, ErrInvalidPlayerCount
	}
	hands := make([][]Card, n)
	for i := range hands {
		hands[i] = make([]Card, 0, len(deck)/n+1)
	}
	for i, c := range deck {
		hands[i%n] = append(hands[i%n], c)
	}
	return hands, nil
}

// IsPair reports whether a and b share a rank.
func IsPair(a, b Card) bool { return a.Rank == b.Rank }

func IsGlitch(c Card) bool { return c.Suit == Spades && c.Rank == "Q" }

func suitOrder(s Suit) int {
	for i, v := range Suits {
		if v == s {
			return i
		}
	}
	return len(Suits)
}

// SortHand orders a hand by value, then suit, keeping equal cards stable.
func SortHand(hand []Card) {
	sort.SliceStable(hand, func(i, j int) bool {
		if hand[i].Value != hand[j].Value {
			return hand[i].Value < hand[j].Value
		}
		return suitOrder(hand[i].Suit) < suitOrder(hand[j].Suit)
	})
}

// Contains reports whether hand holds c.
func Contains(hand []Card, c Card) bool {
	for _, h := range hand {
		if h == c {
			return true
		}
	}
	return false
}
