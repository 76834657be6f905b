package room

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/glitch-server/internal/card"
	"github.com/park285/glitch-server/internal/rating"
)

// tableCards counts cards in hands plus discarded pairs. Audit limit must be
// large enough to keep every pair for this to hold.
func tableCards(t *testing.T, m *Manager, roomID string) int {
	t.Helper()
	m.mu.RLock()
	r := m.rooms[roomID]
	m.mu.RUnlock()
	require.NotNil(t, r)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 2 * len(r.Discarded)
	for _, p := range r.Players {
		n += len(p.Hand)
	}
	return n
}

func currentConn(t *testing.T, m *Manager, roomID string) string {
	t.Helper()
	snap, err := m.Snapshot(roomID)
	require.NoError(t, err)
	require.NotEmpty(t, snap.CurrentPlayerID)
	return "conn-" + snap.CurrentPlayerID
}

func TestStartGamePreconditions(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	seatRoom(t, m, "solo")
	_, err := m.StartGame(ctx, "conn-solo")
	assert.ErrorIs(t, err, ErrInsufficientPlayers)

	seatRoom(t, m, "host", "guest")
	_, err = m.StartGame(ctx, "conn-guest")
	assert.ErrorIs(t, err, ErrNotRoomCreator)

	out, err := m.StartGame(ctx, "conn-host")
	require.NoError(t, err)
	assert.Equal(t, PhasePlaying, out.Room.Phase)
	assert.Equal(t, 1, out.Room.Round)

	_, err = m.StartGame(ctx, "conn-host")
	assert.ErrorIs(t, err, ErrGameNotWaiting)
	_, err = m.StartGame(ctx, "conn-nobody")
	assert.ErrorIs(t, err, ErrNotInRoom)
}

func TestStartGameDealsAndPurges(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	id := seatRoom(t, m, "p1", "p2", "p3")

	out, err := m.StartGame(ctx, "conn-p1")
	require.NoError(t, err)
	assert.Equal(t, card.DeckSize, tableCards(t, m, id))

	dealt := eventsOf(out, EventHandDealt)
	require.Len(t, dealt, 3)
	glitches := 0
	for _, e := range dealt {
		require.Len(t, e.To, 1, "hands are private")
		p := e.Payload.(HandDealtPayload)
		assert.Equal(t, "conn-"+p.PlayerID, e.To[0])
		seen := map[string]bool{}
		for _, c := range p.Hand {
			if c.Glitch {
				glitches++
				continue
			}
			assert.False(t, seen[c.Rank], "pair %s left in hand", c.Rank)
			seen[c.Rank] = true
		}
	}
	assert.Equal(t, 1, glitches)
	assert.Len(t, eventsOf(out, EventPairsPurged), 3)

	turn := eventsOf(out, EventYourTurn)
	require.Len(t, turn, 1)
	yt := turn[0].Payload.(YourTurnPayload)
	assert.Equal(t, out.Room.CurrentPlayerID, yt.PlayerID)
	assert.NotEmpty(t, yt.TargetID)
	assert.NotEqual(t, yt.PlayerID, yt.TargetID)
	assert.Positive(t, yt.TargetCardCount)
}

func TestDrawCardOutOfTurn(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	id := seatRoom(t, m, "p1", "p2")

	_, err := m.DrawCard(ctx, "conn-p1", nil)
	assert.ErrorIs(t, err, ErrGameNotInProgress)

	_, err = m.StartGame(ctx, "conn-p1")
	require.NoError(t, err)
	cur := currentConn(t, m, id)
	other := "conn-p1"
	if cur == other {
		other = "conn-p2"
	}
	before := tableCards(t, m, id)
	_, err = m.DrawCard(ctx, other, nil)
	assert.ErrorIs(t, err, ErrNotYourTurn)
	assert.Equal(t, before, tableCards(t, m, id))
	assert.Equal(t, cur, currentConn(t, m, id), "failed draw must not move the turn")
}

func TestDrawCardExplicitIndex(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	id := seatRoom(t, m, "p1", "p2")
	_, err := m.StartGame(ctx, "conn-p1")
	require.NoError(t, err)

	cur := currentConn(t, m, id)
	m.mu.RLock()
	r := m.rooms[id]
	m.mu.RUnlock()
	r.mu.Lock()
	target := r.Players[1-r.Current]
	want := target.Hand[0]
	targetBefore := len(target.Hand)
	drawerBefore := len(r.Players[r.Current].Hand)
	r.mu.Unlock()

	zero := 0
	out, err := m.DrawCard(ctx, cur, &zero)
	require.NoError(t, err)

	drawn := eventsOf(out, EventCardDrawn)
	require.Len(t, drawn, 1)
	cd := drawn[0].Payload.(CardDrawnPayload)
	assert.Equal(t, target.ID, cd.TargetID)
	assert.Equal(t, targetBefore-1, cd.TargetCardCount)
	if want.Glitch {
		assert.False(t, cd.FormedPair)
	}
	if cd.FormedPair {
		// two players: every non-Glitch rank is split between the hands
		assert.Contains(t, cd.PairCards, want)
		assert.Equal(t, drawerBefore-1, cd.DrawerCardCount)
	} else {
		assert.Equal(t, drawerBefore+1, cd.DrawerCardCount)
	}

	r.mu.Lock()
	last := r.Draws[len(r.Draws)-1]
	r.mu.Unlock()
	assert.Equal(t, want, last.Drawn)
}

func TestTwoPlayerGameEndToEnd(t *testing.T) {
	m, ratings := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, ratings.SetRating(ctx, "p2", 20))
	id := seatRoom(t, m, "p1", "p2")

	_, err := m.StartGame(ctx, "conn-p1")
	require.NoError(t, err)

	var final *Outcome
	for i := 0; i < 500 && final == nil; i++ {
		out, err := m.DrawCard(ctx, currentConn(t, m, id), nil)
		require.NoError(t, err)
		assert.Equal(t, card.DeckSize, tableCards(t, m, id))
		if out.Room.Phase == PhaseGameOver {
			final = out
		}
	}
	require.NotNil(t, final, "game did not finish")

	over := eventsOf(final, EventRoundOver)
	require.Len(t, over, 1)
	ro := over[0].Payload.(RoundOverPayload)
	assert.Equal(t, RoundOverFinished, ro.Reason)
	require.Len(t, ro.Standings, 2)
	require.Len(t, eventsOf(final, EventGameOver), 1)

	m.mu.RLock()
	r := m.rooms[id]
	m.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Positive(t, r.DrawCount)
	assert.False(t, r.StartedAt.IsZero())
	var loser, winner *Player
	for _, p := range r.Players {
		if p.Eliminated {
			loser = p
		} else {
			winner = p
		}
	}
	require.NotNil(t, loser)
	require.NotNil(t, winner)
	assert.Equal(t, ro.LoserID, loser.ID)
	require.Len(t, loser.Hand, 1)
	assert.True(t, loser.Hand[0].Glitch)
	assert.Empty(t, winner.Hand)
	assert.True(t, winner.HasWon)
	assert.Equal(t, 1, winner.Placement)
	assert.Equal(t, 2, loser.Placement)

	start := map[string]int{"p1": rating.StartingRating, "p2": 20}
	assert.Equal(t, start[winner.ID]+DefaultWinnerDelta, ratings.GetRating(ctx, winner.ID))
	assert.Equal(t, max(start[loser.ID]+DefaultLoserDelta, 0), ratings.GetRating(ctx, loser.ID))
	for _, s := range ro.Standings {
		assert.Equal(t, ratings.GetRating(ctx, s.PlayerID), s.NewRating)
	}

	_, err = m.DrawCard(ctx, "conn-p1", nil)
	assert.ErrorIs(t, err, ErrGameNotInProgress)
}

func TestGamesTerminateForAllTableSizes(t *testing.T) {
	for n := card.MinPlayers; n <= card.MaxPlayers; n++ {
		for seed := uint64(1); seed <= 25; seed++ {
			t.Run(fmt.Sprintf("n%d-seed%d", n, seed), func(t *testing.T) {
				m, _ := newTestManager(t, WithSeed(seed, uint64(n)))
				ctx := context.Background()
				ids := make([]string, n)
				for i := range ids {
					ids[i] = fmt.Sprintf("p%d", i)
				}
				id := seatRoom(t, m, ids...)
				out, err := m.StartGame(ctx, "conn-p0")
				require.NoError(t, err)

				for steps := 0; out.Room.Phase == PhasePlaying; steps++ {
					require.Less(t, steps, 5000)
					out, err = m.DrawCard(ctx, currentConn(t, m, id), nil)
					require.NoError(t, err)
					require.Equal(t, card.DeckSize, tableCards(t, m, id))
				}
				assert.Equal(t, PhaseGameOver, out.Room.Phase)
				eliminated := 0
				for _, p := range out.Room.Players {
					if p.Eliminated {
						eliminated++
						assert.Equal(t, n, p.Placement)
						assert.Equal(t, 1, p.CardCount)
					} else {
						assert.Equal(t, 1, p.Placement)
						assert.Zero(t, p.CardCount)
					}
				}
				assert.Equal(t, 1, eliminated)
			})
		}
	}
}

func TestLeaveDuringPlayHandsCardsOn(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	id := seatRoom(t, m, "p1", "p2", "p3")
	_, err := m.StartGame(ctx, "conn-p1")
	require.NoError(t, err)

	cur := currentConn(t, m, id)
	out, err := m.LeaveRoom(ctx, cur)
	require.NoError(t, err)
	assert.Equal(t, card.DeckSize, tableCards(t, m, id))
	require.Len(t, out.Room.Players, 2)

	if out.Room.Phase == PhasePlaying {
		turn := eventsOf(out, EventYourTurn)
		require.Len(t, turn, 1, "departing current player must hand the turn on")
		next := turn[0].Payload.(YourTurnPayload).PlayerID
		assert.Equal(t, out.Room.CurrentPlayerID, next)
		assert.NotEqual(t, cur, "conn-"+next)

		_, err = m.DrawCard(ctx, "conn-"+next, nil)
		require.NoError(t, err)
	}
	require.Len(t, eventsOf(out, EventPlayerLeft), 1)
}

func TestLeaveDuringPlayWithOnePlayerLeftAbandons(t *testing.T) {
	m, ratings := newTestManager(t)
	ctx := context.Background()
	seatRoom(t, m, "p1", "p2")
	_, err := m.StartGame(ctx, "conn-p1")
	require.NoError(t, err)

	out, err := m.LeaveRoom(ctx, "conn-p2")
	require.NoError(t, err)
	assert.Equal(t, PhaseGameOver, out.Room.Phase)
	assert.Equal(t, "p1", out.Room.CreatorID)

	over := eventsOf(out, EventRoundOver)
	require.Len(t, over, 1)
	assert.Equal(t, RoundOverAbandoned, over[0].Payload.(RoundOverPayload).Reason)
	assert.Equal(t, rating.StartingRating, ratings.GetRating(ctx, "p1"), "abandoned rounds are not rated")

	_, err = m.DrawCard(ctx, "conn-p1", nil)
	assert.ErrorIs(t, err, ErrGameNotInProgress)
}

func TestAuditLogsAreBounded(t *testing.T) {
	ratings := rating.NewService(rating.NewMemoryStore(), rating.Config{}, nil)
	m := NewManager(ratings, Config{AuditLimit: 3}, WithSeed(9, 9))
	ctx := context.Background()
	out, err := m.CreateRoom(ctx, entrant("a"))
	require.NoError(t, err)
	_, err = m.JoinRoom(ctx, out.Room.ID, entrant("b"))
	require.NoError(t, err)
	_, err = m.StartGame(ctx, "conn-a")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		snap, err := m.Snapshot(out.Room.ID)
		require.NoError(t, err)
		if snap.Phase != PhasePlaying {
			break
		}
		_, err = m.DrawCard(ctx, "conn-"+snap.CurrentPlayerID, nil)
		require.NoError(t, err)
	}
	m.mu.RLock()
	r := m.rooms[out.Room.ID]
	m.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.LessOrEqual(t, len(r.Discarded), 3)
	assert.LessOrEqual(t, len(r.Draws), 3)
}

// arrange replaces the dealt hands of a running room. Empty hands count as
// already out.
func arrange(t *testing.T, m *Manager, roomID string, current int, hands ...[]card.Card) {
	t.Helper()
	m.mu.RLock()
	r := m.rooms[roomID]
	m.mu.RUnlock()
	require.NotNil(t, r)
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, hands, len(r.Players))
	for i, p := range r.Players {
		p.Hand = hands[i]
		p.HasWon = len(hands[i]) == 0
	}
	r.Current = current
	r.GlitchHolderID = glitchHolderID(r)
}

func hand(cards ...card.Card) []card.Card { return cards }

func TestDrawWithEmptyHandPassesTurn(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	id := seatRoom(t, m, "p1", "p2", "p3")
	_, err := m.StartGame(ctx, "conn-p1")
	require.NoError(t, err)
	arrange(t, m, id, 0,
		hand(),
		hand(card.MustParse("5", card.Hearts)),
		hand(card.MustParse("5", card.Clubs), card.MustParse("Q", card.Spades)))

	out, err := m.DrawCard(ctx, "conn-p1", nil)
	require.NoError(t, err)
	assert.Empty(t, eventsOf(out, EventCardDrawn))

	emptied := eventsOf(out, EventPlayerEmptied)
	require.Len(t, emptied, 1)
	assert.Equal(t, PlayerEmptiedPayload{PlayerID: "p1", Skipped: true}, emptied[0].Payload)

	turn := eventsOf(out, EventYourTurn)
	require.Len(t, turn, 1)
	assert.Equal(t, []string{"conn-p2"}, turn[0].To)
	assert.Equal(t, YourTurnPayload{PlayerID: "p2", TargetID: "p3", TargetCardCount: 2}, turn[0].Payload)
	assert.Equal(t, "p2", out.Room.CurrentPlayerID)

	_, err = m.DrawCard(ctx, "conn-p1", nil)
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestDrawWithNoTargetPassesTurn(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	id := seatRoom(t, m, "p1", "p2", "p3")
	_, err := m.StartGame(ctx, "conn-p1")
	require.NoError(t, err)
	only := hand(card.MustParse("5", card.Hearts), card.MustParse("5", card.Clubs))
	arrange(t, m, id, 0, only, hand(), hand())

	out, err := m.DrawCard(ctx, "conn-p1", nil)
	require.NoError(t, err)
	assert.Empty(t, eventsOf(out, EventCardDrawn))
	assert.Empty(t, eventsOf(out, EventGameOver))
	assert.Equal(t, PhasePlaying, out.Room.Phase)

	turn := eventsOf(out, EventYourTurn)
	require.Len(t, turn, 1)
	assert.Equal(t, YourTurnPayload{PlayerID: "p1"}, turn[0].Payload)
	assert.Equal(t, 2, out.Room.Players[0].CardCount)

	m.mu.RLock()
	r := m.rooms[id]
	m.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Zero(t, r.DrawCount)
	assert.Equal(t, only, r.Players[0].Hand)
}

func TestLeaveRetargetsCurrentPlayer(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	id := seatRoom(t, m, "p1", "p2", "p3")
	_, err := m.StartGame(ctx, "conn-p1")
	require.NoError(t, err)
	// p1 draws from p3; once p3 is gone p1 must draw from p2
	arrange(t, m, id, 0,
		hand(card.MustParse("5", card.Hearts)),
		hand(card.MustParse("6", card.Hearts), card.MustParse("Q", card.Spades)),
		hand(card.MustParse("5", card.Clubs), card.MustParse("6", card.Clubs)))

	out, err := m.LeaveRoom(ctx, "conn-p3")
	require.NoError(t, err)
	require.Equal(t, PhasePlaying, out.Room.Phase)
	assert.Equal(t, "p1", out.Room.CurrentPlayerID)
	assert.Equal(t, 1, out.Room.Players[0].CardCount)

	turn := eventsOf(out, EventYourTurn)
	require.Len(t, turn, 1)
	assert.Equal(t, []string{"conn-p1"}, turn[0].To)
	assert.Equal(t, YourTurnPayload{PlayerID: "p1", TargetID: "p2", TargetCardCount: 2}, turn[0].Payload)
}

func TestLeaveKeepsUnchangedTurnQuiet(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	id := seatRoom(t, m, "p1", "p2", "p3", "p4")
	_, err := m.StartGame(ctx, "conn-p1")
	require.NoError(t, err)
	// p2 leaves; its cards go to p3, which nobody is drawing from right now
	arrange(t, m, id, 0,
		hand(card.MustParse("5", card.Hearts)),
		hand(card.MustParse("7", card.Hearts)),
		hand(card.MustParse("7", card.Clubs), card.MustParse("Q", card.Spades)),
		hand(card.MustParse("5", card.Clubs)))

	out, err := m.LeaveRoom(ctx, "conn-p2")
	require.NoError(t, err)
	require.Equal(t, PhasePlaying, out.Room.Phase)
	assert.Empty(t, eventsOf(out, EventYourTurn))
}

func TestLeaveThatEndsRoundPersistsRatings(t *testing.T) {
	m, ratings := newTestManager(t)
	ctx := context.Background()
	id := seatRoom(t, m, "p1", "p2", "p3")
	_, err := m.StartGame(ctx, "conn-p1")
	require.NoError(t, err)
	// p3's five pairs off in p1's hand, leaving p2 alone with the Glitch
	arrange(t, m, id, 0,
		hand(card.MustParse("5", card.Hearts)),
		hand(card.MustParse("Q", card.Spades)),
		hand(card.MustParse("5", card.Clubs)))

	out, err := m.LeaveRoom(ctx, "conn-p3")
	require.NoError(t, err)
	assert.Equal(t, PhaseGameOver, out.Room.Phase)
	require.Len(t, eventsOf(out, EventGameOver), 1)

	assert.Equal(t, rating.StartingRating+DefaultWinnerDelta, ratings.GetRating(ctx, "p1"))
	assert.Equal(t, rating.StartingRating+DefaultLoserDelta, ratings.GetRating(ctx, "p2"))
	assert.Equal(t, rating.StartingRating, ratings.GetRating(ctx, "p3"), "the leaver is not rated")
}
