package room

import (
	"context"

	"go.uber.org/zap"

	"github.com/park285/glitch-server/internal/card"
	"github.com/park285/glitch-server/internal/rules"
)

// StartGame deals a new round. Only the creator may start, with 2..4 players.
func (m *Manager) StartGame(ctx context.Context, connRef string) (*Outcome, error) {
	out, err := m.startGame(connRef)
	if err != nil {
		return nil, err
	}
	m.applyRatings(ctx, out)
	return out, nil
}

func (m *Manager) startGame(connRef string) (*Outcome, error) {
	r, b, err := m.lookup(connRef)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.member(b); err != nil {
		return nil, err
	}
	if r.CreatorID != b.playerID {
		return nil, ErrNotRoomCreator
	}
	if r.Phase != PhaseWaiting {
		return nil, ErrGameNotWaiting
	}
	if len(r.Players) < card.MinPlayers {
		return nil, ErrInsufficientPlayers
	}

	r.Phase = PhasePlaying
	r.Round++
	r.Discarded, r.Draws, r.Standings = nil, nil, nil
	r.DrawCount = 0
	r.Current = 0
	r.UpdatedAt = m.now()
	r.StartedAt = r.UpdatedAt

	out := &Outcome{}
	purged := m.dealAndPurge(r)

	over, loser := rules.IsGameOver(r.hands())
	if !over {
		r.Current = r.rng.IntN(len(r.Players))
		if len(r.Players[r.Current].Hand) == 0 {
			r.Current = rules.NextPlayer(r.Current, r.hands())
		}
	}

	first := ""
	if !over {
		first = r.Players[r.Current].ID
	}
	out.emit(EventGameStarted, GameStartedPayload{Round: r.Round, Room: r.snapshot(), FirstPlayerID: first}, r.connRefs()...)
	for _, p := range r.Players {
		out.emit(EventHandDealt, HandDealtPayload{PlayerID: p.ID, Hand: sortedCopy(p.Hand)}, p.ConnRef)
	}
	for i, p := range r.Players {
		out.emit(EventPairsPurged, PairsPurgedPayload{PlayerID: p.ID, Pairs: purged[i], CardCount: len(p.Hand)}, r.connRefs()...)
	}
	for _, p := range r.Players {
		if p.HasWon {
			out.emit(EventPlayerEmptied, PlayerEmptiedPayload{PlayerID: p.ID}, r.connRefs()...)
		}
	}

	m.logger.Info("game_start",
		zap.String("room_id", r.ID),
		zap.Int("round", r.Round),
		zap.Int("players", len(r.Players)),
		zap.Int("pairs_purged", len(r.Discarded)))

	if over {
		m.settle(r, loser, out)
	} else {
		m.emitTurn(r, out)
	}
	out.Room = r.snapshot()
	return out, nil
}

// DrawCard performs the current player's blind draw from the nearest
// preceding active player. cardIndex picks a specific position when it is in
// range; otherwise the card is chosen uniformly at random.
func (m *Manager) DrawCard(ctx context.Context, connRef string, cardIndex *int) (*Outcome, error) {
	out, err := m.drawCard(connRef, cardIndex)
	if err != nil {
		return nil, err
	}
	m.applyRatings(ctx, out)
	return out, nil
}

func (m *Manager) drawCard(connRef string, cardIndex *int) (*Outcome, error) {
	r, b, err := m.lookup(connRef)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, err := r.member(b)
	if err != nil {
		return nil, err
	}
	if r.Phase != PhasePlaying {
		return nil, ErrGameNotInProgress
	}
	if idx != r.Current {
		return nil, ErrNotYourTurn
	}
	r.UpdatedAt = m.now()
	out := &Outcome{}
	drawer := r.Players[idx]

	if len(drawer.Hand) == 0 {
		out.emit(EventPlayerEmptied, PlayerEmptiedPayload{PlayerID: drawer.ID, Skipped: true}, r.connRefs()...)
		m.advance(r, idx, out)
		out.Room = r.snapshot()
		return out, nil
	}

	ti := rules.PreviousPlayer(idx, r.hands())
	if ti < 0 || ti == idx {
		// nobody to draw from: settle if that ends the round, else pass the turn
		m.logger.Warn("draw_without_target", zap.String("room_id", r.ID), zap.String("player_id", drawer.ID))
		if over, loser := rules.IsGameOver(r.hands()); over {
			m.settle(r, loser, out)
		} else {
			m.advance(r, idx, out)
		}
		out.Room = r.snapshot()
		return out, nil
	}
	target := r.Players[ti]

	var pick int
	if cardIndex != nil && *cardIndex >= 0 && *cardIndex < len(target.Hand) {
		pick = *cardIndex
	} else {
		pick = r.rng.IntN(len(target.Hand))
	}
	drawn := target.Hand[pick]
	target.Hand = removeAt(target.Hand, pick)
	r.DrawCount++

	res := rules.ProcessDrawnCard(drawer.Hand, drawn)
	drawer.Hand = res.NewHand
	now := m.now()
	var pairCards []card.Card
	if res.FormedPair {
		pair := rules.Pair{*res.MatchedCard, drawn}
		r.Discarded = appendBounded(r.Discarded, DiscardedPair{PlayerID: drawer.ID, Cards: pair, At: now}, m.cfg.AuditLimit)
		pairCards = pair[:]
	}
	r.Draws = appendBounded(r.Draws, DrawAction{
		DrawerID:    drawer.ID,
		TargetID:    target.ID,
		Drawn:       drawn,
		FormedPair:  res.FormedPair,
		MatchedCard: res.MatchedCard,
		At:          now,
	}, m.cfg.AuditLimit)
	r.GlitchHolderID = glitchHolderID(r)

	var emptied []string
	if len(drawer.Hand) == 0 && !drawer.HasWon {
		drawer.HasWon = true
		emptied = append(emptied, drawer.ID)
	}
	if len(target.Hand) == 0 && !target.HasWon {
		target.HasWon = true
		emptied = append(emptied, target.ID)
	}

	over, loser := rules.IsGameOver(r.hands())
	next := ""
	if !over {
		r.Current = rules.NextPlayer(idx, r.hands())
		next = r.Players[r.Current].ID
	}

	out.emit(EventCardDrawn, CardDrawnPayload{
		DrawerID:        drawer.ID,
		TargetID:        target.ID,
		FormedPair:      res.FormedPair,
		PairCards:       pairCards,
		DrawerCardCount: len(drawer.Hand),
		TargetCardCount: len(target.Hand),
		NextPlayerID:    next,
	}, r.connRefs()...)
	out.emit(EventHandDealt, HandDealtPayload{PlayerID: drawer.ID, Hand: sortedCopy(drawer.Hand)}, drawer.ConnRef)
	out.emit(EventHandDealt, HandDealtPayload{PlayerID: target.ID, Hand: sortedCopy(target.Hand)}, target.ConnRef)
	for _, id := range emptied {
		out.emit(EventPlayerEmptied, PlayerEmptiedPayload{PlayerID: id}, r.connRefs()...)
	}

	m.logger.Debug("card_draw",
		zap.String("room_id", r.ID),
		zap.String("drawer_id", drawer.ID),
		zap.String("target_id", target.ID),
		zap.Bool("formed_pair", res.FormedPair))

	if over {
		m.settle(r, loser, out)
	} else {
		m.emitTurn(r, out)
	}
	out.Room = r.snapshot()
	return out, nil
}

// dealAndPurge must be called with r.mu held. It returns the pairs each
// player discarded, indexed like r.Players.
func (m *Manager) dealAndPurge(r *Room) [][]rules.Pair {
	deck := card.Shuffle(card.BuildDeck(), r.rng)
	hands, err := card.Deal(deck, len(r.Players))
	if err != nil {
		panic(err)
	}
	now := m.now()
	purged := make([][]rules.Pair, len(r.Players))
	for i, p := range r.Players {
		res := rules.PurgePairs(hands[i])
		p.Hand = res.Remaining
		p.Ready, p.Eliminated, p.HasWon, p.Placement = false, false, false, 0
		for _, pair := range res.Pairs {
			r.Discarded = appendBounded(r.Discarded, DiscardedPair{PlayerID: p.ID, Cards: pair, At: now}, m.cfg.AuditLimit)
		}
		purged[i] = res.Pairs
		if len(p.Hand) == 0 {
			p.HasWon = true
		}
	}
	r.GlitchHolderID = glitchHolderID(r)
	return purged
}

// handleDeparture keeps a running round consistent after the player at idx
// left. The leaver's cards go to the next active player and are purged, so no
// card leaves the table unpaired.
// seen is the your_turn view the current player held before the departure.
func (m *Manager) handleDeparture(r *Room, leaver *Player, idx int, seen YourTurnPayload, out *Outcome) {
	n := len(r.Players)
	wasCurrent := idx == r.Current
	if idx < r.Current {
		r.Current--
	}
	if r.Current >= n {
		r.Current = 0
	}

	if len(leaver.Hand) > 0 {
		ri := rules.NextPlayer((idx-1+n)%n, r.hands())
		if ri >= 0 {
			recv := r.Players[ri]
			res := rules.PurgePairs(append(append([]card.Card{}, recv.Hand...), leaver.Hand...))
			recv.Hand = res.Remaining
			now := m.now()
			for _, pair := range res.Pairs {
				r.Discarded = appendBounded(r.Discarded, DiscardedPair{PlayerID: recv.ID, Cards: pair, At: now}, m.cfg.AuditLimit)
			}
			out.emit(EventHandDealt, HandDealtPayload{PlayerID: recv.ID, Hand: sortedCopy(recv.Hand)}, recv.ConnRef)
			out.emit(EventPairsPurged, PairsPurgedPayload{PlayerID: recv.ID, Pairs: res.Pairs, CardCount: len(recv.Hand)}, r.connRefs()...)
			if len(recv.Hand) == 0 && !recv.HasWon {
				recv.HasWon = true
				out.emit(EventPlayerEmptied, PlayerEmptiedPayload{PlayerID: recv.ID}, r.connRefs()...)
			}
		}
		leaver.Hand = nil
	}
	r.GlitchHolderID = glitchHolderID(r)

	if n < card.MinPlayers {
		r.Phase = PhaseGameOver
		out.emit(EventRoundOver, RoundOverPayload{Round: r.Round, Reason: RoundOverAbandoned}, r.connRefs()...)
		out.emit(EventGameOver, GameOverPayload{WinnerIDs: []string{}}, r.connRefs()...)
		m.logger.Info("round_abandon",
			zap.String("room_id", r.ID),
			zap.String("leaver_id", leaver.ID),
			zap.Int("draws", r.DrawCount),
			zap.Duration("elapsed", m.now().Sub(r.StartedAt)))
		return
	}
	if over, loser := rules.IsGameOver(r.hands()); over {
		m.settle(r, loser, out)
		return
	}
	if wasCurrent || len(r.Players[r.Current].Hand) == 0 {
		// same as the empty-hand skip: the next active player takes over
		r.Current = rules.NextPlayer((r.Current-1+n)%n, r.hands())
		m.emitTurn(r, out)
		return
	}
	if r.turnView() != seen {
		m.emitTurn(r, out)
	}
}

// advance moves the turn past idx and notifies the new current player.
func (m *Manager) advance(r *Room, idx int, out *Outcome) {
	next := rules.NextPlayer(idx, r.hands())
	if next < 0 {
		return
	}
	r.Current = next
	m.emitTurn(r, out)
}

func (m *Manager) emitTurn(r *Room, out *Outcome) {
	out.emit(EventYourTurn, r.turnView(), r.Players[r.Current].ConnRef)
}

// turnView must be called with r.mu held while the round is running.
func (r *Room) turnView() YourTurnPayload {
	cur := r.Players[r.Current]
	ti := rules.PreviousPlayer(r.Current, r.hands())
	payload := YourTurnPayload{PlayerID: cur.ID}
	if ti >= 0 && ti != r.Current {
		payload.TargetID = r.Players[ti].ID
		payload.TargetCardCount = len(r.Players[ti].Hand)
	}
	return payload
}

// settle closes the round: the lone Glitch holder loses, everyone else wins.
// Standings use the ratings cached in the room; the deltas are queued on out
// and written by applyRatings once the room lock is released.
func (m *Manager) settle(r *Room, loserIdx int, out *Outcome) {
	n := len(r.Players)
	loser := r.Players[loserIdx]
	standings := make([]Standing, 0, n)
	winners := make([]string, 0, n-1)
	for i, p := range r.Players {
		delta := m.cfg.WinnerDelta
		if i == loserIdx {
			p.Eliminated = true
			p.Placement = n
			delta = m.cfg.LoserDelta
		} else {
			p.HasWon = true
			p.Placement = 1
			winners = append(winners, p.ID)
		}
		next := max(p.Rating+delta, ratingFloor)
		p.Rating = next
		out.ratings = append(out.ratings, ratingDelta{roomID: r.ID, playerID: p.ID, delta: delta, want: next})
		standings = append(standings, Standing{PlayerID: p.ID, Placement: p.Placement, RatingChange: delta, NewRating: next})
	}
	r.Standings = standings
	r.Phase = PhaseGameOver
	r.GlitchHolderID = loser.ID

	out.emit(EventRoundOver, RoundOverPayload{Round: r.Round, LoserID: loser.ID, Reason: RoundOverFinished, Standings: standings}, r.connRefs()...)
	out.emit(EventGameOver, GameOverPayload{WinnerIDs: winners, Standings: standings}, r.connRefs()...)
	m.logger.Info("game_over",
		zap.String("room_id", r.ID),
		zap.Int("round", r.Round),
		zap.String("loser_id", loser.ID),
		zap.Int("draws", r.DrawCount),
		zap.Duration("elapsed", m.now().Sub(r.StartedAt)))
}

// applyRatings writes the deltas a settlement queued on out. It runs with no
// lock held.
func (m *Manager) applyRatings(ctx context.Context, out *Outcome) {
	for _, d := range out.ratings {
		got, err := m.ratings.UpdateRating(ctx, d.playerID, d.delta)
		if err != nil {
			m.logger.Error("rating_update_failed", zap.String("room_id", d.roomID), zap.String("player_id", d.playerID), zap.Error(err))
			continue
		}
		if got != d.want {
			m.logger.Warn("rating_drift",
				zap.String("room_id", d.roomID),
				zap.String("player_id", d.playerID),
				zap.Int("announced", d.want),
				zap.Int("stored", got))
		}
	}
	out.ratings = nil
}

func glitchHolderID(r *Room) string {
	if i := rules.GlitchHolder(r.hands()); i >= 0 {
		return r.Players[i].ID
	}
	return ""
}

func removeAt(hand []card.Card, i int) []card.Card {
	out := make([]card.Card, 0, len(hand)-1)
	out = append(out, hand[:i]...)
	return append(out, hand[i+1:]...)
}

func sortedCopy(hand []card.Card) []card.Card {
	out := append([]card.Card{}, hand...)
	card.SortHand(out)
	return out
}

// appendBounded drops the oldest entries once limit is exceeded.
func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if limit > 0 && len(s) > limit {
		s = append(s[:0:0], s[len(s)-limit:]...)
	}
	return s
}
