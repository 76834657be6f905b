package gateway

import (
	"github.com/park285/glitch-server/internal/card"
	"github.com/park285/glitch-server/internal/room"
	"github.com/park285/glitch-server/internal/rules"
	"github.com/park285/glitch-server/pkg/glitchdto"
)

// envelope converts an orchestrator event into its wire form. ok is false for
// payloads the gateway does not know how to render.
func envelope(ev room.Event) (glitchdto.Envelope, bool) {
	var data any
	switch p := ev.Payload.(type) {
	case room.RoomCreatedPayload:
		data = glitchdto.RoomCreated{Room: roomState(p.Room), PlayerID: p.PlayerID}
	case room.RoomJoinedPayload:
		data = glitchdto.RoomJoined{Room: roomState(p.Room), PlayerID: p.PlayerID, CreatorID: p.Room.CreatorID}
	case room.PlayerJoinedPayload:
		data = glitchdto.PlayerJoined{Player: publicPlayer(p.Player)}
	case room.PlayerLeftPayload:
		data = glitchdto.PlayerLeft{PlayerID: p.PlayerID, Room: roomState(p.Room)}
	case room.CreatorChangedPayload:
		data = glitchdto.CreatorChanged{CreatorID: p.CreatorID}
	case room.ReadyChangedPayload:
		data = glitchdto.ReadyChanged{PlayerID: p.PlayerID, IsReady: p.Ready}
	case room.GameStartedPayload:
		data = glitchdto.GameStarted{Round: p.Round, Room: roomState(p.Room), FirstPlayerID: p.FirstPlayerID}
	case room.HandDealtPayload:
		data = glitchdto.HandDealt{PlayerID: p.PlayerID, Hand: cards(p.Hand)}
	case room.PairsPurgedPayload:
		data = glitchdto.PairsPurged{PlayerID: p.PlayerID, Pairs: pairs(p.Pairs), CardCount: p.CardCount}
	case room.YourTurnPayload:
		data = glitchdto.YourTurn{PlayerID: p.PlayerID, TargetID: p.TargetID, TargetCardCount: p.TargetCardCount}
	case room.CardDrawnPayload:
		data = glitchdto.CardDrawn{
			DrawerID:        p.DrawerID,
			TargetID:        p.TargetID,
			FormedPair:      p.FormedPair,
			PairCards:       cards(p.PairCards),
			DrawerCardCount: p.DrawerCardCount,
			TargetCardCount: p.TargetCardCount,
			NextPlayerID:    p.NextPlayerID,
		}
	case room.PlayerEmptiedPayload:
		data = glitchdto.PlayerEmptied{PlayerID: p.PlayerID, Skipped: p.Skipped}
	case room.RoundOverPayload:
		data = glitchdto.RoundOver{Round: p.Round, LoserID: p.LoserID, Reason: p.Reason, Standings: standings(p.Standings)}
	case room.GameOverPayload:
		winners := p.WinnerIDs
		if winners == nil {
			winners = []string{}
		}
		data = glitchdto.GameOver{WinnerIDs: winners, FinalStandings: standings(p.Standings)}
	default:
		return glitchdto.Envelope{}, false
	}
	return glitchdto.Envelope{Type: string(ev.Kind), Data: data}, true
}

func roomState(s room.Snapshot) glitchdto.RoomState {
	out := glitchdto.RoomState{
		ID:              s.ID,
		CreatorID:       s.CreatorID,
		Phase:           string(s.Phase),
		Round:           s.Round,
		Players:         make([]glitchdto.PublicPlayer, 0, len(s.Players)),
		CurrentPlayerID: s.CurrentPlayerID,
		DiscardedPairs:  s.DiscardedPairs,
	}
	for _, p := range s.Players {
		out.Players = append(out.Players, publicPlayer(p))
	}
	return out
}

func publicPlayer(p room.PublicPlayer) glitchdto.PublicPlayer {
	return glitchdto.PublicPlayer{
		ID:           p.ID,
		Nickname:     p.Nickname,
		MaskType:     string(p.Mask),
		CardCount:    p.CardCount,
		IsReady:      p.Ready,
		IsEliminated: p.Eliminated,
		HasWon:       p.HasWon,
		Rating:       p.Rating,
		Placement:    p.Placement,
	}
}

func roomSummaries(in []room.Summary) []glitchdto.RoomSummary {
	out := make([]glitchdto.RoomSummary, 0, len(in))
	for _, s := range in {
		out = append(out, glitchdto.RoomSummary{
			ID:          s.ID,
			PlayerCount: s.PlayerCount,
			MaxPlayers:  s.MaxPlayers,
			Phase:       string(s.Phase),
			CreatorID:   s.CreatorID,
		})
	}
	return out
}

func cardDTO(c card.Card) glitchdto.Card {
	return glitchdto.Card{Suit: string(c.Suit), Rank: c.Rank, Value: c.Value, IsGlitch: c.Glitch}
}

func cards(in []card.Card) []glitchdto.Card {
	if in == nil {
		return nil
	}
	out := make([]glitchdto.Card, len(in))
	for i, c := range in {
		out[i] = cardDTO(c)
	}
	return out
}

func pairs(in []rules.Pair) [][2]glitchdto.Card {
	out := make([][2]glitchdto.Card, len(in))
	for i, p := range in {
		out[i] = [2]glitchdto.Card{cardDTO(p[0]), cardDTO(p[1])}
	}
	return out
}

func standings(in []room.Standing) []glitchdto.Standing {
	out := make([]glitchdto.Standing, len(in))
	for i, s := range in {
		out[i] = glitchdto.Standing{
			PlayerID:     s.PlayerID,
			Placement:    s.Placement,
			RatingChange: s.RatingChange,
			NewRating:    s.NewRating,
		}
	}
	return out
}
