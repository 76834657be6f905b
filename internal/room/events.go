package room

import (
	"github.com/park285/glitch-server/internal/card"
	"github.com/park285/glitch-server/internal/rules"
)

// EventKind names an outbound notification.
type EventKind string

const (
	EventRoomCreated    EventKind = "room_created"
	EventRoomJoined     EventKind = "room_joined"
	EventPlayerJoined   EventKind = "player_joined"
	EventPlayerLeft     EventKind = "player_left"
	EventCreatorChanged EventKind = "creator_changed"
	EventReadyChanged   EventKind = "player_ready_change"
	EventGameStarted    EventKind = "game_started"
	EventHandDealt      EventKind = "hand_dealt"
	EventPairsPurged    EventKind = "pairs_purged"
	EventYourTurn       EventKind = "your_turn"
	EventCardDrawn      EventKind = "card_drawn"
	EventPlayerEmptied  EventKind = "player_emptied"
	EventRoundOver      EventKind = "round_over"
	EventGameOver       EventKind = "game_over"
)

// Event is delivered to exactly the connections listed in To.
type Event struct {
	Kind    EventKind
	Payload any
	To      []string
}

// Outcome is what every successful Manager call returns. Room is the state
// after the call; Destroyed is set when the last player left.
type Outcome struct {
	Room      Snapshot
	Destroyed bool
	Events    []Event

	ratings []ratingDelta
}

type ratingDelta struct {
	roomID   string
	playerID string
	delta    int
	want     int
}

func (o *Outcome) emit(kind EventKind, payload any, to ...string) {
	if len(to) == 0 {
		return
	}
	o.Events = append(o.Events, Event{Kind: kind, Payload: payload, To: to})
}

type RoomCreatedPayload struct {
	Room     Snapshot
	PlayerID string
}

type RoomJoinedPayload struct {
	Room     Snapshot
	PlayerID string
}

type PlayerJoinedPayload struct {
	Player PublicPlayer
}

type PlayerLeftPayload struct {
	PlayerID string
	Room     Snapshot
}

type CreatorChangedPayload struct {
	CreatorID string
}

type ReadyChangedPayload struct {
	PlayerID string
	Ready    bool
}

type GameStartedPayload struct {
	Round         int
	Room          Snapshot
	FirstPlayerID string
}

type HandDealtPayload struct {
	PlayerID string
	Hand     []card.Card
}

type PairsPurgedPayload struct {
	PlayerID  string
	Pairs     []rules.Pair
	CardCount int
}

type YourTurnPayload struct {
	PlayerID        string
	TargetID        string
	TargetCardCount int
}

type CardDrawnPayload struct {
	DrawerID        string
	TargetID        string
	FormedPair      bool
	PairCards       []card.Card
	DrawerCardCount int
	TargetCardCount int
	NextPlayerID    string
}

type PlayerEmptiedPayload struct {
	PlayerID string
	Skipped  bool
}

const (
	RoundOverFinished  = "finished"
	RoundOverAbandoned = "abandoned"
)

type RoundOverPayload struct {
	Round     int
	LoserID   string
	Reason    string
	Standings []Standing
}

type GameOverPayload struct {
	WinnerIDs []string
	Standings []Standing
}
