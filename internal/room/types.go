package room

import (
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/park285/glitch-server/internal/card"
	"github.com/park285/glitch-server/internal/rules"
)

// Phase is the lifecycle state of a room.
type Phase string

const (
	PhaseWaiting  Phase = "WAITING"
	PhasePlaying  Phase = "PLAYING"
	PhaseGameOver Phase = "GAME_OVER"
)

// MaskType is the cosmetic avatar a player picks.
type MaskType string

const (
	MaskVenetian MaskType = "venetian"
	MaskKabuki   MaskType = "kabuki"
	MaskTribal   MaskType = "tribal"
	MaskPlague   MaskType = "plague"
	MaskJester   MaskType = "jester"
	MaskPhantom  MaskType = "phantom"
)

var knownMasks = map[MaskType]bool{
	MaskVenetian: true, MaskKabuki: true, MaskTribal: true,
	MaskPlague: true, MaskJester: true, MaskPhantom: true,
}

// ParseMask maps unknown masks to venetian.
func ParseMask(s string) MaskType {
	m := MaskType(strings.ToLower(strings.TrimSpace(s)))
	if knownMasks[m] {
		return m
	}
	return MaskVenetian
}

type Player struct {
	ID       string
	ConnRef  string
	Mask     MaskType
	Nickname string
	Hand     []card.Card

	Ready      bool
	Eliminated bool
	HasWon     bool
	Rating     int
	Placement  int
	JoinedAt   time.Time
}

type DiscardedPair struct {
	PlayerID string
	Cards    rules.Pair
	At       time.Time
}

type DrawAction struct {
	DrawerID    string
	TargetID    string
	Drawn       card.Card
	FormedPair  bool
	MatchedCard *card.Card
	At          time.Time
}

type Standing struct {
	PlayerID     string
	Placement    int
	RatingChange int
	NewRating    int
}

// Room is owned by the Manager; every field is guarded by mu.
type Room struct {
	mu sync.Mutex

	ID        string
	CreatorID string
	Phase     Phase
	Players   []*Player
	Current   int
	Round     int

	Discarded      []DiscardedPair
	Draws          []DrawAction
	GlitchHolderID string
	Standings      []Standing
	// DrawCount is not bounded like Draws.
	DrawCount int
	StartedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	rng    *rand.Rand
	closed bool
}

func (r *Room) playerIndex(id string) int {
	for i, p := range r.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (r *Room) hands() [][]card.Card {
	out := make([][]card.Card, len(r.Players))
	for i, p := range r.Players {
		out[i] = p.Hand
	}
	return out
}

func (r *Room) connRefs() []string {
	out := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, p.ConnRef)
	}
	return out
}

func (r *Room) connRefsExcept(id string) []string {
	out := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		if p.ID != id {
			out = append(out, p.ConnRef)
		}
	}
	return out
}

// PublicPlayer is what every room member may see about a player.
type PublicPlayer struct {
	ID         string
	Nickname   string
	Mask       MaskType
	CardCount  int
	Ready      bool
	Eliminated bool
	HasWon     bool
	Rating     int
	Placement  int
}

// Snapshot is a read-only view of a room without any hand contents.
type Snapshot struct {
	ID              string
	CreatorID       string
	Phase           Phase
	Round           int
	Players         []PublicPlayer
	CurrentPlayerID string
	DiscardedPairs  int
	CreatedAt       time.Time
}

// Summary is a lobby row.
type Summary struct {
	ID          string
	PlayerCount int
	MaxPlayers  int
	Phase       Phase
	CreatorID   string
	CreatedAt   time.Time
}

func (r *Room) snapshot() Snapshot {
	s := Snapshot{
		ID:             r.ID,
		CreatorID:      r.CreatorID,
		Phase:          r.Phase,
		Round:          r.Round,
		Players:        make([]PublicPlayer, 0, len(r.Players)),
		DiscardedPairs: len(r.Discarded),
		CreatedAt:      r.CreatedAt,
	}
	for _, p := range r.Players {
		s.Players = append(s.Players, p.public())
	}
	if r.Phase == PhasePlaying && r.Current >= 0 && r.Current < len(r.Players) {
		s.CurrentPlayerID = r.Players[r.Current].ID
	}
	return s
}

func (r *Room) summary() Summary {
	return Summary{
		ID:          r.ID,
		PlayerCount: len(r.Players),
		MaxPlayers:  card.MaxPlayers,
		Phase:       r.Phase,
		CreatorID:   r.CreatorID,
		CreatedAt:   r.CreatedAt,
	}
}

func (p *Player) public() PublicPlayer {
	return PublicPlayer{
		ID:         p.ID,
		Nickname:   p.Nickname,
		Mask:       p.Mask,
		CardCount:  len(p.Hand),
		Ready:      p.Ready,
		Eliminated: p.Eliminated,
		HasWon:     p.HasWon,
		Rating:     p.Rating,
		Placement:  p.Placement,
	}
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

func errf(s string) error { return staticErr(s) }

var (
	ErrInvalidArgs         = errf("invalid arguments")
	ErrRoomNotFound        = errf("room not found")
	ErrRoomNotWaiting      = errf("room is not accepting players")
	ErrRoomFull            = errf("room is full")
	ErrDuplicatePlayer     = errf("player already in room")
	ErrAlreadyInRoom       = errf("connection already bound to a room")
	ErrNotInRoom           = errf("connection is not in a room")
	ErrNotRoomCreator      = errf("only the room creator can start the game")
	ErrGameNotWaiting      = errf("game already started")
	ErrInsufficientPlayers = errf("not enough players")
	ErrGameNotInProgress   = errf("game not in progress")
	ErrNotYourTurn         = errf("not your turn")
	ErrTooManyRooms        = errf("room limit reached")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidArgs, "invalid_args"},
	{ErrRoomNotFound, "room_not_found"},
	{ErrRoomNotWaiting, "room_not_waiting"},
	{ErrRoomFull, "room_full"},
	{ErrDuplicatePlayer, "duplicate_player"},
	{ErrAlreadyInRoom, "already_in_room"},
	{ErrNotInRoom, "not_in_room"},
	{ErrNotRoomCreator, "not_room_creator"},
	{ErrGameNotWaiting, "game_not_waiting"},
	{ErrInsufficientPlayers, "insufficient_players"},
	{ErrGameNotInProgress, "game_not_in_progress"},
	{ErrNotYourTurn, "not_your_turn"},
	{ErrTooManyRooms, "too_many_rooms"},
}

// ErrorCode maps a room error to its stable wire code.
func ErrorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}
