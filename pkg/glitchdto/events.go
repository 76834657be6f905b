package glitchdto

// Server → client message types.
const (
	TypeRoomCreated    = "room_created"
	TypeRoomJoined     = "room_joined"
	TypePlayerJoined   = "player_joined"
	TypePlayerLeft     = "player_left"
	TypeCreatorChanged = "creator_changed"
	TypeReadyChanged   = "player_ready_change"
	TypeGameStarted    = "game_started"
	TypeHandDealt      = "hand_dealt"
	TypePairsPurged    = "pairs_purged"
	TypeYourTurn       = "your_turn"
	TypeCardDrawn      = "card_drawn"
	TypePlayerEmptied  = "player_emptied"
	TypeRoundOver      = "round_over"
	TypeGameOver       = "game_over"
	TypeRooms          = "rooms"
	TypeInvalidMove    = "invalid_move"
	TypeError          = "error"
)

// Envelope is an outbound frame before encoding.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type Card struct {
	Suit     string `json:"suit"`
	Rank     string `json:"rank"`
	Value    int    `json:"value"`
	IsGlitch bool   `json:"isGlitch"`
}

type PublicPlayer struct {
	ID           string `json:"id"`
	Nickname     string `json:"nickname"`
	MaskType     string `json:"maskType"`
	CardCount    int    `json:"cardCount"`
	IsReady      bool   `json:"isReady"`
	IsEliminated bool   `json:"isEliminated"`
	HasWon       bool   `json:"hasWon"`
	Rating       int    `json:"rating"`
	Placement    int    `json:"placement,omitempty"`
}

type RoomState struct {
	ID              string         `json:"id"`
	CreatorID       string         `json:"creatorId"`
	Phase           string         `json:"phase"`
	Round           int            `json:"round"`
	Players         []PublicPlayer `json:"players"`
	CurrentPlayerID string         `json:"currentPlayerId,omitempty"`
	DiscardedPairs  int            `json:"discardedPairs"`
}

type RoomSummary struct {
	ID          string `json:"id"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	Phase       string `json:"phase"`
	CreatorID   string `json:"creatorId"`
}

type Standing struct {
	PlayerID     string `json:"playerId"`
	Placement    int    `json:"placement"`
	RatingChange int    `json:"ratingChange"`
	NewRating    int    `json:"newRating"`
}

type RoomCreated struct {
	Room     RoomState `json:"room"`
	PlayerID string    `json:"playerId"`
}

// RoomJoined carries the full roster to the joiner.
type RoomJoined struct {
	Room      RoomState `json:"room"`
	PlayerID  string    `json:"playerId"`
	CreatorID string    `json:"creatorId"`
}

type PlayerJoined struct {
	Player PublicPlayer `json:"player"`
}

type PlayerLeft struct {
	PlayerID string    `json:"playerId"`
	Room     RoomState `json:"room"`
}

type CreatorChanged struct {
	CreatorID string `json:"creatorId"`
}

type ReadyChanged struct {
	PlayerID string `json:"playerId"`
	IsReady  bool   `json:"isReady"`
}

type GameStarted struct {
	Round         int       `json:"round"`
	Room          RoomState `json:"room"`
	FirstPlayerID string    `json:"firstPlayerId,omitempty"`
}

type HandDealt struct {
	PlayerID string `json:"playerId"`
	Hand     []Card `json:"hand"`
}

type PairsPurged struct {
	PlayerID  string    `json:"playerId"`
	Pairs     [][2]Card `json:"pairs"`
	CardCount int       `json:"cardCount"`
}

type YourTurn struct {
	PlayerID        string `json:"playerId"`
	TargetID        string `json:"targetId"`
	TargetCardCount int    `json:"targetCardCount"`
}

type CardDrawn struct {
	DrawerID        string `json:"drawerId"`
	TargetID        string `json:"targetId"`
	FormedPair      bool   `json:"formedPair"`
	PairCards       []Card `json:"pairCards,omitempty"`
	DrawerCardCount int    `json:"drawerCardCount"`
	TargetCardCount int    `json:"targetCardCount"`
	NextPlayerID    string `json:"nextPlayerId,omitempty"`
}

type PlayerEmptied struct {
	PlayerID string `json:"playerId"`
	Skipped  bool   `json:"skipped,omitempty"`
}

type RoundOver struct {
	Round     int        `json:"round"`
	LoserID   string     `json:"loserId,omitempty"`
	Reason    string     `json:"reason"`
	Standings []Standing `json:"standings"`
}

type GameOver struct {
	WinnerIDs      []string   `json:"winnerIds"`
	FinalStandings []Standing `json:"finalStandings"`
}

type Rooms struct {
	Rooms []RoomSummary `json:"rooms"`
}

// InvalidMove is sent only to the player whose draw was rejected.
type InvalidMove struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Rating   int    `json:"rating"`
}

type Health struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
}

