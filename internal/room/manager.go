package room

import (
	"context"
	"crypto/rand"
	"fmt"
	mrand "math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/park285/glitch-server/internal/card"
	"github.com/park285/glitch-server/internal/obslog"
)

const (
	DefaultWinnerDelta      = 35
	DefaultLoserDelta       = -35
	DefaultNicknameMaxRunes = 20
	DefaultAuditLimit       = 512
	NicknamePlaceholder     = "Masked Guest"

	codeLength   = 6
	codeAttempts = 5
	ratingFloor  = 0
)

// Ratings is the slice of the rating service the orchestrator needs.
type Ratings interface {
	GetRating(ctx context.Context, playerID string) int
	UpdateRating(ctx context.Context, playerID string, delta int) (int, error)
}

type Config struct {
	MaxRooms         int
	NicknameMaxRunes int
	AuditLimit       int
	WinnerDelta      int
	LoserDelta       int
	// Placeholder replaces blank nicknames; defaults to NicknamePlaceholder.
	Placeholder string
}

// Entrant identifies a player entering a room.
type Entrant struct {
	PlayerID string
	ConnRef  string
	Mask     MaskType
	Nickname string
}

type binding struct {
	roomID   string
	playerID string
}

// Manager owns the room registry and the connection index. Lock order is
// registry (mu) before any room lock; the registry lock is never taken while
// a room lock is held.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	conns map[string]binding

	ratings Ratings
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
	codeGen func() (string, error)

	seedMu sync.Mutex
	seed   *mrand.Rand
}

type Option func(*Manager)

// WithSeed makes dealing and random draws reproducible.
func WithSeed(s1, s2 uint64) Option {
	return func(m *Manager) { m.seed = mrand.New(mrand.NewPCG(s1, s2)) }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithCodeGenerator(fn func() (string, error)) Option {
	return func(m *Manager) { m.codeGen = fn }
}

func NewManager(ratings Ratings, cfg Config, opts ...Option) *Manager {
	if cfg.NicknameMaxRunes <= 0 {
		cfg.NicknameMaxRunes = DefaultNicknameMaxRunes
	}
	if cfg.AuditLimit <= 0 {
		cfg.AuditLimit = DefaultAuditLimit
	}
	if cfg.WinnerDelta == 0 {
		cfg.WinnerDelta = DefaultWinnerDelta
	}
	if cfg.LoserDelta == 0 {
		cfg.LoserDelta = DefaultLoserDelta
	}
	m := &Manager{
		rooms:   make(map[string]*Room),
		conns:   make(map[string]binding),
		ratings: ratings,
		cfg:     cfg,
		logger:  obslog.L(),
		now:     time.Now,
		codeGen: codeGen,
		seed:    mrand.New(mrand.NewPCG(mrand.Uint64(), mrand.Uint64())),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRoom opens a new WAITING room with e as its creator.
func (m *Manager) CreateRoom(ctx context.Context, e Entrant) (*Outcome, error) {
	if strings.TrimSpace(e.PlayerID) == "" || strings.TrimSpace(e.ConnRef) == "" {
		return nil, ErrInvalidArgs
	}
	rating := m.ratings.GetRating(ctx, e.PlayerID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[e.ConnRef]; ok {
		return nil, ErrAlreadyInRoom
	}
	if m.cfg.MaxRooms > 0 && len(m.rooms) >= m.cfg.MaxRooms {
		return nil, ErrTooManyRooms
	}
	code, err := m.allocateCode()
	if err != nil {
		return nil, err
	}

	now := m.now()
	p := m.newPlayer(e, rating, now)
	r := &Room{
		ID:        code,
		CreatorID: p.ID,
		Phase:     PhaseWaiting,
		Players:   []*Player{p},
		CreatedAt: now,
		UpdatedAt: now,
		rng:       m.newRoomRand(),
	}
	m.rooms[code] = r
	m.conns[e.ConnRef] = binding{roomID: code, playerID: p.ID}

	out := &Outcome{Room: r.snapshot()}
	out.emit(EventRoomCreated, RoomCreatedPayload{Room: out.Room, PlayerID: p.ID}, p.ConnRef)
	out.emit(EventRoomJoined, RoomJoinedPayload{Room: out.Room, PlayerID: p.ID}, p.ConnRef)
	m.logger.Info("room_create", zap.String("room_id", code), zap.String("player_id", p.ID), zap.String("conn_id", e.ConnRef))
	return out, nil
}

// JoinRoom appends e to a WAITING room.
func (m *Manager) JoinRoom(ctx context.Context, roomID string, e Entrant) (*Outcome, error) {
	roomID = normalizeCode(roomID)
	if roomID == "" || strings.TrimSpace(e.PlayerID) == "" || strings.TrimSpace(e.ConnRef) == "" {
		return nil, ErrInvalidArgs
	}
	rating := m.ratings.GetRating(ctx, e.PlayerID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[e.ConnRef]; ok {
		return nil, ErrAlreadyInRoom
	}
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Phase != PhaseWaiting {
		return nil, ErrRoomNotWaiting
	}
	if len(r.Players) >= card.MaxPlayers {
		return nil, ErrRoomFull
	}
	if r.playerIndex(e.PlayerID) >= 0 {
		return nil, ErrDuplicatePlayer
	}

	now := m.now()
	p := m.newPlayer(e, rating, now)
	r.Players = append(r.Players, p)
	r.UpdatedAt = now
	m.conns[e.ConnRef] = binding{roomID: r.ID, playerID: p.ID}

	out := &Outcome{Room: r.snapshot()}
	out.emit(EventRoomJoined, RoomJoinedPayload{Room: out.Room, PlayerID: p.ID}, p.ConnRef)
	out.emit(EventPlayerJoined, PlayerJoinedPayload{Player: p.public()}, r.connRefsExcept(p.ID)...)
	m.logger.Info("room_join", zap.String("room_id", r.ID), zap.String("player_id", p.ID), zap.Int("players", len(r.Players)))
	return out, nil
}

// LeaveRoom removes the connection's player. An emptied room is destroyed.
func (m *Manager) LeaveRoom(ctx context.Context, connRef string) (*Outcome, error) {
	out, err := m.leaveRoom(connRef)
	if err != nil {
		return nil, err
	}
	m.applyRatings(ctx, out)
	return out, nil
}

func (m *Manager) leaveRoom(connRef string) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.conns[connRef]
	if !ok {
		return nil, ErrNotInRoom
	}
	r, ok := m.rooms[b.roomID]
	if !ok {
		return nil, ErrNotInRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.playerIndex(b.playerID)
	if idx < 0 {
		return nil, ErrNotInRoom
	}
	delete(m.conns, connRef)
	var seen YourTurnPayload
	if r.Phase == PhasePlaying {
		seen = r.turnView()
	}
	leaver := r.Players[idx]
	r.Players = append(r.Players[:idx:idx], r.Players[idx+1:]...)
	r.UpdatedAt = m.now()

	out := &Outcome{}
	if len(r.Players) == 0 {
		r.closed = true
		delete(m.rooms, r.ID)
		out.Destroyed = true
		out.Room = r.snapshot()
		m.logger.Info("room_destroy", zap.String("room_id", r.ID), zap.String("last_player_id", leaver.ID))
		return out, nil
	}

	var creatorChanged bool
	if leaver.ID == r.CreatorID {
		r.CreatorID = r.Players[0].ID
		creatorChanged = true
	}

	game := &Outcome{}
	if r.Phase == PhasePlaying {
		m.handleDeparture(r, leaver, idx, seen, game)
	}

	out.Room = r.snapshot()
	out.emit(EventPlayerLeft, PlayerLeftPayload{PlayerID: leaver.ID, Room: out.Room}, r.connRefs()...)
	if creatorChanged {
		out.emit(EventCreatorChanged, CreatorChangedPayload{CreatorID: r.CreatorID}, r.connRefs()...)
	}
	out.Events = append(out.Events, game.Events...)
	out.ratings = game.ratings
	m.logger.Info("room_leave",
		zap.String("room_id", r.ID),
		zap.String("player_id", leaver.ID),
		zap.String("phase", string(r.Phase)),
		zap.Bool("creator_changed", creatorChanged))
	return out, nil
}

// SetReady toggles the caller's ready flag. Starting stays an explicit
// creator action.
func (m *Manager) SetReady(ctx context.Context, connRef string, ready bool) (*Outcome, error) {
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
	if r.Phase != PhaseWaiting {
		return nil, ErrGameNotWaiting
	}
	r.Players[idx].Ready = ready
	r.UpdatedAt = m.now()

	out := &Outcome{Room: r.snapshot()}
	out.emit(EventReadyChanged, ReadyChangedPayload{PlayerID: b.playerID, Ready: ready}, r.connRefs()...)
	return out, nil
}

// WaitingRooms lists rooms that accept players, oldest first.
func (m *Manager) WaitingRooms() []Summary {
	all := m.Rooms()
	out := all[:0]
	for _, s := range all {
		if s.Phase == PhaseWaiting {
			out = append(out, s)
		}
	}
	return out
}

// Rooms lists every live room, oldest first.
func (m *Manager) Rooms() []Summary {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.closed {
			out = append(out, r.summary())
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RoomCount is the number of live rooms.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Snapshot returns the public view of one room.
func (m *Manager) Snapshot(roomID string) (Snapshot, error) {
	m.mu.RLock()
	r, ok := m.rooms[normalizeCode(roomID)]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Snapshot{}, ErrRoomNotFound
	}
	return r.snapshot(), nil
}

// Binding reports which room and player a connection is bound to.
func (m *Manager) Binding(connRef string) (roomID, playerID string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.conns[connRef]
	return b.roomID, b.playerID, ok
}

func (m *Manager) lookup(connRef string) (*Room, binding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.conns[connRef]
	if !ok {
		return nil, binding{}, ErrNotInRoom
	}
	r, ok := m.rooms[b.roomID]
	if !ok {
		return nil, binding{}, ErrRoomNotFound
	}
	return r, b, nil
}

// member must be called with r.mu held.
func (r *Room) member(b binding) (int, error) {
	if r.closed {
		return -1, ErrRoomNotFound
	}
	idx := r.playerIndex(b.playerID)
	if idx < 0 {
		return -1, ErrNotInRoom
	}
	return idx, nil
}

func (m *Manager) newPlayer(e Entrant, rating int, now time.Time) *Player {
	return &Player{
		ID:       strings.TrimSpace(e.PlayerID),
		ConnRef:  e.ConnRef,
		Mask:     ParseMask(string(e.Mask)),
		Nickname: m.nickname(e.Nickname),
		Rating:   rating,
		JoinedAt: now,
	}
}

func (m *Manager) nickname(raw string) string {
	n := SanitizeNickname(raw, m.cfg.NicknameMaxRunes)
	if n == NicknamePlaceholder && strings.TrimSpace(raw) == "" && m.cfg.Placeholder != "" {
		return m.cfg.Placeholder
	}
	return n
}

func (m *Manager) newRoomRand() *mrand.Rand {
	m.seedMu.Lock()
	defer m.seedMu.Unlock()
	return mrand.New(mrand.NewPCG(m.seed.Uint64(), m.seed.Uint64()))
}

// allocateCode must be called with m.mu held.
func (m *Manager) allocateCode() (string, error) {
	for i := 0; i < codeAttempts; i++ {
		c, err := m.codeGen()
		if err != nil {
			return "", err
		}
		if _, taken := m.rooms[c]; !taken {
			return c, nil
		}
	}
	return "", fmt.Errorf("failed to allocate room code")
}

// SanitizeNickname trims and collapses whitespace, caps the length in runes
// and falls back to a placeholder.
func SanitizeNickname(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		s = strings.TrimSpace(string([]rune(s)[:maxRunes]))
	}
	if s == "" {
		return NicknamePlaceholder
	}
	return s
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// codeGen returns 6 upper alnum characters.
func codeGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b), nil
}
