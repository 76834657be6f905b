package rating

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	StartingRating     = 1000
	MinRating          = 0
	DefaultBoardLength = 10
)

// Entry is one leaderboard row.
type Entry struct {
	PlayerID string `json:"playerId"`
	Rating   int    `json:"rating"`
}

// Store persists ratings keyed by player id. Get reports found=false for
// unseen players.
type Store interface {
	Get(ctx context.Context, playerID string) (rating int, found bool, err error)
	Set(ctx context.Context, playerID string, rating int) error
	Top(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

type Config struct {
	Starting int
	Floor    int
}

// Service applies the rating rules on top of a Store.
type Service struct {
	store    Store
	starting int
	floor    int
	logger   *zap.Logger

	// serializes read-modify-write so concurrent settlements never lose a delta
	mu sync.Mutex
}

func NewService(store Store, cfg Config, logger *zap.Logger) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Starting <= 0 {
		cfg.Starting = StartingRating
	}
	if cfg.Floor < MinRating {
		cfg.Floor = MinRating
	}
	return &Service{store: store, starting: cfg.Starting, floor: cfg.Floor, logger: logger}
}

// GetRating returns the stored rating, or the starting value for unseen
// players and store failures.
func (s *Service) GetRating(ctx context.Context, playerID string) int {
	r, found, err := s.store.Get(ctx, strings.TrimSpace(playerID))
	if err != nil {
		s.logger.Warn("rating_get_failed", zap.String("player_id", playerID), zap.Error(err))
		return s.starting
	}
	if !found {
		return s.starting
	}
	return r
}

// UpdateRating adds delta, clamps at the floor and persists the result.
func (s *Service) UpdateRating(ctx context.Context, playerID string, delta int) (int, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return 0, fmt.Errorf("rating: empty player id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, found, err := s.store.Get(ctx, playerID)
	if err != nil {
		return 0, fmt.Errorf("rating get %s: %w", playerID, err)
	}
	if !found {
		cur = s.starting
	}
	next := s.clamp(cur + delta)
	if err := s.store.Set(ctx, playerID, next); err != nil {
		return 0, fmt.Errorf("rating set %s: %w", playerID, err)
	}
	s.logger.Debug("rating_updated", zap.String("player_id", playerID), zap.Int("from", cur), zap.Int("to", next), zap.Int("delta", delta))
	return next, nil
}

// SetRating overwrites a rating, still honoring the floor.
func (s *Service) SetRating(ctx context.Context, playerID string, rating int) error {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return fmt.Errorf("rating: empty player id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Set(ctx, playerID, s.clamp(rating))
}

// Leaderboard returns the top ratings, highest first.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultBoardLength
	}
	return s.store.Top(ctx, limit)
}

func (s *Service) Close() error { return s.store.Close() }

func (s *Service) clamp(v int) int {
	if v < s.floor {
		return s.floor
	}
	return v
}
