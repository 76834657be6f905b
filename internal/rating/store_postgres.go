package rating

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/lib/pq"
)

const ratingSchema = `CREATE TABLE IF NOT EXISTS player_ratings (
    player_id  TEXT PRIMARY KEY,
    rating     INTEGER NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists ratings in the player_ratings table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open pool and makes sure the table exists.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("rating: nil database handle")
	}
	if _, err := db.ExecContext(ctx, ratingSchema); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Get(ctx context.Context, playerID string) (int, bool, error) {
	var r int
	err := p.db.QueryRowContext(ctx, `SELECT rating FROM player_ratings WHERE player_id = $1`, strings.TrimSpace(playerID)).Scan(&r)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return r, true, nil
}

func (p *PostgresStore) Set(ctx context.Context, playerID string, rating int) error {
	q := `INSERT INTO player_ratings (player_id, rating, updated_at)
          VALUES ($1, $2, now())
          ON CONFLICT (player_id) DO UPDATE SET
            rating = EXCLUDED.rating,
            updated_at = EXCLUDED.updated_at`
	_, err := p.db.ExecContext(ctx, q, strings.TrimSpace(playerID), rating)
	return err
}

func (p *PostgresStore) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultBoardLength
	}
	rows, err := p.db.QueryContext(ctx, `SELECT player_id, rating FROM player_ratings ORDER BY rating DESC, player_id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.PlayerID, &e.Rating); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
