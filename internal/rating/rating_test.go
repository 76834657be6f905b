package rating

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(rdb, ""), mr
}

// exercises the same contract against every store available in this environment
func stores(t *testing.T) map[string]Store {
	t.Helper()
	rs, _ := newRedisStore(t)
	out := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  rs,
	}
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		ps, err := NewPostgresStore(context.Background(), db)
		if err != nil {
			t.Fatalf("postgres store: %v", err)
		}
		if _, err := db.Exec(`DELETE FROM player_ratings WHERE player_id LIKE 'test-%'`); err != nil {
			t.Fatalf("cleanup: %v", err)
		}
		out["postgres"] = ps
	}
	return out
}

func TestServiceDefaultsAndClamp(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := NewService(st, Config{}, nil)

			if got := svc.GetRating(ctx, "test-new"); got != StartingRating {
				t.Fatalf("unseen rating: got %d want %d", got, StartingRating)
			}
			r, err := svc.UpdateRating(ctx, "test-a", 35)
			if err != nil {
				t.Fatalf("UpdateRating: %v", err)
			}
			if r != 1035 || svc.GetRating(ctx, "test-a") != 1035 {
				t.Fatalf("after win: got %d", r)
			}
			r, err = svc.UpdateRating(ctx, "test-b", -5000)
			if err != nil {
				t.Fatalf("UpdateRating: %v", err)
			}
			if r != MinRating || svc.GetRating(ctx, "test-b") != MinRating {
				t.Fatalf("floor not applied: got %d", r)
			}
		})
	}
}

func TestLeaderboardOrder(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := NewService(st, Config{}, nil)
			for id, v := range map[string]int{"test-x": 900, "test-y": 1200, "test-z": 1100} {
				if err := svc.SetRating(ctx, id, v); err != nil {
					t.Fatalf("SetRating: %v", err)
				}
			}
			top, err := svc.Leaderboard(ctx, 2)
			if err != nil {
				t.Fatalf("Leaderboard: %v", err)
			}
			if len(top) != 2 {
				t.Fatalf("expected 2 entries, got %d (%v)", len(top), top)
			}
			if top[0].PlayerID != "test-y" || top[1].PlayerID != "test-z" {
				t.Fatalf("unexpected order: %v", top)
			}
		})
	}
}

func TestSetRatingHonorsFloor(t *testing.T) {
	svc := NewService(NewMemoryStore(), Config{}, nil)
	ctx := context.Background()
	if err := svc.SetRating(ctx, "p", -10); err != nil {
		t.Fatalf("SetRating: %v", err)
	}
	if got := svc.GetRating(ctx, "p"); got != 0 {
		t.Fatalf("got %d", got)
	}
	if _, err := svc.UpdateRating(ctx, " ", 1); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestConcurrentUpdatesKeepEveryDelta(t *testing.T) {
	st, _ := newRedisStore(t)
	svc := NewService(st, Config{}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.UpdateRating(ctx, "shared", 1); err != nil {
				t.Errorf("UpdateRating: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := svc.GetRating(ctx, "shared"); got != StartingRating+20 {
		t.Fatalf("got %d want %d", got, StartingRating+20)
	}
}

func TestGetRatingFallsBackOnStoreError(t *testing.T) {
	st, mr := newRedisStore(t)
	svc := NewService(st, Config{Starting: 1500}, nil)
	mr.Close()
	if got := svc.GetRating(context.Background(), "p"); got != 1500 {
		t.Fatalf("got %d", got)
	}
}
