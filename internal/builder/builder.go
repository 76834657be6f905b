// Package builder turns an AppConfig into the server's long-lived
// dependencies.
package builder

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/glitch-server/internal/config"
	"github.com/park285/glitch-server/internal/msgcat"
	"github.com/park285/glitch-server/internal/rating"
	"github.com/park285/glitch-server/internal/room"
)

const pingTimeout = 5 * time.Second

type Deps struct {
	Ratings *rating.Service
	Rooms   *room.Manager
	Catalog *msgcat.Catalog

	Redis *redis.Client
	DB    *sql.DB
}

// Close releases the rating store and its connections.
func (d *Deps) Close() error {
	if d == nil || d.Ratings == nil {
		return nil
	}
	return d.Ratings.Close()
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	deps := &Deps{Catalog: catalog}
	var store rating.Store
	switch cfg.RatingBackend {
	case config.BackendRedis:
		rdb, err := OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		deps.Redis = rdb
		store = rating.NewRedisStore(rdb, cfg.RatingKey)
	case config.BackendPostgres:
		db, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pg, err := rating.NewPostgresStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init rating schema: %w", err)
		}
		deps.DB = db
		store = pg
	default:
		store = rating.NewMemoryStore()
	}
	logger.Info("rating_store", zap.String("backend", cfg.RatingBackend))

	deps.Ratings = rating.NewService(store, rating.Config{Starting: cfg.StartingRating, Floor: rating.MinRating}, logger)
	deps.Rooms = room.NewManager(deps.Ratings, room.Config{
		MaxRooms:         cfg.MaxRooms,
		NicknameMaxRunes: cfg.NicknameMaxRunes,
		AuditLimit:       cfg.AuditLogLimit,
		WinnerDelta:      cfg.WinnerDelta,
		LoserDelta:       cfg.LoserDelta,
		Placeholder:      catalog.RenderOr("nickname.placeholder", nil, room.NicknamePlaceholder),
	}, room.WithLogger(logger))
	return deps, nil
}

// OpenRedis dials REDIS_URL and verifies the connection.
func OpenRedis(ctx context.Context, raw string) (*redis.Client, error) {
	opts, err := parseRedisURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// OpenPostgres opens DATABASE_URL with a small pool and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "6379"
	}
	if _, err := strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("invalid port %q", port)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Username: u.User.Username(),
		Password: pass,
		DB:       db,
	}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}
