package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type AppConfig struct {
	ListenAddr     string
	HTTPAddr       string
	AllowedOrigins []string

	RedisURL      string
	DatabaseURL   string
	RatingBackend string
	RatingKey     string

	StartingRating int
	WinnerDelta    int
	LoserDelta     int

	MaxRooms         int
	NicknameMaxRunes int
	AuditLogLimit    int

	WSWriteTimeout time.Duration
	WSSendBuffer   int

	MessagesDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:       ":3001",
		HTTPAddr:         ":3002",
		RatingKey:        "glitch:ratings",
		StartingRating:   1000,
		WinnerDelta:      35,
		LoserDelta:       -35,
		MaxRooms:         500,
		NicknameMaxRunes: 20,
		AuditLogLimit:    512,
		WSWriteTimeout:   5 * time.Second,
		WSSendBuffer:     64,
	}

	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("HTTP_ADDR"); ok {
		// empty disables the HTTP API
		cfg.HTTPAddr = strings.TrimSpace(v)
	}

	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	if v := strings.TrimSpace(os.Getenv("CLIENT_URL")); v != "" {
		cfg.AllowedOrigins = append(cfg.AllowedOrigins, originHost(v))
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if v := strings.TrimSpace(os.Getenv("RATING_REDIS_KEY")); v != "" {
		cfg.RatingKey = v
	}

	cfg.RatingBackend = strings.ToLower(strings.TrimSpace(os.Getenv("RATING_BACKEND")))
	if cfg.RatingBackend == "" {
		switch {
		case cfg.DatabaseURL != "":
			cfg.RatingBackend = BackendPostgres
		case cfg.RedisURL != "":
			cfg.RatingBackend = BackendRedis
		default:
			cfg.RatingBackend = BackendMemory
		}
	}

	if n, ok := intEnv("STARTING_RATING"); ok && n > 0 {
		cfg.StartingRating = n
	}
	if n, ok := intEnv("WINNER_DELTA"); ok && n > 0 {
		cfg.WinnerDelta = n
	}
	if n, ok := intEnv("LOSER_DELTA"); ok && n < 0 {
		cfg.LoserDelta = n
	}
	if n, ok := intEnv("MAX_ROOMS"); ok && n > 0 {
		cfg.MaxRooms = n
	}
	if n, ok := intEnv("NICKNAME_MAX_RUNES"); ok && n > 0 {
		cfg.NicknameMaxRunes = n
	}
	if n, ok := intEnv("AUDIT_LOG_LIMIT"); ok && n > 0 {
		cfg.AuditLogLimit = n
	}
	if n, ok := intEnv("WS_WRITE_TIMEOUT_MS"); ok && n > 0 {
		cfg.WSWriteTimeout = time.Duration(n) * time.Millisecond
	}
	if n, ok := intEnv("WS_SEND_BUFFER"); ok && n > 0 {
		cfg.WSSendBuffer = n
	}
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	switch cfg.RatingBackend {
	case BackendMemory:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required for RATING_BACKEND=redis")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for RATING_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown RATING_BACKEND %q", cfg.RatingBackend)
	}
	if cfg.ListenAddr == cfg.HTTPAddr {
		return nil, errors.New("LISTEN_ADDR and HTTP_ADDR must differ")
	}

	return cfg, nil
}

// LoadDotenv fills variables that are not already set from the given files,
// ".env" by default. Missing files are skipped.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func intEnv(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// originHost strips the scheme so the value works as a websocket origin pattern.
func originHost(u string) string {
	u = strings.TrimSpace(u)
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	return strings.TrimRight(u, "/")
}
