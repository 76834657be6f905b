// Package httpapi serves the read-only lobby and leaderboard endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/glitch-server/internal/obslog"
	"github.com/park285/glitch-server/internal/rating"
	"github.com/park285/glitch-server/internal/room"
	"github.com/park285/glitch-server/pkg/glitchdto"
)

const maxLimit = 100

// Lobby is the read side of the room manager.
type Lobby interface {
	WaitingRooms() []room.Summary
	RoomCount() int
}

type Leaderboard interface {
	Leaderboard(ctx context.Context, limit int) ([]rating.Entry, error)
}

type API struct {
	lobby  Lobby
	board  Leaderboard
	logger *zap.Logger
	origin map[string]bool
	srv    *fasthttp.Server
}

type Option func(*API)

// WithCORSOrigins echoes Access-Control-Allow-Origin for the listed hosts.
func WithCORSOrigins(hosts []string) Option {
	return func(a *API) {
		for _, h := range hosts {
			a.origin[h] = true
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

func New(lobby Lobby, board Leaderboard, opts ...Option) *API {
	a := &API{lobby: lobby, board: board, logger: obslog.L(), origin: make(map[string]bool)}
	for _, opt := range opts {
		opt(a)
	}
	a.srv = &fasthttp.Server{
		Handler:            a.Handle,
		Name:               "glitch-server",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxRequestBodySize: 4 << 10,
	}
	return a
}

// Handle routes one request.
func (a *API) Handle(ctx *fasthttp.RequestCtx) {
	a.cors(ctx)
	if ctx.IsOptions() {
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	}
	if !ctx.IsGet() && !ctx.IsHead() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "method_not_allowed", "only GET is supported")
		return
	}

	switch string(ctx.Path()) {
	case "/healthz":
		writeJSON(ctx, fasthttp.StatusOK, glitchdto.Health{Status: "ok", Rooms: a.lobby.RoomCount()})
	case "/rooms":
		a.rooms(ctx)
	case "/leaderboard":
		a.leaderboard(ctx)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not_found", "no such endpoint")
	}
}

func (a *API) rooms(ctx *fasthttp.RequestCtx) {
	list := a.lobby.WaitingRooms()
	out := glitchdto.Rooms{Rooms: make([]glitchdto.RoomSummary, 0, len(list))}
	for _, s := range list {
		out.Rooms = append(out.Rooms, glitchdto.RoomSummary{
			ID:          s.ID,
			PlayerCount: s.PlayerCount,
			MaxPlayers:  s.MaxPlayers,
			Phase:       string(s.Phase),
			CreatorID:   s.CreatorID,
		})
	}
	writeJSON(ctx, fasthttp.StatusOK, out)
}

func (a *API) leaderboard(ctx *fasthttp.RequestCtx) {
	limit, ok := limitArg(ctx, rating.DefaultBoardLength)
	if !ok {
		return
	}

	entries, err := a.board.Leaderboard(ctx, limit)
	if err != nil {
		a.logger.Error("leaderboard_failed", zap.Error(err))
		writeError(ctx, fasthttp.StatusServiceUnavailable, "internal", "leaderboard unavailable")
		return
	}
	out := make([]glitchdto.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, glitchdto.LeaderboardEntry{PlayerID: e.PlayerID, Rating: e.Rating})
	}
	writeJSON(ctx, fasthttp.StatusOK, out)
}

func limitArg(ctx *fasthttp.RequestCtx, def int) (int, bool) {
	raw := ctx.QueryArgs().Peek("limit")
	if len(raw) == 0 {
		return def, true
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n <= 0 {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid_args", "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxLimit), true
}

func (a *API) cors(ctx *fasthttp.RequestCtx) {
	origin := string(ctx.Request.Header.Peek("Origin"))
	if origin == "" || len(a.origin) == 0 {
		return
	}
	if a.origin[hostOf(origin)] {
		ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
		ctx.Response.Header.Set("Vary", "Origin")
	}
}

// Serve blocks until the listener fails or Shutdown is called.
func (a *API) Serve(ln net.Listener) error {
	return a.srv.Serve(ln)
}

func (a *API) ListenAndServe(addr string) error {
	return a.srv.ListenAndServe(addr)
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.srv.ShutdownWithContext(ctx)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(b)
}

func writeError(ctx *fasthttp.RequestCtx, status int, code, msg string) {
	writeJSON(ctx, status, glitchdto.Error{Code: code, Message: msg})
}

func hostOf(origin string) string {
	for _, p := range []string{"https://", "http://"} {
		if len(origin) > len(p) && origin[:len(p)] == p {
			return origin[len(p):]
		}
	}
	return origin
}
