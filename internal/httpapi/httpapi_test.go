package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"

	"github.com/park285/glitch-server/internal/rating"
	"github.com/park285/glitch-server/internal/room"
	"github.com/park285/glitch-server/pkg/glitchdto"
)

type fakeLobby struct{ rooms []room.Summary }

func (f fakeLobby) WaitingRooms() []room.Summary { return f.rooms }
func (f fakeLobby) RoomCount() int              { return len(f.rooms) + 1 }

type brokenBoard struct{}

func (brokenBoard) Leaderboard(context.Context, int) ([]rating.Entry, error) {
	return nil, errors.New("redis down")
}

func serve(t *testing.T, api *API) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = api.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = api.Shutdown(ctx)
	})
	return &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
}

func get(t *testing.T, c *fasthttp.Client, uri string, hdr map[string]string) (int, []byte, *fasthttp.Response) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := &fasthttp.Response{}
	req.SetRequestURI("http://glitch" + uri)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	require.NoError(t, c.DoTimeout(req, resp, time.Second))
	return resp.StatusCode(), append([]byte(nil), resp.Body()...), resp
}

func newBoard(t *testing.T) *rating.Service {
	t.Helper()
	svc := rating.NewService(nil, rating.Config{}, zap.NewNop())
	ctx := context.Background()
	for id, r := range map[string]int{"ann": 1200, "ben": 900, "cat": 1100} {
		require.NoError(t, svc.SetRating(ctx, id, r))
	}
	return svc
}

func TestHealthAndRooms(t *testing.T) {
	lobby := fakeLobby{rooms: []room.Summary{{ID: "ABC123", PlayerCount: 2, MaxPlayers: 4, Phase: room.PhaseWaiting, CreatorID: "ann"}}}
	c := serve(t, New(lobby, newBoard(t), WithLogger(zap.NewNop())))

	status, body, _ := get(t, c, "/healthz", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	var h glitchdto.Health
	require.NoError(t, json.Unmarshal(body, &h))
	assert.Equal(t, glitchdto.Health{Status: "ok", Rooms: 2}, h)

	status, body, _ = get(t, c, "/rooms", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	var rooms glitchdto.Rooms
	require.NoError(t, json.Unmarshal(body, &rooms))
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, "ABC123", rooms.Rooms[0].ID)
	assert.Equal(t, "WAITING", rooms.Rooms[0].Phase)

	status, _, _ = get(t, c, "/nope", nil)
	assert.Equal(t, fasthttp.StatusNotFound, status)
}

func TestLeaderboard(t *testing.T) {
	c := serve(t, New(fakeLobby{}, newBoard(t), WithLogger(zap.NewNop())))

	status, body, _ := get(t, c, "/leaderboard?limit=2", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	var rows []glitchdto.LeaderboardEntry
	require.NoError(t, json.Unmarshal(body, &rows))
	assert.Equal(t, []glitchdto.LeaderboardEntry{{PlayerID: "ann", Rating: 1200}, {PlayerID: "cat", Rating: 1100}}, rows)

	status, _, _ = get(t, c, "/leaderboard?limit=-1", nil)
	assert.Equal(t, fasthttp.StatusBadRequest, status)
}

func TestLeaderboardStoreFailure(t *testing.T) {
	c := serve(t, New(fakeLobby{}, brokenBoard{}, WithLogger(zap.NewNop())))
	status, body, _ := get(t, c, "/leaderboard", nil)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, status)
	var e glitchdto.Error
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "internal", e.Code)
}

func TestCORS(t *testing.T) {
	c := serve(t, New(fakeLobby{}, newBoard(t), WithLogger(zap.NewNop()), WithCORSOrigins([]string{"localhost:3000"})))

	_, _, resp := get(t, c, "/healthz", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, "http://localhost:3000", string(resp.Header.Peek("Access-Control-Allow-Origin")))

	_, _, resp = get(t, c, "/healthz", map[string]string{"Origin": "http://evil.example"})
	assert.Empty(t, resp.Header.Peek("Access-Control-Allow-Origin"))
}
