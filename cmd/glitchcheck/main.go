package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	appcfg "github.com/park285/glitch-server/internal/config"
	"github.com/park285/glitch-server/internal/glitchclient"
	"github.com/park285/glitch-server/pkg/glitchdto"
)

var (
	ok   = color.New(color.FgGreen, color.Bold).SprintFunc()
	fail = color.New(color.FgRed, color.Bold).SprintFunc()
	dim  = color.New(color.Faint).SprintFunc()
	hi   = color.New(color.FgCyan).SprintFunc()
)

func main() {
	if err := appcfg.LoadDotenv(); err != nil {
		fmt.Printf("%s .env: %v\n", fail("FAIL"), err)
		os.Exit(1)
	}
	baseURL := getenv("GLITCH_HTTP_URL", "http://localhost:3002")
	wsURL := getenv("GLITCH_WS_URL", "ws://localhost:3001/ws")
	seats := 2
	if n, err := strconv.Atoi(os.Getenv("GLITCH_SEATS")); err == nil && n >= 2 && n <= 4 {
		seats = n
	}

	failed := false
	client := glitchclient.NewClient(baseURL, glitchclient.WithTimeout(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if h, err := client.Health(ctx); err != nil {
		fmt.Printf("%s /healthz: %v\n", fail("FAIL"), err)
		failed = true
	} else {
		fmt.Printf("%s /healthz status=%s rooms=%d\n", ok("OK"), h.Status, h.Rooms)
	}
	if rooms, err := client.Rooms(ctx); err != nil {
		fmt.Printf("%s /rooms: %v\n", fail("FAIL"), err)
		failed = true
	} else {
		fmt.Printf("%s /rooms waiting=%d\n", ok("OK"), len(rooms))
	}

	if wsURL != "-" {
		if err := playRound(wsURL, seats); err != nil {
			fmt.Printf("%s game: %v\n", fail("FAIL"), err)
			failed = true
		}
	} else {
		fmt.Println(dim("GLITCH_WS_URL=-; skipping game check"))
	}

	lctx, lcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer lcancel()
	if board, err := client.Leaderboard(lctx, 5); err != nil {
		fmt.Printf("%s /leaderboard: %v\n", fail("FAIL"), err)
		failed = true
	} else {
		fmt.Printf("%s /leaderboard top=%d\n", ok("OK"), len(board))
		for i, e := range board {
			fmt.Printf("  %d. %s %d\n", i+1, e.PlayerID, e.Rating)
		}
	}

	if failed {
		os.Exit(1)
	}
}

// playRound seats bot players in a fresh room and plays one round to the end.
func playRound(wsURL string, n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	conns := make([]*glitchclient.Conn, 0, n)
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()
	ids := make([]string, n)
	for i := range n {
		c, err := glitchclient.Dial(ctx, wsURL)
		if err != nil {
			return err
		}
		conns = append(conns, c)
		ids[i] = "check-" + uuid.NewString()[:8]
	}

	if err := conns[0].Send(ctx, glitchdto.CreateRoomRequest{PlayerID: ids[0], MaskType: "phantom", Nickname: "checker 1"}); err != nil {
		return err
	}
	var created glitchdto.RoomCreated
	if err := conns[0].AwaitInto(ctx, glitchdto.TypeRoomCreated, &created); err != nil {
		return fmt.Errorf("create: %w", err)
	}
	fmt.Printf("%s room %s\n", ok("OK"), hi(created.Room.ID))

	for i := 1; i < n; i++ {
		req := glitchdto.JoinRoomRequest{RoomID: created.Room.ID, PlayerID: ids[i], Nickname: fmt.Sprintf("checker %d", i+1)}
		if err := conns[i].Send(ctx, req); err != nil {
			return err
		}
		if _, err := conns[i].Await(ctx, glitchdto.TypeRoomJoined); err != nil {
			return fmt.Errorf("join seat %d: %w", i+1, err)
		}
	}

	draws := 0
	over, err := glitchclient.Autoplay(ctx, conns, func(seat int, f glitchdto.Frame) {
		// every seat sees the same public events; print them once
		if seat != 0 {
			return
		}
		switch f.Type {
		case glitchdto.TypeCardDrawn:
			draws++
			var cd glitchdto.CardDrawn
			if json.Unmarshal(f.Data, &cd) == nil && cd.FormedPair {
				fmt.Println(dim(fmt.Sprintf("  draw %d: %s paired from %s", draws, cd.DrawerID, cd.TargetID)))
			}
		case glitchdto.TypeRoundOver:
			var ro glitchdto.RoundOver
			if json.Unmarshal(f.Data, &ro) == nil {
				fmt.Printf("  round over: %s holds the Glitch (%s)\n", hi(ro.LoserID), ro.Reason)
			}
		}
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s game over after %d draws, winners=%v\n", ok("OK"), draws, over.WinnerIDs)
	for _, s := range over.FinalStandings {
		fmt.Printf("  #%d %s %+d → %d\n", s.Placement, s.PlayerID, s.RatingChange, s.NewRating)
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
