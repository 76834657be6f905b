package glitchclient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/park285/glitch-server/pkg/glitchdto"
)

type seatFrame struct {
	seat int
	f    glitchdto.Frame
}

// Autoplay starts the game from seats[0], which must be the room creator,
// then answers every your_turn with a random draw until each seat has seen
// game_over.
func Autoplay(ctx context.Context, seats []*Conn, onFrame func(seat int, f glitchdto.Frame)) (*glitchdto.GameOver, error) {
	if len(seats) == 0 {
		return nil, fmt.Errorf("autoplay: no seats")
	}
	merged := make(chan seatFrame, 1024)
	stop := make(chan struct{})
	defer close(stop)
	for i, c := range seats {
		id := c.OnFrame(func(f glitchdto.Frame) {
			select {
			case merged <- seatFrame{seat: i, f: f}:
			case <-stop:
			case <-ctx.Done():
			}
		})
		defer c.RemoveCallback(id)
	}
	if err := seats[0].Send(ctx, glitchdto.StartGameRequest{}); err != nil {
		return nil, fmt.Errorf("start game: %w", err)
	}

	finished := make(map[int]bool, len(seats))
	var result *glitchdto.GameOver
	for len(finished) < len(seats) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case m := <-merged:
			if onFrame != nil {
				onFrame(m.seat, m.f)
			}
			switch m.f.Type {
			case glitchdto.TypeYourTurn:
				if err := seats[m.seat].Send(ctx, glitchdto.DrawCardRequest{}); err != nil {
					return nil, fmt.Errorf("seat %d draw: %w", m.seat, err)
				}
			case glitchdto.TypeError, glitchdto.TypeInvalidMove:
				return nil, fmt.Errorf("seat %d: %w", m.seat, decodeErrorFrame(m.f))
			case glitchdto.TypeGameOver:
				var over glitchdto.GameOver
				if err := json.Unmarshal(m.f.Data, &over); err != nil {
					return nil, fmt.Errorf("decode game_over: %w", err)
				}
				finished[m.seat] = true
				result = &over
			}
		}
		for i, c := range seats {
			if finished[i] {
				continue
			}
			select {
			case <-c.Done():
				return nil, fmt.Errorf("seat %d: %w", i, c.closeErr())
			default:
			}
		}
	}
	return result, nil
}
