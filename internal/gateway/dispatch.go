package gateway

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/glitch-server/internal/room"
	"github.com/park285/glitch-server/pkg/glitchdto"
)

const (
	codeUnknownMessage   = "unknown_message"
	codeMalformedMessage = "malformed_message"
)

// messageData feeds the errors.* templates.
type messageData struct {
	Type   string
	RoomID string
}

func (s *Server) handle(ctx context.Context, c *client, f glitchdto.Frame) {
	req, err := glitchdto.DecodeRequest(f)
	if err != nil {
		s.fail(c, f.Type, "", err)
		return
	}

	switch r := req.(type) {
	case glitchdto.CreateRoomRequest:
		s.adopt(c, r.PlayerID)
		out, err := s.rooms.CreateRoom(ctx, room.Entrant{
			PlayerID: c.playerID,
			ConnRef:  c.id,
			Mask:     room.ParseMask(r.MaskType),
			Nickname: r.Nickname,
		})
		if err != nil {
			s.fail(c, r.Type(), "", err)
			return
		}
		c.identified = true
		// a fresh room has no other members, so ordering needs no room lock
		s.deliver(out)

	case glitchdto.JoinRoomRequest:
		s.adopt(c, r.PlayerID)
		roomID := strings.ToUpper(strings.TrimSpace(r.RoomID))
		err := s.inRoom(roomID, func() (*room.Outcome, error) {
			return s.rooms.JoinRoom(ctx, roomID, room.Entrant{
				PlayerID: c.playerID,
				ConnRef:  c.id,
				Mask:     room.ParseMask(r.MaskType),
				Nickname: r.Nickname,
			})
		})
		if err != nil {
			s.fail(c, r.Type(), roomID, err)
			return
		}
		c.identified = true

	case glitchdto.LeaveRoomRequest:
		s.bound(c, r.Type(), func() (*room.Outcome, error) {
			return s.rooms.LeaveRoom(ctx, c.id)
		})

	case glitchdto.PlayerReadyRequest:
		s.bound(c, r.Type(), func() (*room.Outcome, error) {
			return s.rooms.SetReady(ctx, c.id, r.IsReady())
		})

	case glitchdto.StartGameRequest:
		s.bound(c, r.Type(), func() (*room.Outcome, error) {
			return s.rooms.StartGame(ctx, c.id)
		})

	case glitchdto.DrawCardRequest:
		s.bound(c, r.Type(), func() (*room.Outcome, error) {
			return s.rooms.DrawCard(ctx, c.id, r.CardIndex)
		})

	case glitchdto.GetRoomsRequest:
		s.reply(c, glitchdto.Envelope{
			Type: glitchdto.TypeRooms,
			Data: glitchdto.Rooms{Rooms: roomSummaries(s.rooms.WaitingRooms())},
		})

	default:
		s.fail(c, req.Type(), "", glitchdto.ErrUnknownType)
	}
}

// adopt lets a client pick its player id until it first enters a room. After
// that the id is fixed for the life of the connection.
func (s *Server) adopt(c *client, requested string) {
	if c.identified {
		return
	}
	if id := strings.TrimSpace(requested); id != "" {
		c.playerID = id
	}
}

// bound runs op against the room the connection is seated in.
func (s *Server) bound(c *client, reqType string, op func() (*room.Outcome, error)) {
	roomID, _, ok := s.rooms.Binding(c.id)
	if !ok {
		s.fail(c, reqType, "", room.ErrNotInRoom)
		return
	}
	if err := s.inRoom(roomID, op); err != nil {
		s.fail(c, reqType, roomID, err)
	}
}

// inRoom runs op and fans out its events while holding the room's delivery
// lock.
func (s *Server) inRoom(roomID string, op func() (*room.Outcome, error)) error {
	lock := s.locks.get(roomID)
	lock.Lock()
	out, err := op()
	if err == nil {
		s.deliver(out)
	}
	lock.Unlock()
	if errors.Is(err, room.ErrRoomNotFound) {
		// unknown ids must not leave a lock behind
		s.locks.drop(roomID)
	}
	if err != nil {
		return err
	}
	if out.Destroyed {
		s.locks.drop(roomID)
	}
	return nil
}

// fail answers a rejected request. Draw rejections use invalid_move so clients
// can keep the board open; everything else is a plain error.
func (s *Server) fail(c *client, reqType, roomID string, err error) {
	code := errorCode(err)
	msg := s.catalog.RenderOr("errors."+code, messageData{Type: reqType, RoomID: roomID}, err.Error())
	if code == "internal" {
		s.logger.Error("request_failed", zap.String("conn_id", c.id), zap.String("type", reqType), zap.Error(err))
	} else {
		s.logger.Debug("request_rejected", zap.String("conn_id", c.id), zap.String("type", reqType), zap.String("code", code))
	}

	if reqType == glitchdto.TypeDrawCard {
		s.reply(c, glitchdto.Envelope{Type: glitchdto.TypeInvalidMove, Data: glitchdto.InvalidMove{Code: code, Reason: msg}})
		return
	}
	s.reply(c, glitchdto.Envelope{Type: glitchdto.TypeError, Data: glitchdto.Error{Code: code, Message: msg}})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, glitchdto.ErrUnknownType):
		return codeUnknownMessage
	case errors.Is(err, glitchdto.ErrMalformed):
		return codeMalformedMessage
	default:
		return room.ErrorCode(err)
	}
}
