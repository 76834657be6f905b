package glitchdto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Client → server message types.
const (
	TypeCreateRoom  = "create_room"
	TypeJoinRoom    = "join_room"
	TypeLeaveRoom   = "leave_room"
	TypePlayerReady = "player_ready"
	TypeStartGame   = "start_game"
	TypeDrawCard    = "draw_card"
	TypeGetRooms    = "get_rooms"
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Request is the closed set of client messages. Dispatch with a type switch.
type Request interface {
	Type() string
	isRequest()
}

type CreateRoomRequest struct {
	PlayerID string `json:"playerId,omitempty"`
	MaskType string `json:"maskType"`
	Nickname string `json:"nickname"`
}

type JoinRoomRequest struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId,omitempty"`
	MaskType string `json:"maskType"`
	Nickname string `json:"nickname"`
}

type LeaveRoomRequest struct{}

// PlayerReadyRequest marks the caller ready; Ready=false clears it.
type PlayerReadyRequest struct {
	Ready *bool `json:"ready,omitempty"`
}

type StartGameRequest struct{}

type DrawCardRequest struct {
	CardIndex *int `json:"cardIndex,omitempty"`
}

type GetRoomsRequest struct{}

func (CreateRoomRequest) Type() string  { return TypeCreateRoom }
func (JoinRoomRequest) Type() string    { return TypeJoinRoom }
func (LeaveRoomRequest) Type() string   { return TypeLeaveRoom }
func (PlayerReadyRequest) Type() string { return TypePlayerReady }
func (StartGameRequest) Type() string   { return TypeStartGame }
func (DrawCardRequest) Type() string    { return TypeDrawCard }
func (GetRoomsRequest) Type() string    { return TypeGetRooms }

func (CreateRoomRequest) isRequest()  {}
func (JoinRoomRequest) isRequest()    {}
func (LeaveRoomRequest) isRequest()   {}
func (PlayerReadyRequest) isRequest() {}
func (StartGameRequest) isRequest()   {}
func (DrawCardRequest) isRequest()    {}
func (GetRoomsRequest) isRequest()    {}

// IsReady defaults to true when the flag is omitted.
func (r PlayerReadyRequest) IsReady() bool { return r.Ready == nil || *r.Ready }

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrUnknownType = staticErr("unknown message type")
	ErrMalformed   = staticErr("malformed message")
)

// DecodeRequest parses a client frame into its concrete request.
func DecodeRequest(f Frame) (Request, error) {
	var req Request
	switch strings.TrimSpace(f.Type) {
	case TypeCreateRoom:
		req = &CreateRoomRequest{}
	case TypeJoinRoom:
		req = &JoinRoomRequest{}
	case TypeLeaveRoom:
		return LeaveRoomRequest{}, nil
	case TypePlayerReady:
		req = &PlayerReadyRequest{}
	case TypeStartGame:
		return StartGameRequest{}, nil
	case TypeDrawCard:
		req = &DrawCardRequest{}
	case TypeGetRooms:
		return GetRoomsRequest{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
	if len(f.Data) > 0 && string(f.Data) != "null" {
		if err := json.Unmarshal(f.Data, req); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Type, err)
		}
	}
	switch r := req.(type) {
	case *CreateRoomRequest:
		return *r, nil
	case *JoinRoomRequest:
		return *r, nil
	case *PlayerReadyRequest:
		return *r, nil
	case *DrawCardRequest:
		return *r, nil
	}
	return req, nil
}

// EncodeRequest wraps a request in a frame.
func EncodeRequest(req Request) (Frame, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: req.Type(), Data: raw}, nil
}
