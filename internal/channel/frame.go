package channel

import (
	"encoding/json"
	"errors"
)

// Outbound frame types.
const (
	FrameJoinedGame = "joinedGame"
	FrameGameUpdate = "gameUpdate"
	FrameError      = "error"
	FramePong       = "pong"
)

// Frame is the envelope of every server to client message.
type Frame struct {
	Type    string          `json:"type"`
	Game    json.RawMessage `json:"game,omitempty"`
	Message string          `json:"message,omitempty"`
}

// EncodeFrame marshals a frame. Frames only hold raw JSON and strings, so
// encoding cannot fail in practice.
func EncodeFrame(f Frame) []byte {
	data, err := json.Marshal(f)
	if err != nil {
		return []byte(`{"type":"error","message":"internal error"}`)
	}
	return data
}

// ErrorFrame builds the error frame sent for err.
func ErrorFrame(err error) []byte {
	return EncodeFrame(Frame{Type: FrameError, Message: clientMessage(err)})
}

// clientMessage maps err to text safe to show a player.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnknownUser):
		return "unknown user"
	case errors.Is(err, ErrNoChallenge):
		return "no pending challenge from that user"
	case errors.Is(err, ErrInvalidRequest):
		return err.Error()
	default:
		return "could not create game"
	}
}
