package game

import "encoding/json"

// Message types exchanged over the game socket.
const (
	MsgStartGame     = "START_GAME"
	MsgJoin          = "JOIN"
	MsgMove          = "MOVE"
	MsgResign        = "RESIGN"
	MsgDraw          = "DRAW"
	MsgDrawRequested = "DRAW_REQUESTED"
	MsgGameOver      = "GAME_OVER"
	MsgInfo          = "info"
	MsgError         = "error"
)

// Envelope is the outer frame of every inbound message; Payload is
// decoded per Type by the router.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// MOVE fields arrive inline, matching the client protocol.
	Move  *MovePayload `json:"move,omitempty"`
	Piece string       `json:"piece,omitempty"`
}

// MovePayload is a proposed move from a client.
type MovePayload struct {
	From            string `json:"from"`
	To              string `json:"to"`
	Promotion       string `json:"promotion,omitempty"`
	Piece           string `json:"piece,omitempty"`
	QueenSideCastle bool   `json:"queenSideCastle,omitempty"`
	KingSideCastle  bool   `json:"kingSideCastle,omitempty"`
}

// StartGame tells a client its match has begun.
type StartGame struct {
	Type     string   `json:"type"`
	Color    Color    `json:"color"`
	Opponent Player   `json:"opponent"`
	Duration int64    `json:"duration"`
	GameType GameType `json:"gameType"`
}

// MoveBroadcast carries an accepted move plus both remaining clocks.
type MoveBroadcast struct {
	Type        string       `json:"type"`
	Move        *MovePayload `json:"move"`
	Board       string       `json:"board"`
	Turn        Color        `json:"turn"`
	WhiteTimeMs int64        `json:"whiteTime"`
	BlackTimeMs int64        `json:"blackTime"`
}

// DrawRequested notifies the non-offering side of a pending draw offer.
type DrawRequested struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// GameOver is the terminal broadcast for both sides.
type GameOver struct {
	Type          string `json:"type"`
	ID            string `json:"id"`
	Board         string `json:"board"`
	Result        Result `json:"result"`
	Cause         Cause  `json:"cause"`
	WinningUserID string `json:"winningUser"`
	UpdatedRating int    `json:"updatedRating,omitempty"`
}

// Info is the presence broadcast sent on every connect/disconnect.
type Info struct {
	Type        string `json:"type"`
	OnlineUsers int    `json:"onlineUsers"`
}

// ErrorFrame is the single error frame allowed for a rejected input.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
