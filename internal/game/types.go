package game

import "strings"

// Color identifies a chess side.
type Color string

const (
	White Color = "w"
	Black Color = "b"
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Mode gates whether a finished match feeds the rating pipeline.
type Mode string

const (
	ModeCasual Mode = "CASUAL"
	ModeRated  Mode = "RATED"
)

// GameType is the time-control category; it selects which rating
// fields a rated result updates.
type GameType string

const (
	TypeBullet GameType = "BULLET"
	TypeBlitz  GameType = "BLITZ"
	TypeRapid  GameType = "RAPID"
)

func ParseMode(s string) (Mode, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CASUAL":
		return ModeCasual, true
	case "RATED":
		return ModeRated, true
	}
	return "", false
}

func ParseGameType(s string) (GameType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BULLET":
		return TypeBullet, true
	case "BLITZ":
		return TypeBlitz, true
	case "RAPID":
		return TypeRapid, true
	}
	return "", false
}

// Result is the side a finished match favored.
type Result string

const (
	ResultWhite Result = "WHITE"
	ResultBlack Result = "BLACK"
	ResultDraw  Result = "DRAW"
)

// Cause is the terminating event behind a Result.
type Cause string

const (
	CauseCheckmate            Cause = "CHECKMATE"
	CauseStalemate            Cause = "STALEMATE"
	CauseInsufficientMaterial Cause = "INSUFFICIENT_MATERIAL"
	CauseDrawRule             Cause = "DRAW"
	CauseDrawAgreement        Cause = "DRAW_AGREEMENT"
	CauseResignation          Cause = "RESIGNATION"
	CauseTimeout              Cause = "TIMEOUT"
)

// NoWinner marks a drawn outcome's winning user field.
const NoWinner = "~"

// Outcome is the single tagged result variant crossing every boundary:
// session → rating pipeline, session → archive, session → clients.
type Outcome struct {
	Result        Result `json:"result"`
	Cause         Cause  `json:"cause"`
	WinningUserID string `json:"winningUser"`
}

func (o Outcome) IsDraw() bool { return o.Result == ResultDraw }

// Player is the per-side identity a session carries.
type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
