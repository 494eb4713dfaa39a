package store

import (
	"testing"

	"github.com/singhDevs/Chezz-Backend/internal/game"
)

func TestStatsDeltaPerUser(t *testing.T) {
	win := game.Outcome{Result: game.ResultWhite, Cause: game.CauseCheckmate, WinningUserID: "u1"}
	draw := game.Outcome{Result: game.ResultDraw, Cause: game.CauseDrawAgreement, WinningUserID: game.NoWinner}

	cases := []struct {
		name                string
		out                 game.Outcome
		userID              string
		wins, losses, draws int
	}{
		{"winner", win, "u1", 1, 0, 0},
		{"loser", win, "u2", 0, 1, 0},
		{"draw white", draw, "u1", 0, 0, 1},
		{"draw black", draw, "u2", 0, 0, 1},
	}
	for _, tc := range cases {
		w, l, d := statsDelta(tc.out, tc.userID)
		if w != tc.wins || l != tc.losses || d != tc.draws {
			t.Errorf("%s: delta = %d/%d/%d, want %d/%d/%d",
				tc.name, w, l, d, tc.wins, tc.losses, tc.draws)
		}
	}
}
