package rating

import (
	"testing"
	"time"

	"github.com/singhDevs/Chezz-Backend/internal/game"
)

func TestComputeNewRatingsWinnerGains(t *testing.T) {
	now := time.Now()
	w, b := ComputeNewRatings(NewDefaultRating(), NewDefaultRating(), game.ResultWhite, now)
	if w.Rating <= baseRating {
		t.Fatalf("winner rating did not increase: %.2f", w.Rating)
	}
	if b.Rating >= baseRating {
		t.Fatalf("loser rating did not decrease: %.2f", b.Rating)
	}
	if w.RD >= defaultRD || b.RD >= defaultRD {
		t.Fatalf("deviation should shrink after a game: %.2f / %.2f", w.RD, b.RD)
	}
	if !w.LastGame.Equal(now) || !b.LastGame.Equal(now) {
		t.Fatalf("last game time not stamped")
	}
}

func TestComputeNewRatingsDrawSymmetric(t *testing.T) {
	w, b := ComputeNewRatings(NewDefaultRating(), NewDefaultRating(), game.ResultDraw, time.Now())
	if diff := w.Rating - b.Rating; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("equal players drawing must stay equal: %.6f vs %.6f", w.Rating, b.Rating)
	}
}

func TestDisplayRatingRoundsUp(t *testing.T) {
	g := Glicko2Rating{Rating: 1500.01}
	if g.DisplayRating() != 1501 {
		t.Fatalf("display rating = %d, want 1501", g.DisplayRating())
	}
}

func TestApplyTouchesOnlyMatchingType(t *testing.T) {
	w := NewRecord("u1")
	b := NewRecord("u2")
	Apply(w, b, game.TypeBlitz, game.ResultWhite, time.Now())

	if w.Blitz.Rating == baseRating {
		t.Fatalf("blitz rating unchanged after blitz match")
	}
	if w.Bullet.Rating != baseRating || w.Rapid.Rating != baseRating {
		t.Fatalf("non-matching game types were touched: bullet=%.2f rapid=%.2f", w.Bullet.Rating, w.Rapid.Rating)
	}
	if len(w.Blitz.History) != 1 || len(b.Blitz.History) != 1 {
		t.Fatalf("expected exactly one history entry per side")
	}
	if len(w.Bullet.History) != 0 || len(w.Rapid.History) != 0 {
		t.Fatalf("history written to non-matching type")
	}
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	w := NewRecord("u1")
	b := NewRecord("u2")
	base := time.Now()
	for i := 0; i < HistoryLimit+1; i++ {
		Apply(w, b, game.TypeRapid, game.ResultWhite, base.Add(time.Duration(i)*time.Minute))
	}

	h := w.Rapid.History
	if len(h) != HistoryLimit {
		t.Fatalf("history length = %d, want %d", len(h), HistoryLimit)
	}
	// After the 11th game the entry from game 1 is gone and the
	// newest is present.
	if h[0].CreatedAt.Equal(base) {
		t.Fatalf("oldest entry was not evicted")
	}
	if !h[len(h)-1].CreatedAt.Equal(base.Add(time.Duration(HistoryLimit) * time.Minute)) {
		t.Fatalf("newest entry missing from history tail")
	}
}
