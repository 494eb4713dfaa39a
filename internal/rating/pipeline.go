package rating

import (
	"time"

	"go.uber.org/zap"

	"github.com/singhDevs/Chezz-Backend/internal/game"
	"github.com/singhDevs/Chezz-Backend/internal/obslog"
)

// HistoryLimit caps each per-type rating history, oldest entries
// evicted first.
const HistoryLimit = 10

// HistoryEntry is one trailing rating sample.
type HistoryEntry struct {
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"createdAt"`
}

// TypeRating is a player's state for one time-control category.
type TypeRating struct {
	Glicko2Rating
	History []HistoryEntry `json:"history"`
}

// Record holds a user's three independent per-type ratings. A finished
// rated match touches exactly one of them.
type Record struct {
	UserID string
	Bullet TypeRating
	Blitz  TypeRating
	Rapid  TypeRating
}

// NewRecord starts a user at the default rating in every category.
func NewRecord(userID string) *Record {
	return &Record{
		UserID: userID,
		Bullet: TypeRating{Glicko2Rating: NewDefaultRating()},
		Blitz:  TypeRating{Glicko2Rating: NewDefaultRating()},
		Rapid:  TypeRating{Glicko2Rating: NewDefaultRating()},
	}
}

func (r *Record) forType(gt game.GameType) *TypeRating {
	switch gt {
	case game.TypeBullet:
		return &r.Bullet
	case game.TypeRapid:
		return &r.Rapid
	default:
		return &r.Blitz
	}
}

// ForType returns the rating state for the given category.
func (r *Record) ForType(gt game.GameType) TypeRating { return *r.forType(gt) }

// Apply runs one paired update for a finished rated match. Only the
// fields of the match's game type change; each side gains exactly one
// history entry, trimmed to HistoryLimit from the front.
func Apply(white, black *Record, gt game.GameType, result game.Result, now time.Time) (newWhite, newBlack Glicko2Rating) {
	w := white.forType(gt)
	b := black.forType(gt)

	nw, nb := ComputeNewRatings(w.Glicko2Rating, b.Glicko2Rating, result, now)
	w.Glicko2Rating = nw
	b.Glicko2Rating = nb
	w.History = appendTrimmed(w.History, HistoryEntry{Rating: nw.DisplayRating(), CreatedAt: now})
	b.History = appendTrimmed(b.History, HistoryEntry{Rating: nb.DisplayRating(), CreatedAt: now})

	obslog.L().Info("rating_update",
		zap.String("white_id", white.UserID),
		zap.String("black_id", black.UserID),
		zap.String("game_type", string(gt)),
		zap.String("result", string(result)),
		zap.Int("white_rating", nw.DisplayRating()),
		zap.Int("black_rating", nb.DisplayRating()),
	)
	return nw, nb
}

func appendTrimmed(h []HistoryEntry, e HistoryEntry) []HistoryEntry {
	h = append(h, e)
	if len(h) > HistoryLimit {
		h = h[len(h)-HistoryLimit:]
	}
	return h
}
