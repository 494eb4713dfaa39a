package rating

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/singhDevs/Chezz-Backend/internal/game"
	"github.com/singhDevs/Chezz-Backend/internal/obslog"
)

// Store persists rating records. *store.Archive satisfies it.
type Store interface {
	LoadRating(ctx context.Context, userID string) (*Record, error)
	SaveRating(ctx context.Context, rec *Record) error
}

// Service is the rating pipeline entry point a finished rated match
// invokes: load both records, run the paired update, persist, return
// the display ratings for the terminal broadcast.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) ApplyResult(ctx context.Context, whiteID, blackID string, gt game.GameType, result game.Result, now time.Time) (int, int, error) {
	white, err := s.store.LoadRating(ctx, whiteID)
	if err != nil {
		return 0, 0, fmt.Errorf("load white rating: %w", err)
	}
	black, err := s.store.LoadRating(ctx, blackID)
	if err != nil {
		return 0, 0, fmt.Errorf("load black rating: %w", err)
	}

	nw, nb := Apply(white, black, gt, result, now)

	// Persistence is deferred to the store; a failed write loses one
	// update but must not fail the match.
	if err := s.store.SaveRating(ctx, white); err != nil {
		obslog.L().Error("rating_persist_error", zap.String("user_id", whiteID), zap.Error(err))
	}
	if err := s.store.SaveRating(ctx, black); err != nil {
		obslog.L().Error("rating_persist_error", zap.String("user_id", blackID), zap.Error(err))
	}
	return nw.DisplayRating(), nb.DisplayRating(), nil
}
