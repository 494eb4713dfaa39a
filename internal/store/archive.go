package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/singhDevs/Chezz-Backend/internal/game"
	"github.com/singhDevs/Chezz-Backend/internal/rating"
)

// ArchivedMatch is the record written once per finished match.
type ArchivedMatch struct {
	MatchID   string
	WhiteID   string
	BlackID   string
	Moves     []string // play-order tokens, space-joined on write
	Outcome   game.Outcome
	GameType  game.GameType
	GameMode  game.Mode
	Duration  time.Duration
	StartedAt time.Time
	EndedAt   time.Time
}

// Archive persists finished matches and rating records to Postgres.
// Writes are best effort from the session's point of view; callers log
// failures and move on.
type Archive struct {
	db *sql.DB
}

func NewArchive(databaseURL string) (*Archive, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// SaveMatch upserts the final record for one match.
func (a *Archive) SaveMatch(ctx context.Context, m *ArchivedMatch) error {
	if a == nil || a.db == nil || m == nil {
		return nil
	}
	const q = `INSERT INTO games (
	    match_id, white_id, black_id, moves,
	    result, winning_user, termination,
	    game_type, game_mode, duration_ms, started_at, ended_at
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
	  ) ON CONFLICT (match_id) DO UPDATE SET
	    moves=EXCLUDED.moves,
	    result=EXCLUDED.result,
	    winning_user=EXCLUDED.winning_user,
	    termination=EXCLUDED.termination,
	    ended_at=EXCLUDED.ended_at`

	_, err := a.db.ExecContext(ctx, q,
		m.MatchID,
		m.WhiteID, m.BlackID,
		strings.Join(m.Moves, " "),
		string(m.Outcome.Result), m.Outcome.WinningUserID, string(m.Outcome.Cause),
		string(m.GameType), string(m.GameMode), m.Duration.Milliseconds(),
		m.StartedAt, m.EndedAt,
	)
	if err != nil {
		return err
	}
	played := m.EndedAt.Sub(m.StartedAt)
	if err := a.bumpStats(ctx, m.WhiteID, m.Outcome, played); err != nil {
		return err
	}
	return a.bumpStats(ctx, m.BlackID, m.Outcome, played)
}

// bumpStats rolls one finished match into a user's lifetime counters.
func (a *Archive) bumpStats(ctx context.Context, userID string, out game.Outcome, played time.Duration) error {
	const q = `INSERT INTO user_stats (
	    user_id, total_games, wins, losses, draws, total_time_played_ms
	  ) VALUES (
	    $1,1,$2,$3,$4,$5
	  ) ON CONFLICT (user_id) DO UPDATE SET
	    total_games=user_stats.total_games+1,
	    wins=user_stats.wins+EXCLUDED.wins,
	    losses=user_stats.losses+EXCLUDED.losses,
	    draws=user_stats.draws+EXCLUDED.draws,
	    total_time_played_ms=user_stats.total_time_played_ms+EXCLUDED.total_time_played_ms`

	wins, losses, draws := statsDelta(out, userID)
	_, err := a.db.ExecContext(ctx, q, userID, wins, losses, draws, played.Milliseconds())
	return err
}

// statsDelta maps one outcome onto a single user's counters.
func statsDelta(out game.Outcome, userID string) (wins, losses, draws int) {
	switch {
	case out.IsDraw():
		return 0, 0, 1
	case out.WinningUserID == userID:
		return 1, 0, 0
	default:
		return 0, 1, 0
	}
}

// LoadRating fetches a user's rating record, creating the default row
// on first contact.
func (a *Archive) LoadRating(ctx context.Context, userID string) (*rating.Record, error) {
	const q = `SELECT
	    bullet_rating, bullet_rd, bullet_volatility, last_bullet_game, bullet_history,
	    blitz_rating, blitz_rd, blitz_volatility, last_blitz_game, blitz_history,
	    rapid_rating, rapid_rd, rapid_volatility, last_rapid_game, rapid_history
	  FROM ratings WHERE user_id = $1`

	rec := rating.NewRecord(userID)
	var (
		bulletHist, blitzHist, rapidHist []byte
		lastBullet, lastBlitz, lastRapid sql.NullTime
	)
	err := a.db.QueryRowContext(ctx, q, userID).Scan(
		&rec.Bullet.Rating, &rec.Bullet.RD, &rec.Bullet.Volatility, &lastBullet, &bulletHist,
		&rec.Blitz.Rating, &rec.Blitz.RD, &rec.Blitz.Volatility, &lastBlitz, &blitzHist,
		&rec.Rapid.Rating, &rec.Rapid.RD, &rec.Rapid.Volatility, &lastRapid, &rapidHist,
	)
	if err == sql.ErrNoRows {
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rating %s: %w", userID, err)
	}
	if lastBullet.Valid {
		rec.Bullet.LastGame = lastBullet.Time
	}
	if lastBlitz.Valid {
		rec.Blitz.LastGame = lastBlitz.Time
	}
	if lastRapid.Valid {
		rec.Rapid.LastGame = lastRapid.Time
	}
	if err := decodeHistory(bulletHist, &rec.Bullet.History); err != nil {
		return nil, fmt.Errorf("decode bullet history %s: %w", userID, err)
	}
	if err := decodeHistory(blitzHist, &rec.Blitz.History); err != nil {
		return nil, fmt.Errorf("decode blitz history %s: %w", userID, err)
	}
	if err := decodeHistory(rapidHist, &rec.Rapid.History); err != nil {
		return nil, fmt.Errorf("decode rapid history %s: %w", userID, err)
	}
	return rec, nil
}

// SaveRating upserts the full rating record for one user.
func (a *Archive) SaveRating(ctx context.Context, rec *rating.Record) error {
	if a == nil || a.db == nil || rec == nil {
		return nil
	}
	bulletHist, err := json.Marshal(rec.Bullet.History)
	if err != nil {
		return fmt.Errorf("marshal bullet history: %w", err)
	}
	blitzHist, err := json.Marshal(rec.Blitz.History)
	if err != nil {
		return fmt.Errorf("marshal blitz history: %w", err)
	}
	rapidHist, err := json.Marshal(rec.Rapid.History)
	if err != nil {
		return fmt.Errorf("marshal rapid history: %w", err)
	}

	const q = `INSERT INTO ratings (
	    user_id,
	    bullet_rating, bullet_rd, bullet_volatility, last_bullet_game, bullet_history,
	    blitz_rating, blitz_rd, blitz_volatility, last_blitz_game, blitz_history,
	    rapid_rating, rapid_rd, rapid_volatility, last_rapid_game, rapid_history
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6::jsonb,$7,$8,$9,$10,$11::jsonb,$12,$13,$14,$15,$16::jsonb
	  ) ON CONFLICT (user_id) DO UPDATE SET
	    bullet_rating=EXCLUDED.bullet_rating,
	    bullet_rd=EXCLUDED.bullet_rd,
	    bullet_volatility=EXCLUDED.bullet_volatility,
	    last_bullet_game=EXCLUDED.last_bullet_game,
	    bullet_history=EXCLUDED.bullet_history,
	    blitz_rating=EXCLUDED.blitz_rating,
	    blitz_rd=EXCLUDED.blitz_rd,
	    blitz_volatility=EXCLUDED.blitz_volatility,
	    last_blitz_game=EXCLUDED.last_blitz_game,
	    blitz_history=EXCLUDED.blitz_history,
	    rapid_rating=EXCLUDED.rapid_rating,
	    rapid_rd=EXCLUDED.rapid_rd,
	    rapid_volatility=EXCLUDED.rapid_volatility,
	    last_rapid_game=EXCLUDED.last_rapid_game,
	    rapid_history=EXCLUDED.rapid_history`

	_, err = a.db.ExecContext(ctx, q,
		rec.UserID,
		rec.Bullet.Rating, rec.Bullet.RD, rec.Bullet.Volatility, nullTime(rec.Bullet.LastGame), string(bulletHist),
		rec.Blitz.Rating, rec.Blitz.RD, rec.Blitz.Volatility, nullTime(rec.Blitz.LastGame), string(blitzHist),
		rec.Rapid.Rating, rec.Rapid.RD, rec.Rapid.Volatility, nullTime(rec.Rapid.LastGame), string(rapidHist),
	)
	return err
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func decodeHistory(raw []byte, dst *[]rating.HistoryEntry) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
