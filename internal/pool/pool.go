package pool

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/singhDevs/Chezz-Backend/internal/game"
	"github.com/singhDevs/Chezz-Backend/internal/obslog"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	// ErrSelfMatch rejects a user trying to pair with their own
	// pending request.
	ErrSelfMatch = staticErr("user already waiting under this key")
)

// Key identifies one waiting room. Requests only pair inside a key.
type Key struct {
	Mode     game.Mode
	GameType game.GameType
	Duration time.Duration
}

// MatchRequest is a single-sided ask to play. It is owned exclusively
// by the pool while waiting; once paired or cancelled the pool forgets
// it.
type MatchRequest struct {
	ID        string
	UserID    string
	Username  string
	Mode      game.Mode
	GameType  game.GameType
	Duration  time.Duration
	CreatedAt time.Time
}

func (r *MatchRequest) Key() Key {
	return Key{Mode: r.Mode, GameType: r.GameType, Duration: r.Duration}
}

// NewRequest allocates a request with a fresh id.
func NewRequest(userID, username string, mode game.Mode, gt game.GameType, duration time.Duration) *MatchRequest {
	return &MatchRequest{
		ID:        uuid.NewString(),
		UserID:    userID,
		Username:  username,
		Mode:      mode,
		GameType:  gt,
		Duration:  duration,
		CreatedAt: time.Now(),
	}
}

// Status of a Submit call.
type Status int

const (
	Waiting Status = iota
	Paired
)

// Result reports what Submit did. When Status is Paired, Opponent is
// the previously waiting request, removed from the pool; the caller
// constructs the match session.
type Result struct {
	Status   Status
	Opponent *MatchRequest
}

// Pool is the keyed waiting room. Each key holds its own bucket with
// its own lock, so submissions under different time controls never
// block each other.
type Pool struct {
	mu      sync.RWMutex
	buckets map[Key]*bucket
}

type bucket struct {
	mu      sync.Mutex
	waiting []*MatchRequest // FIFO, oldest first
}

func New() *Pool {
	return &Pool{buckets: make(map[Key]*bucket)}
}

func (p *Pool) bucketFor(k Key) *bucket {
	p.mu.RLock()
	b := p.buckets[k]
	p.mu.RUnlock()
	if b != nil {
		return b
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if b = p.buckets[k]; b == nil {
		b = &bucket{}
		p.buckets[k] = b
	}
	return b
}

// Submit stores req if nobody compatible is waiting, or pairs it with
// the oldest waiting request under the same key. A user may not pair
// against their own pending request.
func (p *Pool) Submit(req *MatchRequest) (Result, error) {
	b := p.bucketFor(req.Key())
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range b.waiting {
		if w.UserID == req.UserID {
			obslog.L().Warn("pool_self_match_rejected",
				zap.String("user_id", req.UserID),
				zap.String("request_id", req.ID),
			)
			return Result{}, ErrSelfMatch
		}
	}

	if len(b.waiting) > 0 {
		// Oldest still-waiting request wins.
		w := b.waiting[0]
		b.waiting = b.waiting[1:]
		obslog.L().Info("pool_paired",
			zap.String("request_id", req.ID),
			zap.String("opponent_request_id", w.ID),
			zap.String("user_id", req.UserID),
			zap.String("opponent_id", w.UserID),
		)
		return Result{Status: Paired, Opponent: w}, nil
	}

	b.waiting = append(b.waiting, req)
	obslog.L().Info("pool_waiting",
		zap.String("request_id", req.ID),
		zap.String("user_id", req.UserID),
		zap.String("mode", string(req.Mode)),
		zap.String("game_type", string(req.GameType)),
		zap.Int64("duration_ms", req.Duration.Milliseconds()),
	)
	return Result{Status: Waiting}, nil
}

// Cancel removes a still-waiting request, the disconnect-before-pairing
// path. Cancelling an id the pool no longer holds is a no-op.
func (p *Pool) Cancel(requestID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, b := range p.buckets {
		b.mu.Lock()
		for i, w := range b.waiting {
			if w.ID == requestID {
				b.waiting = append(b.waiting[:i], b.waiting[i+1:]...)
				b.mu.Unlock()
				obslog.L().Info("pool_cancel", zap.String("request_id", requestID))
				return true
			}
		}
		b.mu.Unlock()
	}
	return false
}

// Lookup returns the waiting request with the given id, if any.
func (p *Pool) Lookup(requestID string) *MatchRequest {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, b := range p.buckets {
		b.mu.Lock()
		for _, w := range b.waiting {
			if w.ID == requestID {
				b.mu.Unlock()
				return w
			}
		}
		b.mu.Unlock()
	}
	return nil
}
