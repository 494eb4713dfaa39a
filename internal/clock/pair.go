package clock

import (
	"sync"
	"time"

	"github.com/singhDevs/Chezz-Backend/internal/game"
)

// TimeoutFunc receives the color whose flag fell. It is invoked from
// the pair's ticking goroutine; implementations must not block.
type TimeoutFunc func(flagged game.Color)

// Pair owns the two clocks of one match. Exactly one clock runs while
// the match is live; SwitchActive performs the handoff as a single step
// under the pair lock so move processing never observes both or neither
// running.
type Pair struct {
	mu      sync.Mutex
	white   *Clock
	black   *Clock
	active  game.Color
	stopped bool

	pollEvery time.Duration
	onTimeout TimeoutFunc

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPair builds both clocks from the same budget. White is the active
// side once Start is called, matching the opening move.
func NewPair(budget, pollEvery time.Duration, onTimeout TimeoutFunc) *Pair {
	if pollEvery <= 0 {
		pollEvery = time.Second
	}
	return &Pair{
		white:     New(budget),
		black:     New(budget),
		active:    game.White,
		pollEvery: pollEvery,
		onTimeout: onTimeout,
		stopCh:    make(chan struct{}),
	}
}

// Start arms white's clock and launches the ticking goroutine.
func (p *Pair) Start() {
	p.mu.Lock()
	p.white.Start()
	p.mu.Unlock()
	go p.tick()
}

// SwitchActive pauses the running side and starts the other.
func (p *Pair) SwitchActive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	cur, next := p.white, p.black
	if p.active == game.Black {
		cur, next = p.black, p.white
	}
	cur.Pause()
	next.Start()
	p.active = p.active.Opponent()
}

// StopAll halts both clocks and the ticking goroutine. Idempotent.
func (p *Pair) StopAll() {
	p.mu.Lock()
	p.stopped = true
	p.white.Pause()
	p.black.Pause()
	p.mu.Unlock()
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Active reports which color's clock is currently running.
func (p *Pair) Active() game.Color {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// RemainingMs returns both sides' remaining time in milliseconds.
func (p *Pair) RemainingMs() (whiteMs, blackMs int64) {
	return p.white.Remaining().Milliseconds(), p.black.Remaining().Milliseconds()
}

func (p *Pair) tick() {
	t := time.NewTicker(p.pollEvery)
	defer t.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case now := <-t.C:
			p.mu.Lock()
			if p.stopped {
				p.mu.Unlock()
				return
			}
			flagged := game.Color("")
			if p.white.Poll(now) {
				flagged = game.White
			} else if p.black.Poll(now) {
				flagged = game.Black
			}
			cb := p.onTimeout
			p.mu.Unlock()
			if flagged != "" && cb != nil {
				cb(flagged)
			}
		}
	}
}
