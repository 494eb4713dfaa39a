package match

import (
	"context"
	"strings"
	"time"

	chess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/singhDevs/Chezz-Backend/internal/clock"
	"github.com/singhDevs/Chezz-Backend/internal/game"
	"github.com/singhDevs/Chezz-Backend/internal/obslog"
	"github.com/singhDevs/Chezz-Backend/internal/store"
)

// Conn is the session's view of one player's connection. The gateway
// implements it over a websocket; tests use an in-memory fake.
type Conn interface {
	Send(ctx context.Context, v any) error
}

// RatingService settles a rated result. Invoked synchronously inside
// the terminal transition so ratings reflect every finished match.
type RatingService interface {
	ApplyResult(ctx context.Context, whiteID, blackID string, gt game.GameType, result game.Result, now time.Time) (whiteDisplay, blackDisplay int, err error)
}

// MoveRecorder is the short-term move log collaborator.
type MoveRecorder interface {
	Append(ctx context.Context, matchID, token string) error
	All(ctx context.Context, matchID string) ([]string, error)
	Clear(ctx context.Context, matchID string) error
}

// Archiver writes the final record of a finished match.
type Archiver interface {
	SaveMatch(ctx context.Context, m *store.ArchivedMatch) error
}

// Status of a session. ACTIVE is the sole live state; FINISHED is
// terminal and entered exactly once.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusFinished Status = "FINISHED"
)

// Deps are the session's injected collaborators. Any of them may be
// nil; the session degrades to in-memory play.
type Deps struct {
	MoveLog   MoveRecorder
	Ratings   RatingService
	Archive   Archiver
	OnFinish  func(matchID string)
	ClockPoll time.Duration
}

// Session owns one match. Every mutation is funneled through the
// single run goroutine draining events in arrival order: two
// connection readers and the clock ticker only ever post. Sequential
// processing is what makes "first terminal event wins" hold without
// locks around the board.
type Session struct {
	id       string
	mode     game.Mode
	gameType game.GameType
	duration time.Duration

	white game.Player
	black game.Player

	connWhite Conn
	connBlack Conn
	whiteGone bool
	blackGone bool

	oracle *chess.Game
	clocks *clock.Pair

	drawOffers map[string]struct{}
	status     Status
	startedAt  time.Time

	deps Deps

	events chan func()
	done   chan struct{}
}

// NewSession pairs two connections into a live match. White is the
// first-registered side. Start must be called to begin play.
func NewSession(id string, mode game.Mode, gt game.GameType, duration time.Duration, white, black game.Player, connWhite, connBlack Conn, deps Deps) *Session {
	s := &Session{
		id:         id,
		mode:       mode,
		gameType:   gt,
		duration:   duration,
		white:      white,
		black:      black,
		connWhite:  connWhite,
		connBlack:  connBlack,
		oracle:     chess.NewGame(),
		drawOffers: make(map[string]struct{}),
		status:     StatusActive,
		startedAt:  time.Now(),
		deps:       deps,
		events:     make(chan func(), 32),
		done:       make(chan struct{}),
	}
	s.clocks = clock.NewPair(duration, deps.ClockPoll, func(flagged game.Color) {
		s.post(func() { s.handleTimeout(flagged) })
	})
	return s
}

func (s *Session) ID() string            { return s.id }
func (s *Session) Mode() game.Mode       { return s.mode }
func (s *Session) Status() Status        { return s.status }
func (s *Session) Done() <-chan struct{} { return s.done }

// Start announces the match to both sides, arms white's clock and
// launches the owning goroutine.
func (s *Session) Start() {
	s.send(game.White, &game.StartGame{
		Type: game.MsgStartGame, Color: game.White, Opponent: s.black,
		Duration: s.duration.Milliseconds(), GameType: s.gameType,
	})
	s.send(game.Black, &game.StartGame{
		Type: game.MsgStartGame, Color: game.Black, Opponent: s.white,
		Duration: s.duration.Milliseconds(), GameType: s.gameType,
	})
	s.clocks.Start()
	go s.run()
	obslog.L().Info("match_start",
		zap.String("match_id", s.id),
		zap.String("mode", string(s.mode)),
		zap.String("game_type", string(s.gameType)),
		zap.String("white_id", s.white.ID),
		zap.String("black_id", s.black.ID),
		zap.Int64("duration_ms", s.duration.Milliseconds()),
	)
}

func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.events:
			fn()
		}
	}
}

// post queues fn for the owning goroutine. Events for a finished
// session are dropped.
func (s *Session) post(fn func()) {
	select {
	case <-s.done:
	case s.events <- fn:
	}
}

// HandleMove queues a proposed move from a connection.
func (s *Session) HandleMove(c Conn, mv *game.MovePayload) {
	if mv == nil {
		return
	}
	s.post(func() { s.applyMove(c, mv) })
}

// HandleResign queues a resignation.
func (s *Session) HandleResign(c Conn) {
	s.post(func() { s.applyResign(c) })
}

// HandleDrawOffer queues a draw offer.
func (s *Session) HandleDrawOffer(c Conn) {
	s.post(func() { s.applyDrawOffer(c) })
}

// HandleDisconnect marks a side's connection dead. The session is not
// cancelled: the absent side's clock keeps running, so an orphaned
// match always terminates by flag fall within the time control.
func (s *Session) HandleDisconnect(c Conn) {
	s.post(func() {
		switch {
		case c == s.connWhite:
			s.whiteGone = true
		case c == s.connBlack:
			s.blackGone = true
		}
		obslog.L().Info("match_peer_disconnected", zap.String("match_id", s.id))
	})
}

// HasConn reports whether c belongs to this session.
func (s *Session) HasConn(c Conn) bool {
	return c == s.connWhite || c == s.connBlack
}

func (s *Session) colorOf(c Conn) (game.Color, bool) {
	switch c {
	case s.connWhite:
		return game.White, true
	case s.connBlack:
		return game.Black, true
	}
	return "", false
}

func (s *Session) playerOf(color game.Color) game.Player {
	if color == game.White {
		return s.white
	}
	return s.black
}

func (s *Session) applyMove(c Conn, mv *game.MovePayload) {
	if s.status != StatusActive {
		return
	}
	color, ok := s.colorOf(c)
	if !ok {
		return
	}
	turn := colorFrom(s.oracle.Position().Turn())
	if color != turn {
		// Not an error: a late or raced move from the idle side must
		// not corrupt the board.
		obslog.L().Debug("match_move_out_of_turn",
			zap.String("match_id", s.id),
			zap.String("from_color", string(color)),
		)
		return
	}

	uci := strings.ToLower(strings.TrimSpace(mv.From + mv.To + mv.Promotion))
	if err := s.oracle.PushNotationMove(uci, chess.UCINotation{}, nil); err != nil {
		// Rejection is acknowledged to the sender only; no state
		// change, nothing broadcast.
		s.send(color, &game.ErrorFrame{Type: game.MsgError, Message: "illegal move"})
		obslog.L().Debug("match_move_illegal",
			zap.String("match_id", s.id),
			zap.String("uci", uci),
			zap.Error(err),
		)
		return
	}

	s.recordMove(mv)
	s.clocks.SwitchActive()

	if out, terminal := s.terminalOutcome(); terminal {
		s.finish(out)
		return
	}

	whiteMs, blackMs := s.clocks.RemainingMs()
	bc := &game.MoveBroadcast{
		Type:        game.MsgMove,
		Move:        mv,
		Board:       s.oracle.FEN(),
		Turn:        colorFrom(s.oracle.Position().Turn()),
		WhiteTimeMs: whiteMs,
		BlackTimeMs: blackMs,
	}
	s.send(game.White, bc)
	s.send(game.Black, bc)
	obslog.L().Info("match_move",
		zap.String("match_id", s.id),
		zap.String("color", string(color)),
		zap.String("uci", uci),
	)
}

func (s *Session) applyResign(c Conn) {
	if s.status != StatusActive {
		return
	}
	color, ok := s.colorOf(c)
	if !ok {
		return
	}
	winner := s.playerOf(color.Opponent())
	obslog.L().Info("match_resign",
		zap.String("match_id", s.id),
		zap.String("resigner_id", s.playerOf(color).ID),
	)
	s.finish(game.Outcome{
		Result:        resultFor(color.Opponent()),
		Cause:         game.CauseResignation,
		WinningUserID: winner.ID,
	})
}

func (s *Session) applyDrawOffer(c Conn) {
	if s.status != StatusActive {
		return
	}
	color, ok := s.colorOf(c)
	if !ok {
		return
	}
	offerer := s.playerOf(color)
	if _, dup := s.drawOffers[offerer.ID]; dup {
		// Offering twice is idempotent; the set is keyed by identity.
		return
	}
	s.drawOffers[offerer.ID] = struct{}{}
	if len(s.drawOffers) < 2 {
		s.send(color.Opponent(), &game.DrawRequested{
			Type:    game.MsgDrawRequested,
			Message: "DRAW requested",
		})
		obslog.L().Info("match_draw_offer",
			zap.String("match_id", s.id),
			zap.String("offerer_id", offerer.ID),
		)
		return
	}
	// Second distinct participant: agreement.
	s.finish(game.Outcome{
		Result:        game.ResultDraw,
		Cause:         game.CauseDrawAgreement,
		WinningUserID: game.NoWinner,
	})
}

func (s *Session) handleTimeout(flagged game.Color) {
	if s.status != StatusActive {
		return
	}
	winner := s.playerOf(flagged.Opponent())
	obslog.L().Info("match_flag_fall",
		zap.String("match_id", s.id),
		zap.String("flagged_color", string(flagged)),
	)
	s.finish(game.Outcome{
		Result:        resultFor(flagged.Opponent()),
		Cause:         game.CauseTimeout,
		WinningUserID: winner.ID,
	})
}

// finish performs the single ACTIVE → FINISHED transition: clocks stop,
// the session deregisters, a rated result settles ratings
// synchronously, the final record is archived best-effort, both sides
// get GAME_OVER. Runs on the owning goroutine only.
func (s *Session) finish(out game.Outcome) {
	if s.status != StatusActive {
		return
	}
	s.status = StatusFinished
	s.clocks.StopAll()
	if s.deps.OnFinish != nil {
		s.deps.OnFinish(s.id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	whiteRating, blackRating := 0, 0
	if s.mode == game.ModeRated && s.deps.Ratings != nil {
		wr, br, err := s.deps.Ratings.ApplyResult(ctx, s.white.ID, s.black.ID, s.gameType, out.Result, time.Now())
		if err != nil {
			// Rating loss is accepted over blocking the players.
			obslog.L().Error("match_rating_error", zap.String("match_id", s.id), zap.Error(err))
		} else {
			whiteRating, blackRating = wr, br
		}
	}

	s.archive(ctx, out)

	board := s.oracle.FEN()
	s.send(game.White, &game.GameOver{
		Type: game.MsgGameOver, ID: s.id, Board: board,
		Result: out.Result, Cause: out.Cause, WinningUserID: out.WinningUserID,
		UpdatedRating: whiteRating,
	})
	s.send(game.Black, &game.GameOver{
		Type: game.MsgGameOver, ID: s.id, Board: board,
		Result: out.Result, Cause: out.Cause, WinningUserID: out.WinningUserID,
		UpdatedRating: blackRating,
	})

	obslog.L().Info("game_over",
		zap.String("match_id", s.id),
		zap.String("result", string(out.Result)),
		zap.String("cause", string(out.Cause)),
		zap.String("winning_user", out.WinningUserID),
	)
	close(s.done)
}

// archive writes the move list and outcome. Failures are logged and
// never surfaced to players.
func (s *Session) archive(ctx context.Context, out game.Outcome) {
	if s.deps.Archive == nil {
		return
	}
	var moves []string
	if s.deps.MoveLog != nil {
		var err error
		moves, err = s.deps.MoveLog.All(ctx, s.id)
		if err != nil {
			obslog.L().Error("match_movelog_read_error", zap.String("match_id", s.id), zap.Error(err))
		}
	}
	rec := &store.ArchivedMatch{
		MatchID:   s.id,
		WhiteID:   s.white.ID,
		BlackID:   s.black.ID,
		Moves:     moves,
		Outcome:   out,
		GameType:  s.gameType,
		GameMode:  s.mode,
		Duration:  s.duration,
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
	}
	if err := s.deps.Archive.SaveMatch(ctx, rec); err != nil {
		obslog.L().Error("match_archive_error", zap.String("match_id", s.id), zap.Error(err))
		return
	}
	if s.deps.MoveLog != nil {
		_ = s.deps.MoveLog.Clear(ctx, s.id)
	}
}

// recordMove appends the move token to the short-term log, best effort.
func (s *Session) recordMove(mv *game.MovePayload) {
	if s.deps.MoveLog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.deps.MoveLog.Append(ctx, s.id, moveToken(mv)); err != nil {
		obslog.L().Warn("match_movelog_append_error", zap.String("match_id", s.id), zap.Error(err))
	}
}

// moveToken renders one archived move. Castles are stored in algebraic
// form; everything else as piece+from+to, promotions suffixed.
func moveToken(mv *game.MovePayload) string {
	if mv.QueenSideCastle {
		return "O-O-O"
	}
	if mv.KingSideCastle {
		return "O-O"
	}
	// Clients that omit the flags still castle by moving the king two
	// files from its home square.
	if strings.EqualFold(mv.Piece, "k") {
		switch strings.ToLower(mv.From + mv.To) {
		case "e1g1", "e8g8":
			return "O-O"
		case "e1c1", "e8c8":
			return "O-O-O"
		}
	}
	token := mv.Piece + mv.From + mv.To
	if mv.Promotion != "" {
		token += "=" + strings.ToUpper(mv.Promotion)
	}
	return token
}

func (s *Session) send(color game.Color, v any) {
	c := s.connWhite
	gone := s.whiteGone
	if color == game.Black {
		c = s.connBlack
		gone = s.blackGone
	}
	if c == nil || gone {
		return
	}
	if err := c.Send(context.Background(), v); err != nil {
		obslog.L().Warn("match_send_error",
			zap.String("match_id", s.id),
			zap.String("color", string(color)),
			zap.Error(err),
		)
	}
}

// terminalOutcome asks the oracle whether the last move ended the
// game, mapping its method to a cause in priority order: checkmate,
// stalemate, insufficient material, then the remaining draw rules.
func (s *Session) terminalOutcome() (game.Outcome, bool) {
	oc := s.oracle.Outcome()
	if oc == chess.NoOutcome {
		return game.Outcome{}, false
	}
	var out game.Outcome
	switch oc {
	case chess.WhiteWon:
		out.Result = game.ResultWhite
		out.WinningUserID = s.white.ID
	case chess.BlackWon:
		out.Result = game.ResultBlack
		out.WinningUserID = s.black.ID
	default:
		out.Result = game.ResultDraw
		out.WinningUserID = game.NoWinner
	}
	switch s.oracle.Method() {
	case chess.Checkmate:
		out.Cause = game.CauseCheckmate
	case chess.Stalemate:
		out.Cause = game.CauseStalemate
	case chess.InsufficientMaterial:
		out.Cause = game.CauseInsufficientMaterial
	default:
		out.Cause = game.CauseDrawRule
	}
	return out, true
}

func resultFor(c game.Color) game.Result {
	if c == game.White {
		return game.ResultWhite
	}
	return game.ResultBlack
}

func colorFrom(c chess.Color) game.Color {
	if c == chess.White {
		return game.White
	}
	return game.Black
}
