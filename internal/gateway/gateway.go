package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/singhDevs/Chezz-Backend/internal/game"
	"github.com/singhDevs/Chezz-Backend/internal/match"
	"github.com/singhDevs/Chezz-Backend/internal/obslog"
	"github.com/singhDevs/Chezz-Backend/internal/pool"
)

var (
	// ErrUnknownGame means the gameId on a socket handshake matches no
	// waiting request and no forming match.
	ErrUnknownGame = staticErr("unknown game id")
)

// defaultPendingExpiry bounds how long a paired match may wait for
// both sockets before its capacity is reclaimed.
const defaultPendingExpiry = time.Minute

// pendingMatch is a paired match waiting for both sockets. The pool
// has already forgotten both requests; the gateway owns the handoff.
type pendingMatch struct {
	id       string
	mode     game.Mode
	gameType game.GameType
	duration time.Duration

	white game.Player
	black game.Player

	whiteConn *wsConn
	blackConn *wsConn
}

// Gateway is the connection edge: HTTP join endpoint, websocket
// upgrades, the socket-to-session index, and the presence broadcast.
type Gateway struct {
	pool       *pool.Pool
	verify     TokenVerifier
	deps       match.Deps
	maxMatches int
	pendingTTL time.Duration

	mu       sync.RWMutex
	online   map[*wsConn]struct{}
	bySocket map[*wsConn]*match.Session
	byMatch  map[string]*match.Session
	pending  map[string]*pendingMatch
	waiting  map[string]*wsConn
	joined   map[*wsConn]string
}

// New wires a gateway over the pool and the session collaborators.
// deps.OnFinish is chained with the gateway's own deregistration.
func New(p *pool.Pool, verify TokenVerifier, deps match.Deps, maxMatches int) *Gateway {
	g := &Gateway{
		pool:       p,
		verify:     verify,
		maxMatches: maxMatches,
		pendingTTL: defaultPendingExpiry,
		online:     make(map[*wsConn]struct{}),
		bySocket:   make(map[*wsConn]*match.Session),
		byMatch:    make(map[string]*match.Session),
		pending:    make(map[string]*pendingMatch),
		waiting:    make(map[string]*wsConn),
		joined:     make(map[*wsConn]string),
	}
	chained := deps.OnFinish
	deps.OnFinish = func(matchID string) {
		g.dropMatch(matchID)
		if chained != nil {
			chained(matchID)
		}
	}
	g.deps = deps
	return g
}

// Router exposes the HTTP surface.
func (g *Gateway) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/game/join", g.handleJoin).Methods(http.MethodPost)
	r.HandleFunc("/game/ws", g.handleWS).Methods(http.MethodGet)
	return r
}

type joinRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	GameMode string `json:"gameMode"`
	GameType string `json:"gameType"`
	Duration int64  `json:"duration"`
}

type joinResponse struct {
	GameID string `json:"gameId"`
	WSURL  string `json:"wsUrl"`
}

func (g *Gateway) handleJoin(w http.ResponseWriter, r *http.Request) {
	var body joinRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpError(w, http.StatusBadRequest, "malformed join request")
		return
	}
	mode, ok := game.ParseMode(body.GameMode)
	if !ok {
		httpError(w, http.StatusBadRequest, "unknown game mode")
		return
	}
	gt, ok := game.ParseGameType(body.GameType)
	if !ok {
		httpError(w, http.StatusBadRequest, "unknown game type")
		return
	}
	if body.UserID == "" || body.Duration <= 0 {
		httpError(w, http.StatusBadRequest, "userId and duration are required")
		return
	}
	if g.matchCount() >= g.maxMatches {
		httpError(w, http.StatusServiceUnavailable, "server at capacity")
		return
	}

	req := pool.NewRequest(body.UserID, body.Username, mode, gt, time.Duration(body.Duration)*time.Millisecond)
	res, err := g.pool.Submit(req)
	if err != nil {
		httpError(w, http.StatusConflict, err.Error())
		return
	}

	gameID := req.ID
	if res.Status == pool.Paired {
		// The earlier request's id becomes the match id; its owner was
		// already told to connect with it.
		gameID = res.Opponent.ID
		g.registerPending(res.Opponent, req)
	}

	writeJSON(w, http.StatusOK, joinResponse{
		GameID: gameID,
		WSURL:  "/game/ws?gameId=" + gameID,
	})
}

// registerPending turns two pool requests into a forming match. The
// first-submitted request plays white. A socket the waiting player
// already opened is carried over.
func (g *Gateway) registerPending(first, second *pool.MatchRequest) {
	pm := &pendingMatch{
		id:       first.ID,
		mode:     first.Mode,
		gameType: first.GameType,
		duration: first.Duration,
		white:    game.Player{ID: first.UserID, Username: first.Username},
		black:    game.Player{ID: second.UserID, Username: second.Username},
	}
	g.mu.Lock()
	if c, ok := g.waiting[first.ID]; ok {
		pm.whiteConn = c
		delete(g.waiting, first.ID)
	}
	g.pending[pm.id] = pm
	ttl := g.pendingTTL
	start := pm.whiteConn != nil && pm.blackConn != nil
	g.mu.Unlock()
	time.AfterFunc(ttl, func() { g.expirePending(pm.id) })
	if start {
		g.startMatch(pm)
	}
}

// expirePending reclaims a forming match whose sockets never both
// arrived. Any side that did connect is told and closed.
func (g *Gateway) expirePending(matchID string) {
	g.mu.Lock()
	pm, ok := g.pending[matchID]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.pending, matchID)
	conns := make([]*wsConn, 0, 2)
	for _, c := range []*wsConn{pm.whiteConn, pm.blackConn} {
		if c != nil {
			conns = append(conns, c)
		}
	}
	g.mu.Unlock()
	for _, c := range conns {
		g.rejectFrame(context.Background(), c, "opponent never connected")
		c.Close(websocket.StatusNormalClosure, "match expired")
	}
	obslog.L().Info("pending_match_expired", zap.String("match_id", matchID))
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}
	conn := newWSConn(c)

	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	userID, err := g.verify(token)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "authentication failed")
		return
	}

	// A gameId in the query joins at handshake; otherwise the client
	// sends a JOIN frame once connected.
	if gameID := r.URL.Query().Get("gameId"); gameID != "" {
		if err := g.attach(conn, userID, gameID); err != nil {
			conn.Close(websocket.StatusPolicyViolation, err.Error())
			return
		}
	}

	g.addOnline(conn)
	obslog.L().Info("ws_connected", zap.String("user_id", userID))

	g.readLoop(r.Context(), conn, c, userID)

	g.removeOnline(conn)
	g.detach(conn)
	obslog.L().Info("ws_disconnected", zap.String("user_id", userID))
}

// attach binds a socket to the waiting request or forming match named
// by gameID, starting the session once both sides are present.
func (g *Gateway) attach(conn *wsConn, userID, gameID string) error {
	g.mu.Lock()
	if pm, ok := g.pending[gameID]; ok {
		switch userID {
		case pm.white.ID:
			pm.whiteConn = conn
		case pm.black.ID:
			pm.blackConn = conn
		default:
			g.mu.Unlock()
			return ErrUnknownGame
		}
		g.joined[conn] = gameID
		start := pm.whiteConn != nil && pm.blackConn != nil
		g.mu.Unlock()
		if start {
			g.startMatch(pm)
		}
		return nil
	}
	g.mu.Unlock()

	if req := g.pool.Lookup(gameID); req != nil {
		if req.UserID != userID {
			return ErrUnknownGame
		}
		g.mu.Lock()
		g.waiting[gameID] = conn
		g.joined[conn] = gameID
		g.mu.Unlock()
		return nil
	}

	// Already-started matches accept a socket only if it is one the
	// session was built with, which this one is not.
	return ErrUnknownGame
}

func (g *Gateway) startMatch(pm *pendingMatch) {
	g.mu.Lock()
	if _, ok := g.pending[pm.id]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.pending, pm.id)
	s := match.NewSession(pm.id, pm.mode, pm.gameType, pm.duration,
		pm.white, pm.black, pm.whiteConn, pm.blackConn, g.deps)
	g.byMatch[pm.id] = s
	g.bySocket[pm.whiteConn] = s
	g.bySocket[pm.blackConn] = s
	g.mu.Unlock()
	s.Start()
}

// readLoop decodes inbound envelopes and dispatches them to the
// socket's session. Malformed frames get at most one error frame; a
// read error ends the connection.
func (g *Gateway) readLoop(ctx context.Context, conn *wsConn, c *websocket.Conn, userID string) {
	for {
		var env game.Envelope
		if err := wsjson.Read(ctx, c, &env); err != nil {
			return
		}
		if env.Type == game.MsgJoin {
			var body struct {
				GameID string `json:"gameId"`
			}
			if len(env.Payload) > 0 {
				_ = json.Unmarshal(env.Payload, &body)
			}
			if err := g.attach(conn, userID, body.GameID); err != nil {
				g.rejectFrame(ctx, conn, err.Error())
			}
			continue
		}
		s := g.sessionOf(conn)
		if s == nil {
			continue
		}
		switch env.Type {
		case game.MsgMove:
			mv := env.Move
			if mv == nil && len(env.Payload) > 0 {
				mv = new(game.MovePayload)
				if err := json.Unmarshal(env.Payload, mv); err != nil {
					g.rejectFrame(ctx, conn, "malformed move")
					continue
				}
			}
			if mv == nil {
				g.rejectFrame(ctx, conn, "malformed move")
				continue
			}
			if mv.Piece == "" {
				mv.Piece = env.Piece
			}
			s.HandleMove(conn, mv)
		case game.MsgResign:
			s.HandleResign(conn)
		case game.MsgDraw:
			s.HandleDrawOffer(conn)
		default:
			obslog.L().Debug("ws_unknown_frame",
				zap.String("user_id", userID),
				zap.String("frame_type", env.Type))
		}
	}
}

func (g *Gateway) rejectFrame(ctx context.Context, conn *wsConn, msg string) {
	_ = conn.Send(ctx, game.ErrorFrame{Type: game.MsgError, Message: msg})
}

// detach undoes whatever attach set up for a socket that is gone. A
// waiting request is cancelled; a live session is told so the absent
// side's clock decides the match.
func (g *Gateway) detach(conn *wsConn) {
	g.mu.Lock()
	gameID := g.joined[conn]
	delete(g.joined, conn)
	if c, ok := g.waiting[gameID]; ok && c == conn {
		delete(g.waiting, gameID)
		g.mu.Unlock()
		g.pool.Cancel(gameID)
		return
	}
	if pm, ok := g.pending[gameID]; ok {
		if pm.whiteConn == conn {
			pm.whiteConn = nil
		}
		if pm.blackConn == conn {
			pm.blackConn = nil
		}
		// A forming match with no sockets left must not keep holding
		// a capacity slot.
		if pm.whiteConn == nil && pm.blackConn == nil {
			delete(g.pending, gameID)
			obslog.L().Info("pending_match_abandoned", zap.String("match_id", gameID))
		}
	}
	s := g.bySocket[conn]
	delete(g.bySocket, conn)
	g.mu.Unlock()
	if s != nil {
		s.HandleDisconnect(conn)
	}
}

func (g *Gateway) sessionOf(conn *wsConn) *match.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.bySocket[conn]
}

// dropMatch clears the index entries of a finished match. Invoked via
// Deps.OnFinish from inside the session's own goroutine.
func (g *Gateway) dropMatch(matchID string) {
	g.mu.Lock()
	s := g.byMatch[matchID]
	delete(g.byMatch, matchID)
	if s != nil {
		for c, sess := range g.bySocket {
			if sess == s {
				delete(g.bySocket, c)
			}
		}
	}
	g.mu.Unlock()
}

func (g *Gateway) matchCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byMatch) + len(g.pending)
}

// addOnline registers a socket for presence and broadcasts the new
// count to every connected socket, the newcomer included.
func (g *Gateway) addOnline(conn *wsConn) {
	g.mu.Lock()
	g.online[conn] = struct{}{}
	g.mu.Unlock()
	g.broadcastOnline()
}

func (g *Gateway) removeOnline(conn *wsConn) {
	g.mu.Lock()
	delete(g.online, conn)
	g.mu.Unlock()
	g.broadcastOnline()
}

func (g *Gateway) broadcastOnline() {
	g.mu.RLock()
	conns := make([]*wsConn, 0, len(g.online))
	for c := range g.online {
		conns = append(conns, c)
	}
	g.mu.RUnlock()
	frame := game.Info{Type: game.MsgInfo, OnlineUsers: len(conns)}
	ctx := context.Background()
	for _, c := range conns {
		if err := c.Send(ctx, frame); err != nil {
			obslog.L().Debug("presence_send_failed", zap.Error(err))
		}
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func httpError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obslog.L().Warn("http_write_failed", zap.Error(err))
	}
}
