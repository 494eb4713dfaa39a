package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/singhDevs/Chezz-Backend/internal/match"
	"github.com/singhDevs/Chezz-Backend/internal/pool"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()
	g := New(pool.New(), HMACVerifier(testSecret), match.Deps{}, 16)
	srv := httptest.NewServer(g.Router())
	t.Cleanup(srv.Close)
	return g, srv
}

func join(t *testing.T, srv *httptest.Server, userID, mode string) (string, int) {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"userId":   userID,
		"username": userID,
		"gameMode": mode,
		"gameType": "BLITZ",
		"duration": 60000,
	})
	resp, err := http.Post(srv.URL+"/v1/game/join", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
	defer resp.Body.Close()
	var out joinResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out.GameID, resp.StatusCode
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server, userID, gameID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/game/ws?gameId=" + gameID + "&token=" + SignToken(testSecret, userID)
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

// readFrame skips frames (presence updates arrive interleaved) until
// one of the wanted type shows up.
func readFrame(t *testing.T, ctx context.Context, c *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for {
		var m map[string]any
		if err := wsjson.Read(ctx, c, &m); err != nil {
			t.Fatalf("waiting for %s frame: %v", typ, err)
		}
		if m["type"] == typ {
			return m
		}
	}
}

func TestHMACVerifierRoundTrip(t *testing.T) {
	verify := HMACVerifier(testSecret)
	userID, err := verify(SignToken(testSecret, "u1"))
	if err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("userID = %q, want u1", userID)
	}
	if _, err := verify(SignToken("other-secret", "u1")); err == nil {
		t.Fatal("token signed with wrong secret accepted")
	}
	if _, err := verify("garbage"); err == nil {
		t.Fatal("malformed token accepted")
	}
}

func TestJoinRejectsMalformedRequests(t *testing.T) {
	_, srv := newTestServer(t)

	if _, code := join(t, srv, "u1", "SPEEDRUN"); code != http.StatusBadRequest {
		t.Fatalf("unknown mode: status = %d, want 400", code)
	}
	if _, code := join(t, srv, "", "CASUAL"); code != http.StatusBadRequest {
		t.Fatalf("missing userId: status = %d, want 400", code)
	}
}

func TestJoinRejectsSelfMatch(t *testing.T) {
	_, srv := newTestServer(t)

	if _, code := join(t, srv, "u1", "CASUAL"); code != http.StatusOK {
		t.Fatal("first join failed")
	}
	if _, code := join(t, srv, "u1", "CASUAL"); code != http.StatusConflict {
		t.Fatalf("self match: status = %d, want 409", code)
	}
}

func TestPairedPlayersShareGameID(t *testing.T) {
	_, srv := newTestServer(t)

	g1, _ := join(t, srv, "u1", "CASUAL")
	g2, _ := join(t, srv, "u2", "CASUAL")
	if g1 == "" || g1 != g2 {
		t.Fatalf("game ids %q and %q, want equal and non-empty", g1, g2)
	}
}

func TestMatchPlaysOverWebsockets(t *testing.T) {
	_, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g1, _ := join(t, srv, "u1", "CASUAL")
	c1 := dial(t, ctx, srv, "u1", g1)
	g2, _ := join(t, srv, "u2", "CASUAL")
	c2 := dial(t, ctx, srv, "u2", g2)

	start1 := readFrame(t, ctx, c1, "START_GAME")
	start2 := readFrame(t, ctx, c2, "START_GAME")
	if start1["color"] != "w" || start2["color"] != "b" {
		t.Fatalf("colors %v / %v, want w / b", start1["color"], start2["color"])
	}

	err := wsjson.Write(ctx, c1, map[string]any{
		"type": "MOVE",
		"move": map[string]string{"from": "e2", "to": "e4", "piece": "p"},
	})
	if err != nil {
		t.Fatalf("send move: %v", err)
	}
	mv := readFrame(t, ctx, c2, "MOVE")
	if mv["turn"] != "b" {
		t.Fatalf("turn = %v after white's move, want b", mv["turn"])
	}
	if mv["board"] == "" {
		t.Fatal("move broadcast is missing the board")
	}
	readFrame(t, ctx, c1, "MOVE")

	if err := wsjson.Write(ctx, c2, map[string]any{"type": "RESIGN"}); err != nil {
		t.Fatalf("send resign: %v", err)
	}
	over := readFrame(t, ctx, c1, "GAME_OVER")
	if over["result"] != "WHITE" || over["cause"] != "RESIGNATION" {
		t.Fatalf("game over = %v/%v, want WHITE/RESIGNATION", over["result"], over["cause"])
	}
	readFrame(t, ctx, c2, "GAME_OVER")
}

func TestJoinFrameAttachesSocket(t *testing.T) {
	_, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g1, _ := join(t, srv, "u1", "CASUAL")
	c1 := dial(t, ctx, srv, "u1", "")
	err := wsjson.Write(ctx, c1, map[string]any{
		"type":    "JOIN",
		"payload": map[string]string{"gameId": g1},
	})
	if err != nil {
		t.Fatalf("send join: %v", err)
	}

	g2, _ := join(t, srv, "u2", "CASUAL")
	c2 := dial(t, ctx, srv, "u2", g2)

	if got := readFrame(t, ctx, c1, "START_GAME")["color"]; got != "w" {
		t.Fatalf("frame-joined socket color = %v, want w", got)
	}
	readFrame(t, ctx, c2, "START_GAME")
}

func TestAuthFailureClosesPolicyViolation(t *testing.T) {
	_, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/game/ws?gameId=x&token=forged"
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	var m map[string]any
	readErr := wsjson.Read(ctx, c, &m)
	if readErr == nil {
		t.Fatal("read succeeded on an unauthenticated socket")
	}
	if websocket.CloseStatus(readErr) != websocket.StatusPolicyViolation {
		t.Fatalf("close status = %v, want 1008", websocket.CloseStatus(readErr))
	}
}

func TestWaitingDisconnectCancelsRequest(t *testing.T) {
	g, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g1, _ := join(t, srv, "u1", "CASUAL")
	c1 := dial(t, ctx, srv, "u1", g1)
	readFrame(t, ctx, c1, "info")
	_ = c1.Close(websocket.StatusNormalClosure, "changed my mind")

	deadline := time.Now().Add(2 * time.Second)
	for g.pool.Lookup(g1) != nil {
		if time.Now().After(deadline) {
			t.Fatal("waiting request still in the pool after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func pendingCount(g *Gateway) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.pending)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAbandonedPairingFreesCapacity(t *testing.T) {
	g := New(pool.New(), HMACVerifier(testSecret), match.Deps{}, 1)
	srv := httptest.NewServer(g.Router())
	t.Cleanup(srv.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	join(t, srv, "u1", "CASUAL")
	g2, _ := join(t, srv, "u2", "CASUAL")

	// Only one side ever connects, then walks away.
	c2 := dial(t, ctx, srv, "u2", g2)
	readFrame(t, ctx, c2, "info")
	_ = c2.Close(websocket.StatusNormalClosure, "")

	waitFor(t, "abandoned pairing still holds a capacity slot", func() bool {
		return pendingCount(g) == 0
	})
	if _, code := join(t, srv, "u3", "CASUAL"); code != http.StatusOK {
		t.Fatalf("join after abandoned pairing: status = %d, want 200", code)
	}
}

func TestPendingMatchExpiresWithoutSockets(t *testing.T) {
	g := New(pool.New(), HMACVerifier(testSecret), match.Deps{}, 1)
	g.pendingTTL = 50 * time.Millisecond
	srv := httptest.NewServer(g.Router())
	t.Cleanup(srv.Close)

	join(t, srv, "u1", "CASUAL")
	join(t, srv, "u2", "CASUAL")
	if pendingCount(g) != 1 {
		t.Fatalf("pending matches = %d after pairing, want 1", pendingCount(g))
	}

	waitFor(t, "unconnected pairing never expired", func() bool {
		return pendingCount(g) == 0
	})
	if _, code := join(t, srv, "u3", "CASUAL"); code != http.StatusOK {
		t.Fatalf("join after expiry: status = %d, want 200", code)
	}
}

func TestPresenceCountsConnections(t *testing.T) {
	_, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g1, _ := join(t, srv, "u1", "CASUAL")
	c1 := dial(t, ctx, srv, "u1", g1)
	first := readFrame(t, ctx, c1, "info")
	if first["onlineUsers"].(float64) < 1 {
		t.Fatalf("onlineUsers = %v, want >= 1", first["onlineUsers"])
	}

	g2, _ := join(t, srv, "u2", "CASUAL")
	dial(t, ctx, srv, "u2", g2)
	second := readFrame(t, ctx, c1, "info")
	if second["onlineUsers"].(float64) != 2 {
		t.Fatalf("onlineUsers = %v after second connect, want 2", second["onlineUsers"])
	}
}