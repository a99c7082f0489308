package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	ws "github.com/olympiad/exam-portal/internal/websocket"
	"github.com/rs/zerolog"
)

// newTrackedServer serves sockets the way AttemptStream does: register, read
// until the socket fails, run the unload step, release.
func newTrackedServer(t *testing.T, h *WSHandler, unloaded *atomic.Int32, refused *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conn := ws.Wrap(raw)
		defer conn.Close()

		if !h.live.add(conn) {
			refused.Add(1)
			return
		}
		defer h.live.done(conn)

		for {
			var msg ws.Request
			if err := conn.ReadRequest(&msg); err != nil {
				break
			}
		}
		// Stands in for the session unload and its final checkpoint.
		time.Sleep(20 * time.Millisecond)
		unloaded.Add(1)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func liveCount(h *WSHandler) int {
	h.live.mu.Lock()
	defer h.live.mu.Unlock()
	return len(h.live.conns)
}

func TestWSShutdownUnloadsLiveSessions(t *testing.T) {
	h := &WSHandler{log: zerolog.Nop(), upgrader: buildUpgrader(nil)}
	var unloaded, refused atomic.Int32
	srv := newTrackedServer(t, h, &unloaded, &refused)

	dialWS(t, srv)
	dialWS(t, srv)
	waitFor(t, func() bool { return liveCount(h) == 2 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := unloaded.Load(); got != 2 {
		t.Fatalf("sessions unloaded when Shutdown returned = %d, want 2", got)
	}
	if liveCount(h) != 0 {
		t.Error("registry still holds sockets after shutdown")
	}
}

func TestWSShutdownRefusesNewSockets(t *testing.T) {
	h := &WSHandler{log: zerolog.Nop(), upgrader: buildUpgrader(nil)}
	var unloaded, refused atomic.Int32
	srv := newTrackedServer(t, h, &unloaded, &refused)

	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	dialWS(t, srv)
	waitFor(t, func() bool { return refused.Load() == 1 })
	if unloaded.Load() != 0 {
		t.Error("refused socket must not run a session")
	}
}

func TestWSShutdownHonoursDeadline(t *testing.T) {
	h := &WSHandler{log: zerolog.Nop()}
	// A registered socket whose handler never returns.
	h.live.wg.Add(1)
	defer h.live.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := h.Shutdown(ctx); err == nil {
		t.Fatal("Shutdown() should report the expired deadline")
	}
}
