package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/olympiad/exam-portal/internal/attempt"
	"github.com/olympiad/exam-portal/internal/gateway"
	"github.com/olympiad/exam-portal/internal/metrics"
	"github.com/olympiad/exam-portal/internal/middleware"
	"github.com/olympiad/exam-portal/internal/response"
	ws "github.com/olympiad/exam-portal/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSOptions tunes server-hosted attempt sessions.
type WSOptions struct {
	AllowedOrigins     []string
	CheckpointInterval time.Duration
	SubmitTimeout      time.Duration
}

// WSHandler hosts one attempt session per WebSocket connection.
type WSHandler struct {
	local    *gateway.Local
	opts     WSOptions
	log      zerolog.Logger
	upgrader websocket.Upgrader
	live     liveSockets
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(local *gateway.Local, opts WSOptions, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		local:    local,
		opts:     opts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(opts.AllowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/exams/:exam_id/attempt?token=...
// Runs the attempt on the server. Dropping the socket without finish or leave
// submits the attempt as ended.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	if !h.live.add(conn) {
		_ = conn.WriteError(response.ErrServiceUnavailable)
		return
	}
	defer h.live.done(conn)

	wsLog := h.log.With().
		Str("request_id", response.RequestID(c)).
		Int("user_id", claims.UserID).
		Int64("exam_id", examID).
		Logger()

	sess := attempt.NewSession(examID, attempt.Identity{UserID: claims.UserID}, attempt.Deps{
		Exams:           h.local,
		Resume:          h.local,
		Recorder:        h.local,
		Confirmed:       h.local.Submit(),
		BestEffort:      h.local.Beacon(),
		Log:             wsLog,
		Listener:        h.listener(conn, wsLog),
		CheckpointEvery: int(h.opts.CheckpointInterval / time.Second),
		SubmitTimeout:   h.opts.SubmitTimeout,
	})

	if err := sess.Start(c.Request.Context()); err != nil {
		_, code := errorStatus(err)
		_ = conn.WriteError(code)
		return
	}

	metrics.LiveSessions.Inc()
	defer metrics.LiveSessions.Dec()
	wsLog.Info().Msg("Student connected")

	h.writeState(conn, sess)

	left := h.readLoop(c.Request.Context(), conn, sess, wsLog)
	if left {
		sess.Close()
		wsLog.Info().Msg("Student left without submitting")
		return
	}

	if err := sess.Unload(); err != nil &&
		!errors.Is(err, attempt.ErrAlreadySubmitted) && !errors.Is(err, attempt.ErrNotActive) {
		wsLog.Warn().Err(err).Msg("Unload submission failed")
	}
}

// Shutdown closes every open attempt socket and waits, bounded by ctx, for
// their handlers to unload the sessions. Connections arriving afterwards are
// refused.
func (h *WSHandler) Shutdown(ctx context.Context) error {
	n := h.live.closeAll()
	if n > 0 {
		h.log.Info().Int("sessions", n).Msg("Closing live attempt sessions")
	}
	return h.live.wait(ctx)
}

// readLoop serves client actions until the socket closes. It reports whether
// the student asked to leave.
func (h *WSHandler) readLoop(ctx context.Context, conn *ws.Conn, sess *attempt.Session, wsLog zerolog.Logger) bool {
	for {
		var msg ws.Request
		if err := conn.ReadRequest(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return false
		}

		switch msg.Action {
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		case ws.ActionLeave:
			return true
		default:
			if err := h.dispatch(ctx, conn, sess, &msg); err != nil {
				_, code := errorStatus(err)
				if code == response.ErrInternal {
					wsLog.Error().Err(err).Str("action", string(msg.Action)).Msg("Action failed")
				}
				_ = conn.WriteError(code)
			}
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, conn *ws.Conn, sess *attempt.Session, msg *ws.Request) error {
	switch msg.Action {
	case ws.ActionSelect:
		if _, err := sess.Select(msg.Option); err != nil {
			return err
		}
	case ws.ActionSave:
		outcome, err := sess.SaveAndNext(ctx)
		if err != nil {
			return err
		}
		_ = conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, Outcome: outcome})
	case ws.ActionReview:
		if _, err := sess.ToggleReview(); err != nil {
			return err
		}
	case ws.ActionJump:
		if msg.Index == nil {
			return attempt.ErrIndexOutOfRange
		}
		if _, err := sess.Jump(*msg.Index); err != nil {
			return err
		}
	case ws.ActionNext:
		if _, err := sess.Next(); err != nil {
			return err
		}
	case ws.ActionPrev:
		if _, err := sess.Prev(); err != nil {
			return err
		}
	case ws.ActionFinish:
		// The listener reports both the result and a failed send.
		_, err := sess.Finish(ctx)
		if errors.Is(err, attempt.ErrAlreadySubmitted) || errors.Is(err, attempt.ErrNotActive) {
			return err
		}
		return nil
	default:
		_ = conn.WriteError(response.ErrInvalidPayload)
		return nil
	}

	h.writeState(conn, sess)
	return nil
}

func (h *WSHandler) writeState(conn *ws.Conn, sess *attempt.Session) {
	state := ws.StateResponse{Event: ws.EventState, Snapshot: sess.Snapshot()}
	if cur, err := sess.Current(); err == nil {
		state.Current = &cur
	}
	_ = conn.WriteTyped(state)
}

// listener forwards session events to the socket. It runs on the timer
// goroutine as well as the read loop.
func (h *WSHandler) listener(conn *ws.Conn, wsLog zerolog.Logger) attempt.Listener {
	return func(ev attempt.Event) {
		var err error
		switch ev.Kind {
		case attempt.EventTick:
			err = conn.WriteTyped(ws.TickResponse{Event: ws.EventTick, Remaining: ev.Remaining})
		case attempt.EventExpired:
			err = conn.WriteTyped(ws.TickResponse{Event: ws.EventExpired})
		case attempt.EventSubmitted:
			err = conn.WriteTyped(ws.SubmittedResponse{Event: ws.EventSubmitted, Trigger: ev.Trigger, Result: ev.Result})
		case attempt.EventSubmitFailed:
			_, code := errorStatus(ev.Err)
			err = conn.WriteTyped(ws.ErrorResponse{
				Event: ws.EventSubmitFailed,
				Code:  code,
				Error: response.GetMessage(code),
			})
		}
		if err != nil {
			wsLog.Debug().Err(err).Str("event", string(ev.Kind)).Msg("Event not delivered")
		}
	}
}

// ─── Live socket registry ───

// liveSockets tracks open attempt sockets. Once closing is set no socket is
// added, so wait never races a new add.
type liveSockets struct {
	mu      sync.Mutex
	conns   map[*ws.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

func (l *liveSockets) add(conn *ws.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closing {
		return false
	}
	if l.conns == nil {
		l.conns = make(map[*ws.Conn]struct{})
	}
	l.conns[conn] = struct{}{}
	l.wg.Add(1)
	return true
}

func (l *liveSockets) done(conn *ws.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
	l.wg.Done()
}

// closeAll stops new adds and closes every tracked socket. The blocked reads
// fail and each handler runs its unload path.
func (l *liveSockets) closeAll() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closing = true
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn := range l.conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
	return len(l.conns)
}

func (l *liveSockets) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
