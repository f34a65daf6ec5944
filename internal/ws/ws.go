// Package ws serves the schedule live view over a plain websocket for
// browser clients that do not speak Connect streaming.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mmynk/teamsync/internal/errors"
	"github.com/mmynk/teamsync/internal/feed"
	"github.com/mmynk/teamsync/internal/metrics"
	"github.com/mmynk/teamsync/internal/middleware"
	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/presence"
	"github.com/mmynk/teamsync/internal/schedule"
	"github.com/mmynk/teamsync/pkg/rpc"
)

// Path is where the handler is mounted.
const Path = "/ws/schedules"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Frame types.
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// Frame is one JSON message sent to the client.
type Frame struct {
	Type      string          `json:"type"`
	TeamID    string          `json:"teamId,omitempty"`
	Date      string          `json:"date,omitempty"`
	Schedules []*rpc.Schedule `json:"schedules"`
	Kind      string          `json:"kind,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Handler upgrades GET /ws/schedules?team_id=...&date=...&token=... and
// pushes a snapshot frame whenever the team's calendar changes. While the
// socket is open the user's lastActive is kept fresh.
type Handler struct {
	tokens    middleware.TokenValidator
	schedules *schedule.Service
	heartbeat *presence.Heartbeat
	metrics   *metrics.Metrics
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

// NewHandler creates a Handler. With no allowed origins every origin is
// accepted. heartbeat and m may be nil.
func NewHandler(tokens middleware.TokenValidator, schedules *schedule.Service, heartbeat *presence.Heartbeat, m *metrics.Metrics, logger *slog.Logger, allowedOrigins ...string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		tokens:    tokens,
		schedules: schedules,
		heartbeat: heartbeat,
		metrics:   m,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "ws.Schedules"
	q := r.URL.Query()

	token := q.Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := h.tokens.Validate(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	p := claims.Principal()

	teamID := q.Get("team_id")
	if teamID == "" {
		http.Error(w, "team_id is required", http.StatusBadRequest)
		return
	}
	date := q.Get("date")
	if date != "" {
		if err := schedule.ValidateDate(op, date); err != nil {
			http.Error(w, errors.Message(err), http.StatusBadRequest)
			return
		}
	}

	// The request context ends when ServeHTTP returns; the read loop
	// cancels ctx when the client goes away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	live, err := h.schedules.ListForTeam(ctx, p, teamID)
	if err != nil {
		http.Error(w, errors.Message(err), statusFor(errors.KindOf(err)))
		return
	}
	defer live.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	defer h.metrics.Subscribed("ws")()

	logger := h.logger.With("user_id", p.ID, "team_id", teamID)
	logger.Info("websocket connected")

	if h.heartbeat != nil {
		go h.heartbeat.Run(ctx, p.ID)
	}
	go readLoop(conn, cancel, logger)

	h.writeLoop(conn, live, teamID, date, logger)
	logger.Info("websocket closed")
}

// readLoop discards client messages and keeps the read deadline moving on
// pongs. It cancels the connection context once reading fails.
func readLoop(conn *websocket.Conn, cancel context.CancelFunc, logger *slog.Logger) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read failed", "error", err)
			}
			return
		}
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, live *feed.Stream[schedule.Snapshot], teamID, date string, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-live.Updates():
			if !ok {
				h.finish(conn, teamID, live.Err(), logger)
				return
			}
			entries := snap.Schedules
			if date != "" {
				entries = schedule.ForDate(entries, date)
			}
			frame := Frame{Type: FrameSnapshot, TeamID: teamID, Date: date, Schedules: toRPCSchedules(entries)}
			if err := writeJSON(conn, frame); err != nil {
				logger.Warn("websocket send failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Warn("websocket ping failed", "error", err)
				return
			}
		}
	}
}

// finish reports why the view ended and closes the socket politely.
func (h *Handler) finish(conn *websocket.Conn, teamID string, err error, logger *slog.Logger) {
	code, reason := websocket.CloseNormalClosure, ""
	if err != nil {
		kind := errors.KindOf(err)
		logger.Info("live view ended", "kind", kind.String(), "error", err)
		frame := Frame{Type: FrameError, TeamID: teamID, Kind: kind.String(), Message: errors.Message(err)}
		if werr := writeJSON(conn, frame); werr != nil {
			return
		}
		code, reason = websocket.ClosePolicyViolation, kind.String()
		if kind == errors.KindUnavailable || kind == errors.KindUnknown {
			code = websocket.CloseInternalServerErr
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}

func writeJSON(conn *websocket.Conn, frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func statusFor(kind errors.Kind) int {
	switch kind {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindPermission, errors.KindNotAMember:
		return http.StatusForbidden
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toRPCSchedules(entries []*models.Schedule) []*rpc.Schedule {
	out := make([]*rpc.Schedule, len(entries))
	for i, s := range entries {
		out[i] = &rpc.Schedule{
			ID:        s.ID,
			TeamID:    s.TeamID,
			Title:     s.Title,
			Date:      s.Date,
			DueTime:   s.DueTime,
			CreatorID: s.CreatorID,
			CreatedAt: s.CreatedAt,
		}
	}
	return out
}
