package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"backend-livetrack/internal/activity"
	"backend-livetrack/internal/auth"
	"backend-livetrack/internal/metrics"
	"backend-livetrack/internal/trace"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authSvc *auth.Service) {
	r.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		userID, err := authSvc.ValidateAccessToken(auth.TokenFromRequest(c))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals("user_id", userID)
		return c.Next()
	})

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("user_id").(string)
		ctx := context.Background()

		if err := svc.Acquire(ctx, userID); err != nil {
			slog.Info("tracking: rejected connection", "user_id", userID, "error", err)
			closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session already active")
			_ = c.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
			return
		}
		defer svc.Release(ctx, userID)

		conn := &connection{svc: svc, ws: c, userID: userID}
		defer conn.close(ctx)
		conn.serve(ctx)
	}))
}

// connection drives one tracking websocket. Only serve writes to ws, so
// writes never race.
type connection struct {
	svc     *Service
	ws      *websocket.Conn
	userID  string
	session *Session
}

func (c *connection) serve(ctx context.Context) {
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("tracking: connection dropped", "user_id", c.userID, "error", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(outbound{Type: msgError, Error: "invalid message"})
			continue
		}

		switch msg.kind() {
		case msgSubscribe:
			c.subscribe(ctx, msg)
		case msgFix:
			c.fix(ctx, msg)
		case msgLap:
			c.lap(msg)
		case msgUnsubscribe:
			if c.unsubscribe(ctx) {
				return
			}
		default:
			c.reply(outbound{Type: msgError, Error: "unknown message type"})
		}
	}
}

func (c *connection) subscribe(ctx context.Context, msg inbound) {
	if c.session != nil {
		c.reply(outbound{Type: msgError, Error: ErrAlreadyStarted.Error()})
		return
	}
	t := activity.Type(msg.ActivityType)
	if t != "" && !t.Valid() {
		c.reply(outbound{Type: msgError, Error: activity.ErrInvalidType.Error()})
		return
	}
	if msg.WeightKg != nil {
		if err := metrics.ValidateWeight(*msg.WeightKg); err != nil {
			c.reply(outbound{Type: msgError, Error: err.Error()})
			return
		}
	}

	session := c.svc.NewSession(c.userID, msg.WeightKg, t)
	if err := session.Begin(ctx, c.userID); err != nil {
		slog.Error("tracking: begin session", "user_id", c.userID, "error", err)
		c.reply(outbound{Type: msgError, Error: "could not start session"})
		return
	}
	c.session = session
	c.svc.track(session)
	c.reply(outbound{Type: msgSubscribed, ActivityID: session.ActivityID(), TraceID: session.TraceID()})
}

func (c *connection) fix(ctx context.Context, msg inbound) {
	if c.session == nil {
		c.reply(outbound{Type: msgError, Error: ErrNotTracking.Error()})
		return
	}
	p, ok := msg.point()
	if !ok {
		return
	}
	fix := Fix{
		Point:     p,
		Timestamp: msg.timestampOr(c.svc.now()),
		Altitude:  c.svc.Altitude(ctx, p),
	}
	if err := c.session.OnFix(fix, msg.Start, msg.Stop); err != nil {
		slog.Warn("tracking: fix rejected", "activity_id", c.session.ActivityID(), "error", err)
		c.reply(outbound{Type: msgError, Error: err.Error()})
	}
}

func (c *connection) lap(msg inbound) {
	if c.session == nil {
		c.reply(outbound{Type: msgError, Error: ErrNotTracking.Error()})
		return
	}
	if err := c.session.StartLap(msg.timestampOr(c.svc.now())); err != nil {
		c.reply(outbound{Type: msgError, Error: err.Error()})
	}
}

// unsubscribe ends the session and reports whether the connection is done.
func (c *connection) unsubscribe(ctx context.Context) bool {
	if c.session == nil {
		c.reply(outbound{Type: msgError, Error: ErrNotTracking.Error()})
		return false
	}
	stats, err := c.session.End(ctx, trace.StateFinished)
	if err != nil {
		slog.Error("tracking: end session", "activity_id", c.session.ActivityID(), "error", err)
	}
	c.reply(outbound{Type: msgFinished, ActivityID: stats.ActivityID, TraceID: stats.TraceID, Stats: &stats})
	return true
}

// close finalizes a session left open by a dropped connection.
func (c *connection) close(ctx context.Context) {
	if c.session == nil {
		return
	}
	defer c.svc.untrack(c.session)
	if c.session.State() != StateTracking {
		return
	}
	if _, err := c.session.End(ctx, trace.StateFinished); err != nil && !errors.Is(err, ErrNotTracking) {
		slog.Error("tracking: end session on close", "activity_id", c.session.ActivityID(), "error", err)
	}
}

func (c *connection) reply(msg outbound) {
	if err := c.ws.WriteJSON(msg); err != nil {
		slog.Debug("tracking: write reply", "user_id", c.userID, "error", err)
	}
}
