package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"backend-livetrack/internal/activity"
	"backend-livetrack/internal/altitude"
	"backend-livetrack/internal/trace"

	"github.com/paulmach/orb"
)

// Service builds live sessions and owns what they share: the stores, the
// active-user registry, the altitude provider and the spectator hub.
type Service struct {
	activities ActivityStore
	traces     TraceStore
	registry   Registry
	altitude   altitude.Provider
	hub        Broadcaster
	opts       Options

	mu   sync.Mutex
	live map[*Session]struct{}
}

func NewService(activities ActivityStore, traces TraceStore, registry Registry, alt altitude.Provider, hub Broadcaster, opts Options) *Service {
	if registry == nil {
		registry = NewMemoryRegistry()
	}
	if alt == nil {
		alt = altitude.Nop{}
	}
	return &Service{
		activities: activities,
		traces:     traces,
		registry:   registry,
		altitude:   alt,
		hub:        hub,
		opts:       opts.withDefaults(),
		live:       make(map[*Session]struct{}),
	}
}

// NewSession returns an unbegun session for userID. Every save tick
// refreshes the user's lease, even while the stores are failing, and every
// successful save broadcasts the stats to spectators.
func (s *Service) NewSession(userID string, weightKg *float64, t activity.Type) *Session {
	opts := s.opts
	if weightKg != nil && *weightKg > 0 {
		opts.WeightKg = *weightKg
	}
	if t != "" {
		opts.ActivityType = t
	}
	session := NewSession(s.activities, s.traces, opts)

	session.OnTick(func(ctx context.Context) {
		if err := s.registry.Refresh(ctx, userID); err != nil {
			slog.Warn("tracking: lease refresh failed", "user_id", userID, "error", err)
		}
	})
	if s.hub != nil {
		session.OnSave(func(_ context.Context, st Stats) {
			payload, err := json.Marshal(outbound{Type: msgStats, ActivityID: st.ActivityID, Stats: &st})
			if err != nil {
				slog.Error("tracking: encode stats", "activity_id", st.ActivityID, "error", err)
				return
			}
			s.hub.Broadcast(st.ActivityID, payload)
		})
	}
	return session
}

func (s *Service) Acquire(ctx context.Context, userID string) error {
	cctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.registry.Acquire(cctx, userID)
}

// Release frees the user's lease. A lease that is no longer held means the
// registry lost track of a live session, which is logged as an error.
func (s *Service) Release(ctx context.Context, userID string) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if err := s.registry.Release(cctx, userID); err != nil {
		if errors.Is(err, ErrNotHeld) {
			slog.Error("tracking: released a session that was not registered", "user_id", userID)
			return
		}
		slog.Warn("tracking: release session lease", "user_id", userID, "error", err)
	}
}

// Altitude looks up the ground height at p. Failures yield a missing altitude.
func (s *Service) Altitude(ctx context.Context, p orb.Point) *float64 {
	cctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	h, err := s.altitude.Lookup(cctx, p)
	if err != nil {
		slog.Debug("tracking: altitude lookup failed", "lat", p.Lat(), "long", p.Lon(), "error", err)
		return nil
	}
	return h.Meters
}

func (s *Service) track(session *Session) {
	s.mu.Lock()
	s.live[session] = struct{}{}
	s.mu.Unlock()
}

func (s *Service) untrack(session *Session) {
	s.mu.Lock()
	delete(s.live, session)
	s.mu.Unlock()
}

// Shutdown ends every live session as interrupted. Hijacked websocket
// connections outlive the HTTP server shutdown, so this runs alongside it.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.live))
	for session := range s.live {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		if _, err := session.End(ctx, trace.StateInterrupted); err != nil && !errors.Is(err, ErrNotTracking) {
			slog.Error("tracking: interrupt session on shutdown", "activity_id", session.ActivityID(), "error", err)
		}
	}
	if len(sessions) > 0 {
		slog.Info("tracking: interrupted live sessions", "count", len(sessions))
	}
}

func (s *Service) now() int64 {
	return time.Now().UnixMilli()
}
