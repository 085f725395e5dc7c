package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DashboardFactory builds the dashboard for a freshly opened session.
type DashboardFactory func(id string) *Dashboard

type sessionGauge interface {
	SetActiveSessions(n int)
}

type stagingPurger interface {
	PurgeStale(inUse map[string]struct{})
}

// SessionRegistryConfig controls session expiry.
type SessionRegistryConfig struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

type sessionEntry struct {
	dashboard *Dashboard
	lastSeen  time.Time
}

// SessionRegistry tracks one Dashboard per page load.
type SessionRegistry struct {
	factory DashboardFactory
	purger  stagingPurger
	metrics sessionGauge
	logger  *zap.Logger
	cfg     SessionRegistryConfig
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry(factory DashboardFactory, purger stagingPurger, metrics sessionGauge, logger *zap.Logger, cfg SessionRegistryConfig) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	return &SessionRegistry{
		factory:  factory,
		purger:   purger,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
}

// Open starts a new session, replacing previousID if it is still open, and
// performs the report table's mount fetch.
func (r *SessionRegistry) Open(ctx context.Context, previousID string) *Dashboard {
	if previousID != "" {
		r.Close(previousID)
	}

	id := uuid.NewString()
	dashboard := r.factory(id)

	r.mu.Lock()
	r.sessions[id] = &sessionEntry{dashboard: dashboard, lastSeen: r.now()}
	count := len(r.sessions)
	r.mu.Unlock()
	r.publish(count)

	dashboard.Mount(ctx)
	r.logger.Sugar().Debugw("dashboard session opened", "session_id", id, "replaced", previousID)
	return dashboard
}

// Lookup returns the session and marks it as recently used.
func (r *SessionRegistry) Lookup(id string) (*Dashboard, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = r.now()
	return entry.dashboard, true
}

// Close ends a session if it exists.
func (r *SessionRegistry) Close(id string) {
	r.mu.Lock()
	entry, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return
	}
	r.publish(count)
	entry.dashboard.Close()
}

// Len reports the number of open sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown closes every session.
func (r *SessionRegistry) Shutdown() {
	r.mu.Lock()
	entries := r.sessions
	r.sessions = make(map[string]*sessionEntry)
	r.mu.Unlock()
	for _, entry := range entries {
		entry.dashboard.Close()
	}
	r.publish(0)
}

// StartCleanup periodically evicts idle sessions and purges orphaned staged files.
func (r *SessionRegistry) StartCleanup(ctx context.Context) {
	if r.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(r.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

func (r *SessionRegistry) cleanup() {
	cutoff := r.now().Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	expired := make([]*sessionEntry, 0)
	inUse := make(map[string]struct{}, len(r.sessions))
	for id, entry := range r.sessions {
		if entry.lastSeen.Before(cutoff) {
			expired = append(expired, entry)
			delete(r.sessions, id)
			continue
		}
		if key := entry.dashboard.StagedKey(); key != "" {
			inUse[key] = struct{}{}
		}
	}
	count := len(r.sessions)
	r.mu.Unlock()

	for _, entry := range expired {
		entry.dashboard.Close()
	}
	if len(expired) > 0 {
		r.publish(count)
		r.logger.Sugar().Infow("evicted idle dashboard sessions", "count", len(expired))
	}
	if r.purger != nil {
		r.purger.PurgeStale(inUse)
	}
}

func (r *SessionRegistry) publish(count int) {
	if r.metrics != nil {
		r.metrics.SetActiveSessions(count)
	}
}
