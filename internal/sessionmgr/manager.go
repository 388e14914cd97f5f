// Package sessionmgr implements the session manager (C9): per-user session
// admission control, the in-memory session index, startup restoration, and
// the background stale-session sweep.
package sessionmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kestrel-run/agentcore/internal/bus"
	"github.com/kestrel-run/agentcore/pkg/models"
)

// sessionCacheKeyPrefix/sessionCacheKey match §6's literal persisted-state
// layout ("wukong:server:session:{id}" -> session info), so an operator
// inspecting the shared cache sees the same key family the spec documents.
const sessionCacheKeyPrefix = "wukong:server:session:"

func sessionCacheKey(id string) string { return sessionCacheKeyPrefix + id }

// Store persists session records.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]*models.Session, error)
	ListAll(ctx context.Context) ([]*models.Session, error)
}

// Cache gives the manager a distributed lock around the admission decision
// (so two replicas racing to create a session for the same user don't both
// see a stale count and exceed the per-user cap) and a write-through mirror
// of session metadata under the spec's literal cache key family, so
// RestoreSessions can scan the cache the way §4.9 describes instead of
// only the durable store.
type Cache interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// AgentFactory builds whatever per-session execution context the caller
// wants attached to a new or restored session (an agent loop instance, a
// bound LLM client, etc). The manager treats the result opaquely.
type AgentFactory func(ctx context.Context, session *models.Session) (any, error)

// Config tunes admission and staleness.
type Config struct {
	MaxSessionsPerUser int
	StaleAfter         time.Duration // restoreSessions and the sweep both use this
	SweepInterval      time.Duration
	LockTTL            time.Duration
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxSessionsPerUser: 5,
		StaleAfter:         30 * time.Minute,
		SweepInterval:      5 * time.Minute,
		LockTTL:            10 * time.Second,
	}
}

// Manager owns the in-memory session index, guarded by mu per §5's
// "session manager's in-memory maps are guarded by internal mutual
// exclusion" requirement.
type Manager struct {
	store   Store
	cache   Cache // may be nil: admission then relies only on mu
	factory AgentFactory
	bus     *bus.Bus
	logger  *slog.Logger
	config  Config

	mu       sync.Mutex
	agents   map[string]any // sessionID -> opaque agent instance
	byUser   map[string][]string // userID -> ordered sessionIDs, oldest first

	stopSweep chan struct{}
}

// New returns a Manager. cache and logger may be nil.
func New(store Store, cache Cache, factory AgentFactory, b *bus.Bus, logger *slog.Logger, config Config) *Manager {
	if config.MaxSessionsPerUser <= 0 {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store: store, cache: cache, factory: factory, bus: b, logger: logger, config: config,
		agents: make(map[string]any),
		byUser: make(map[string][]string),
	}
}

// Create admits a new session for userID, evicting the oldest if the
// per-user cap is already at capacity.
func (m *Manager) Create(ctx context.Context, userID, goal string, kind models.AgentKind) (*models.Session, error) {
	admit := func() error { return m.evictOldestIfAtCap(ctx, userID) }
	if m.cache != nil {
		if err := m.cache.WithLock(ctx, "sessionmgr:admit:"+userID, m.config.LockTTL, admit); err != nil {
			return nil, fmt.Errorf("sessionmgr: admission lock: %w", err)
		}
	} else if err := admit(); err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.Session{
		ID: uuid.NewString(), UserID: userID, Goal: goal, Status: models.SessionActive, Kind: kind,
		IsRunning: true, CreatedAt: now, UpdatedAt: now, LastActivityAt: now,
	}
	if err := m.store.Create(ctx, session); err != nil {
		return nil, err
	}

	agent, err := m.buildAgent(ctx, session)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.agents[session.ID] = agent
	m.byUser[userID] = append(m.byUser[userID], session.ID)
	m.mu.Unlock()

	m.mirrorToCache(ctx, session)
	m.emit(ctx, models.EventSessionCreated, session.ID)
	return session, nil
}

// mirrorToCache writes session's current state under its cache key,
// "persist to cache if enabled" per §4.9. Failures are logged, not
// propagated: the durable store remains the system of record and the cache
// copy is a best-effort fast path for restore.
func (m *Manager) mirrorToCache(ctx context.Context, session *models.Session) {
	if m.cache == nil {
		return
	}
	b, err := json.Marshal(session)
	if err != nil {
		m.logger.Warn("sessionmgr: failed to encode session for cache mirror", "sessionId", session.ID, "error", err)
		return
	}
	if err := m.cache.Set(ctx, sessionCacheKey(session.ID), b, 0); err != nil {
		m.logger.Warn("sessionmgr: failed to mirror session to cache", "sessionId", session.ID, "error", err)
	}
}

func (m *Manager) evictOldestIfAtCap(ctx context.Context, userID string) error {
	existing, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	active := make([]*models.Session, 0, len(existing))
	for _, s := range existing {
		if !s.Status.Terminal() {
			active = append(active, s)
		}
	}
	if len(active) < m.config.MaxSessionsPerUser {
		return nil
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.Before(active[j].CreatedAt) })
	oldest := active[0]
	return m.Destroy(ctx, oldest.ID)
}

func (m *Manager) buildAgent(ctx context.Context, session *models.Session) (any, error) {
	if m.factory == nil {
		return nil, nil
	}
	return m.factory(ctx, session)
}

// Get returns session and refreshes its LastActivityAt.
func (m *Manager) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	session.LastActivityAt = time.Now()
	if err := m.store.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateStatus writes and persists a new status.
func (m *Manager) UpdateStatus(ctx context.Context, sessionID string, status models.SessionStatus) error {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("sessionmgr: session %q not found", sessionID)
	}
	session.Status = status
	session.UpdatedAt = time.Now()
	if status.Terminal() {
		session.IsRunning = false
	}
	if err := m.store.Update(ctx, session); err != nil {
		return err
	}
	m.mirrorToCache(ctx, session)
	m.emit(ctx, models.EventSessionUpdated, sessionID)
	return nil
}

// Complete marks sessionID completed; resultSummary is not stored on the
// session. It satisfies the step executor's SessionUpdater collaborator
// interface.
func (m *Manager) Complete(ctx context.Context, sessionID, resultSummary string) error {
	return m.UpdateStatus(ctx, sessionID, models.SessionCompleted)
}

// Destroy unpersists sessionID, removes it from the per-user index, and
// drops its in-memory agent instance.
func (m *Manager) Destroy(ctx context.Context, sessionID string) error {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.agents, sessionID)
	if session != nil {
		ids := m.byUser[session.UserID]
		for i, id := range ids {
			if id == sessionID {
				m.byUser[session.UserID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	if m.cache != nil {
		if err := m.cache.Delete(ctx, sessionCacheKey(sessionID)); err != nil {
			m.logger.Warn("sessionmgr: failed to delete cache mirror", "sessionId", sessionID, "error", err)
		}
	}

	m.emit(ctx, models.EventSessionDeleted, sessionID)
	return nil
}

// RestoreSessions scans for session entries on startup, drops those older
// than StaleAfter, and recreates the in-memory entry for the rest with
// status idle (mapped to SessionPaused, since the model has no separate
// idle state) and a freshly built agent instance. Malformed entries are
// skipped with a log line rather than aborting the whole restore.
//
// Per §4.9 the scan targets the cache's "session:*" key family; when a
// cache is wired, RestoreSessions scans it directly rather than the
// durable store, so a cold cache (e.g. a flushed Redis instance)
// restores nothing even if the store still holds old session rows — that
// mirrors the spec's literal wording. Without a cache (single-process/test
// configurations), the store is scanned instead so restore still works.
func (m *Manager) RestoreSessions(ctx context.Context) error {
	all, err := m.listRestoreCandidates(ctx)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-m.config.StaleAfter)
	for _, session := range all {
		if session == nil || session.ID == "" {
			m.logger.Warn("sessionmgr: skipping malformed session entry during restore")
			continue
		}
		if session.Status.Terminal() {
			continue
		}
		if session.LastActivityAt.Before(cutoff) {
			continue
		}
		session.Status = models.SessionPaused
		agent, err := m.buildAgent(ctx, session)
		if err != nil {
			m.logger.Warn("sessionmgr: failed to rebuild agent during restore", "sessionId", session.ID, "error", err)
			continue
		}
		m.mu.Lock()
		m.agents[session.ID] = agent
		ids := m.byUser[session.UserID]
		alreadyIndexed := false
		for _, id := range ids {
			if id == session.ID {
				alreadyIndexed = true
				break
			}
		}
		if !alreadyIndexed {
			m.byUser[session.UserID] = append(ids, session.ID)
		}
		m.mu.Unlock()
	}
	return nil
}

// listRestoreCandidates returns every non-terminal session RestoreSessions
// should consider, preferring the cache's "wukong:server:session:*" key
// family when a cache is wired (per §4.9/§6) and falling back to a full
// store scan otherwise.
func (m *Manager) listRestoreCandidates(ctx context.Context) ([]*models.Session, error) {
	if m.cache == nil {
		return m.store.ListAll(ctx)
	}
	keys, err := m.cache.Keys(ctx, sessionCacheKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	out := make([]*models.Session, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := m.cache.Get(ctx, key)
		if err != nil || !ok {
			m.logger.Warn("sessionmgr: skipping unreadable cache entry during restore", "key", key)
			continue
		}
		var session models.Session
		if err := json.Unmarshal(raw, &session); err != nil {
			m.logger.Warn("sessionmgr: skipping malformed cache entry during restore", "key", key, "error", err)
			continue
		}
		out = append(out, &session)
	}
	return out, nil
}

// StartSweep runs the background stale-session cleanup loop until ctx is
// cancelled or Stop is called.
func (m *Manager) StartSweep(ctx context.Context) {
	m.stopSweep = make(chan struct{})
	ticker := time.NewTicker(m.config.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopSweep:
				return
			case <-ticker.C:
				m.sweepOnce(ctx)
			}
		}
	}()
}

// Stop halts the background sweep.
func (m *Manager) Stop() {
	if m.stopSweep != nil {
		close(m.stopSweep)
	}
}

func (m *Manager) sweepOnce(ctx context.Context) {
	all, err := m.store.ListAll(ctx)
	if err != nil {
		m.logger.Warn("sessionmgr: sweep failed to list sessions", "error", err)
		return
	}
	cutoff := time.Now().Add(-m.config.StaleAfter)
	for _, session := range all {
		if session.Status.Terminal() || session.LastActivityAt.After(cutoff) {
			continue
		}
		if err := m.UpdateStatus(ctx, session.ID, models.SessionStopped); err != nil {
			m.logger.Warn("sessionmgr: failed to mark stale session stopped", "sessionId", session.ID, "error", err)
			continue
		}
		m.mu.Lock()
		delete(m.agents, session.ID)
		m.mu.Unlock()
	}
}

func (m *Manager) emit(ctx context.Context, tag models.EventTag, sessionID string) {
	if m.bus == nil {
		return
	}
	m.bus.Emit(ctx, models.Event{Tag: tag, SessionID: sessionID, Time: time.Now()})
}
