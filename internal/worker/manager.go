package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"mamachat/internal/models"
	"mamachat/internal/observability"
	"mamachat/internal/service/chat"
)

const (
	defaultQueueSize       = 4
	defaultIdleTimeout     = 30 * time.Minute
	defaultJanitorInterval = time.Minute
	defaultMaxSessions     = 5
)

var (
	// ErrBusy is returned when a session already has a full queue of pending turns.
	ErrBusy = errors.New("session queue full")
	// ErrSessionNotFound is returned for unknown, closed or foreign sessions.
	ErrSessionNotFound = errors.New("session not found")
)

// Config tunes the manager. Zero values select defaults.
type Config struct {
	QueueSize          int
	IdleTimeout        time.Duration
	JanitorInterval    time.Duration
	MaxSessionsPerUser int
}

// SnapshotLoader supplies the open-time user snapshot.
type SnapshotLoader interface {
	Load(ctx context.Context, userID int64) models.UserSnapshot
	Invalidate(ctx context.Context, userID int64)
}

// TranscriptLog persists session turns for history views.
type TranscriptLog interface {
	CreateChatSession(ctx context.Context, session *models.Session) error
	AppendMessage(ctx context.Context, msg *models.Message) error
}

// SessionInfo describes a live session.
type SessionInfo struct {
	ID         string            `json:"id"`
	Provider   string            `json:"provider"`
	State      chat.State        `json:"state"`
	Transcript []models.ChatTurn `json:"transcript"`
	CreatedAt  time.Time         `json:"created_at"`
	LastActive time.Time         `json:"last_active"`
}

// Manager owns live chat sessions. Each session is served by one goroutine
// so turns against it never overlap.
type Manager struct {
	engine  *chat.Engine
	loader  SnapshotLoader
	store   TranscriptLog
	metrics *observability.Metrics
	cfg     Config
	now     func() time.Time

	mu    sync.Mutex
	users map[int64]*userSessions
}

func NewManager(engine *chat.Engine, loader SnapshotLoader, store TranscriptLog, metrics *observability.Metrics, cfg Config) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = defaultJanitorInterval
	}
	if cfg.MaxSessionsPerUser <= 0 {
		cfg.MaxSessionsPerUser = defaultMaxSessions
	}
	return &Manager{
		engine:  engine,
		loader:  loader,
		store:   store,
		metrics: metrics,
		cfg:     cfg,
		now:     time.Now,
		users:   make(map[int64]*userSessions),
	}
}

// OpenSession loads the user's snapshot, opens a chat session and starts its worker.
func (m *Manager) OpenSession(ctx context.Context, userID int64, prefs models.SessionPrefs) (*SessionInfo, error) {
	var snap models.UserSnapshot
	if m.loader != nil {
		snap = m.loader.Load(ctx, userID)
	}
	s := m.engine.NewSession()
	err := s.Open(ctx, chat.OpenRequest{Prefs: prefs, Profile: snap.Profile, Context: snap.Context})
	if err != nil {
		m.recordError(err)
		m.metrics.Event("open_failed")
		return nil, err
	}

	now := m.now()
	live := newLiveSession(s, userID, m.engine.ProviderName(), m.cfg.QueueSize, now)
	m.persistOpen(ctx, live)

	m.mu.Lock()
	user, ok := m.users[userID]
	if !ok {
		user = newUserSessions()
		m.users[userID] = user
	}
	var evicted *liveSession
	if len(user.sessions) >= m.cfg.MaxSessionsPerUser {
		evicted = user.oldest()
		delete(user.sessions, evicted.session.ID())
	}
	user.sessions[s.ID()] = live
	m.mu.Unlock()

	if evicted != nil {
		log.Printf("worker: evicted session=%s user=%d to open session=%s", evicted.session.ID(), userID, s.ID())
		m.release(evicted, "evicted")
	}
	m.metrics.SessionOpened()
	m.metrics.Event("opened")
	go m.runSession(live)
	info := m.info(live)
	debugLog("worker: opened %s for user=%d", info, userID)
	return info, nil
}

// Get describes a live session owned by userID.
func (m *Manager) Get(userID int64, sessionID string) (*SessionInfo, error) {
	live := m.lookup(userID, sessionID)
	if live == nil {
		return nil, ErrSessionNotFound
	}
	return m.info(live), nil
}

// Send queues a whole-response turn and waits for its outcome.
func (m *Manager) Send(ctx context.Context, userID int64, sessionID string, parts []models.Part) (chat.Outcome, error) {
	return m.submit(ctx, userID, sessionID, task{parts: parts})
}

// Stream queues a streamed turn. chunkFn runs on the session goroutine while
// the caller waits, so it may write to the caller's response.
func (m *Manager) Stream(ctx context.Context, userID int64, sessionID string, parts []models.Part, chunkFn func(string) error) (chat.Outcome, error) {
	return m.submit(ctx, userID, sessionID, task{parts: parts, stream: true, chunkFn: chunkFn})
}

// Close discards a session handle.
func (m *Manager) Close(ctx context.Context, userID int64, sessionID string) error {
	m.mu.Lock()
	user := m.users[userID]
	var live *liveSession
	if user != nil {
		live = user.sessions[sessionID]
		delete(user.sessions, sessionID)
		if len(user.sessions) == 0 {
			delete(m.users, userID)
		}
	}
	m.mu.Unlock()
	if live == nil {
		return ErrSessionNotFound
	}
	m.release(live, "closed")
	if m.loader != nil {
		m.loader.Invalidate(ctx, userID)
	}
	return nil
}

// StartJanitor discards sessions idle for longer than the idle timeout until ctx ends.
func (m *Manager) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

// Shutdown stops every session worker.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	var all []*liveSession
	for userID, user := range m.users {
		for _, live := range user.sessions {
			all = append(all, live)
		}
		delete(m.users, userID)
	}
	m.mu.Unlock()
	for _, live := range all {
		m.release(live, "shutdown")
	}
}

func (m *Manager) sweep() int {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)
	var idle []*liveSession
	m.mu.Lock()
	for userID, user := range m.users {
		for id, live := range user.sessions {
			if live.idleSince(cutoff) {
				idle = append(idle, live)
				delete(user.sessions, id)
			}
		}
		if len(user.sessions) == 0 {
			delete(m.users, userID)
		}
	}
	m.mu.Unlock()
	for _, live := range idle {
		debugLog("worker: session=%s idle, discarding", live.session.ID())
		m.release(live, "expired")
	}
	return len(idle)
}

func (m *Manager) release(live *liveSession, event string) {
	live.stop()
	m.metrics.SessionClosed()
	m.metrics.Event(event)
}

func (m *Manager) lookup(userID int64, sessionID string) *liveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[userID]
	if user == nil {
		return nil
	}
	return user.sessions[sessionID]
}

func (m *Manager) submit(ctx context.Context, userID int64, sessionID string, t task) (chat.Outcome, error) {
	live := m.lookup(userID, sessionID)
	if live == nil {
		return chat.Outcome{}, ErrSessionNotFound
	}
	t.ctx = ctx
	t.resultCh = make(chan taskResult, 1)
	if err := live.enqueue(t); err != nil {
		return chat.Outcome{}, err
	}
	// The worker may still be writing through chunkFn, so wait for its answer
	// rather than for ctx; cancelling ctx aborts the provider call instead.
	ret := <-t.resultCh
	return ret.outcome, ret.err
}

func (m *Manager) runSession(live *liveSession) {
	for {
		select {
		case <-live.stopCh:
			m.drain(live)
			debugLog("worker: session=%s stopped", live.session.ID())
			return
		case t := <-live.taskCh:
			live.setRunning(true, m.now())
			t.resultCh <- m.handle(live, t)
			live.setRunning(false, m.now())
		}
	}
}

// drain fails turns still queued when a session stops.
func (m *Manager) drain(live *liveSession) {
	for {
		select {
		case t := <-live.taskCh:
			t.resultCh <- taskResult{err: ErrSessionNotFound}
		default:
			return
		}
	}
}

func (m *Manager) handle(live *liveSession, t task) taskResult {
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	mode := "send"
	var (
		out chat.Outcome
		err error
	)
	if t.stream {
		mode = "stream"
		out, err = m.stream(ctx, live, t)
	} else {
		out, err = live.session.Send(ctx, t.parts)
	}
	if err != nil {
		m.recordError(err)
		return taskResult{err: err}
	}
	m.metrics.Outcome(live.provider, mode, string(out.Kind))
	m.persistTurn(ctx, live, t.parts, out)
	return taskResult{outcome: out}
}

func (m *Manager) stream(ctx context.Context, live *liveSession, t task) (chat.Outcome, error) {
	var (
		out     chat.Outcome
		err     error
		started = m.now()
		first   = true
	)
	live.session.SendStream(ctx, t.parts, chat.StreamCallbacks{
		OnChunk: func(text string) error {
			if first {
				first = false
				m.metrics.ObserveFirstChunkLatency(m.now().Sub(started))
			}
			if t.chunkFn == nil {
				return nil
			}
			return t.chunkFn(text)
		},
		OnError:    func(e error) { err = e },
		OnComplete: func(o chat.Outcome) { out = o },
	})
	return out, err
}

func (m *Manager) recordError(err error) {
	var pe *chat.ProviderError
	if errors.As(err, &pe) {
		m.metrics.ProviderError(m.engine.ProviderName(), string(pe.Kind))
	}
}

func (m *Manager) persistOpen(ctx context.Context, live *liveSession) {
	if m.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	record := &models.Session{ID: live.session.ID(), UserID: live.userID, Provider: live.provider, CreatedAt: live.createdAt}
	if err := m.store.CreateChatSession(ctx, record); err != nil {
		log.Printf("worker: persist session=%s failed: %v", record.ID, err)
		return
	}
	for _, turn := range live.session.Transcript() {
		m.appendMessage(ctx, live, turn.Role, turn.Text(), turn.AttachmentCount(), models.OutcomeSeed)
	}
}

func (m *Manager) persistTurn(ctx context.Context, live *liveSession, parts []models.Part, out chat.Outcome) {
	if m.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	user := models.ChatTurn{Parts: parts}
	m.appendMessage(ctx, live, models.RoleUser, user.Text(), user.AttachmentCount(), "")
	m.appendMessage(ctx, live, models.RoleAssistant, out.Message(), 0, string(out.Kind))
}

func (m *Manager) appendMessage(ctx context.Context, live *liveSession, role models.Role, content string, attachments int, outcome string) {
	msg := &models.Message{
		UserID:      live.userID,
		SessionID:   live.session.ID(),
		Role:        role,
		Content:     content,
		Attachments: attachments,
		Outcome:     outcome,
		CreatedAt:   m.now().UTC(),
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		log.Printf("worker: persist %s message session=%s failed: %v", role, msg.SessionID, err)
	}
}

func (m *Manager) info(live *liveSession) *SessionInfo {
	return &SessionInfo{
		ID:         live.session.ID(),
		Provider:   live.provider,
		State:      live.session.State(),
		Transcript: live.session.Transcript(),
		CreatedAt:  live.createdAt,
		LastActive: live.lastActive(),
	}
}

func (i *SessionInfo) String() string {
	return fmt.Sprintf("session %s (%s, %d turns)", i.ID, i.State, len(i.Transcript))
}
