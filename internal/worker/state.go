package worker

import (
	"context"
	"sync"
	"time"

	"mamachat/internal/models"
	"mamachat/internal/service/chat"
)

type task struct {
	ctx      context.Context
	parts    []models.Part
	stream   bool
	chunkFn  func(string) error
	resultCh chan taskResult
}

type taskResult struct {
	outcome chat.Outcome
	err     error
}

// liveSession is one open chat session and the goroutine serving it.
type liveSession struct {
	session   *chat.Session
	userID    int64
	provider  string
	createdAt time.Time

	taskCh chan task
	stopCh chan struct{}
	once   sync.Once

	mu       sync.Mutex
	lastUsed time.Time
	running  bool
	closed   bool
}

func newLiveSession(s *chat.Session, userID int64, provider string, queueSize int, now time.Time) *liveSession {
	return &liveSession{
		session:   s,
		userID:    userID,
		provider:  provider,
		createdAt: now,
		lastUsed:  now,
		taskCh:    make(chan task, queueSize),
		stopCh:    make(chan struct{}),
	}
}

func (l *liveSession) setRunning(running bool, now time.Time) {
	l.mu.Lock()
	l.running = running
	l.lastUsed = now
	l.mu.Unlock()
}

// idleSince reports whether the session has been idle since before cutoff.
func (l *liveSession) idleSince(cutoff time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.running && len(l.taskCh) == 0 && l.lastUsed.Before(cutoff)
}

func (l *liveSession) lastActive() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastUsed
}

// enqueue adds t without blocking. It fails once the session is stopped so
// every accepted task is answered by the worker or its final drain.
func (l *liveSession) enqueue(t task) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrSessionNotFound
	}
	select {
	case l.taskCh <- t:
		return nil
	default:
		return ErrBusy
	}
}

func (l *liveSession) stop() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.once.Do(func() { close(l.stopCh) })
}

// userSessions holds the live sessions of one user.
type userSessions struct {
	sessions map[string]*liveSession
}

func newUserSessions() *userSessions {
	return &userSessions{sessions: make(map[string]*liveSession)}
}

// oldest returns the least recently used session.
func (u *userSessions) oldest() *liveSession {
	var out *liveSession
	for _, l := range u.sessions {
		if out == nil || l.lastActive().Before(out.lastActive()) {
			out = l
		}
	}
	return out
}
