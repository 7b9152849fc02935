package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"portfolio-chat/internal/utils"
)

// Backend creates and ends remote sessions.
type Backend interface {
	StartSession(ctx context.Context) (string, error)
	EndSession(ctx context.Context, sessionID string) error
}

var ErrReleased = errors.New("session released")

// Manager owns the session id for one client run.
type Manager struct {
	backend        Backend
	logger         *utils.Logger
	startTimeout   time.Duration
	releaseTimeout time.Duration

	group singleflight.Group

	mu       sync.Mutex
	id       string
	released bool

	releaseOnce sync.Once
	releaseDone chan struct{}
}

func NewManager(backend Backend, startTimeout, releaseTimeout time.Duration, logger *utils.Logger) *Manager {
	return &Manager{
		backend:        backend,
		logger:         logger,
		startTimeout:   startTimeout,
		releaseTimeout: releaseTimeout,
		releaseDone:    make(chan struct{}),
	}
}

// Start returns the session id, creating the session on first use.
// Concurrent callers share one request. A failed start is not cached.
func (m *Manager) Start(ctx context.Context) (string, error) {
	if id, ok := m.ID(); ok {
		return id, nil
	}
	if m.isReleased() {
		return "", ErrReleased
	}

	ch := m.group.DoChan("start", func() (any, error) {
		if id, ok := m.ID(); ok {
			return id, nil
		}
		callCtx := context.WithoutCancel(ctx)
		if m.startTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, m.startTimeout)
			defer cancel()
		}
		id, err := m.backend.StartSession(callCtx)
		if err != nil {
			return "", err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.released {
			// Release ran while we waited; end the orphan right away.
			go m.end(id)
			return "", ErrReleased
		}
		m.id = id
		return id, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			m.logger.Warnf("start session: %v", res.Err)
			return "", res.Err
		}
		id := res.Val.(string)
		m.logger.WithField("session", id).Infof("session started")
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ID reports the session id once Start has succeeded.
func (m *Manager) ID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.id != ""
}

func (m *Manager) isReleased() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// Release ends the session in the background. Only the first call does
// anything; it never blocks the caller.
func (m *Manager) Release() {
	m.releaseOnce.Do(func() {
		m.mu.Lock()
		id := m.id
		m.released = true
		m.id = ""
		m.mu.Unlock()

		if id == "" {
			close(m.releaseDone)
			return
		}
		go func() {
			defer close(m.releaseDone)
			m.end(id)
		}()
	})
}

func (m *Manager) end(id string) {
	ctx := context.Background()
	if m.releaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.releaseTimeout)
		defer cancel()
	}
	logger := m.logger.WithField("session", id)
	if err := m.backend.EndSession(ctx, id); err != nil {
		logger.Warnf("end session: %v", err)
		return
	}
	logger.Infof("session ended")
}

// Wait gives a pending Release up to timeout to finish. It reports whether
// the release completed.
func (m *Manager) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-m.releaseDone:
		return true
	case <-timer.C:
		return false
	}
}
