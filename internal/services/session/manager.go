package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/common"
	"github.com/ternarybob/lector/internal/interfaces"
	"github.com/ternarybob/lector/internal/models"
)

// Manager owns session state between turns. Sessions persist in storage
// so conversations survive a restart; a cron sweep expires sessions idle
// past the configured timeout. Expiry releases session state only, the
// documents a session referenced stay stored.
type Manager struct {
	sessionStorage interfaces.SessionStorage
	logger         arbor.ILogger
	idleTimeout    time.Duration
	sweepSchedule  string
	cron           *cron.Cron

	mu   sync.Mutex
	busy map[string]bool
}

// Compile-time assertion
var _ interfaces.SessionManager = (*Manager)(nil)

// NewManager creates a session manager
func NewManager(sessionStorage interfaces.SessionStorage, config *common.SessionConfig, logger arbor.ILogger) (*Manager, error) {
	idleTimeout, err := time.ParseDuration(config.IdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid idle timeout '%s': %w", config.IdleTimeout, err)
	}

	schedule := config.SweepSchedule
	if schedule == "" {
		schedule = "@every 1m"
	}

	return &Manager{
		sessionStorage: sessionStorage,
		logger:         logger,
		idleTimeout:    idleTimeout,
		sweepSchedule:  schedule,
		cron:           cron.New(),
		busy:           make(map[string]bool),
	}, nil
}

// Start schedules the idle-session sweep
func (m *Manager) Start() error {
	if _, err := m.cron.AddFunc(m.sweepSchedule, m.sweepIdleSessions); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	m.cron.Start()

	m.logger.Info().
		Str("schedule", m.sweepSchedule).
		Dur("idle_timeout", m.idleTimeout).
		Msg("Session expiry sweep started")

	return nil
}

// Stop halts the idle-session sweep
func (m *Manager) Stop() {
	m.cron.Stop()
}

// GetOrCreate returns the session, creating and persisting it on first use
func (m *Manager) GetOrCreate(sessionID string) (*models.SessionState, error) {
	if sessionID == "" {
		sessionID = common.NewSessionID()
	}

	session, err := m.sessionStorage.GetSession(sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	now := time.Now()
	session = &models.SessionState{
		ID:           sessionID,
		Phase:        models.PhaseIdle,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := m.sessionStorage.SaveSession(session); err != nil {
		return nil, fmt.Errorf("failed to create session %s: %w", sessionID, err)
	}

	m.logger.Debug().Str("session_id", sessionID).Msg("Session created")
	return session, nil
}

// Get returns an existing session, ErrNotFound when unknown
func (m *Manager) Get(sessionID string) (*models.SessionState, error) {
	return m.sessionStorage.GetSession(sessionID)
}

// RecordTurn appends a turn to the conversation and persists the session
func (m *Manager) RecordTurn(sessionID string, turn models.ConversationTurn) error {
	session, err := m.sessionStorage.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	session.Turns = append(session.Turns, turn)
	session.LastActivity = time.Now()

	if err := m.sessionStorage.SaveSession(session); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", sessionID, err)
	}
	return nil
}

// Save persists mutated session state and refreshes its activity time
func (m *Manager) Save(session *models.SessionState) error {
	session.LastActivity = time.Now()
	if err := m.sessionStorage.SaveSession(session); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", session.ID, err)
	}
	return nil
}

// Acquire reserves the session for one turn. Turns within a session are
// strictly serialized; an overlapping turn conflicts without touching
// session state.
func (m *Manager) Acquire(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy[sessionID] {
		return fmt.Errorf("session %s already handling a turn: %w", sessionID, interfaces.ErrStateConflict)
	}
	m.busy[sessionID] = true
	return nil
}

// Release frees a session reserved by Acquire
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.busy, sessionID)
}

// Expire releases a session's state. Referenced documents are retained.
func (m *Manager) Expire(sessionID string) error {
	if err := m.sessionStorage.DeleteSession(sessionID); err != nil {
		return fmt.Errorf("failed to expire session %s: %w", sessionID, err)
	}

	m.mu.Lock()
	delete(m.busy, sessionID)
	m.mu.Unlock()

	m.logger.Info().Str("session_id", sessionID).Msg("Session expired")
	return nil
}

// expireIfIdle deletes the session unless a turn holds it. The busy
// check and the delete happen under the same lock so a turn acquiring
// the session cannot interleave between them.
func (m *Manager) expireIfIdle(sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy[sessionID] {
		return false, nil
	}
	if err := m.sessionStorage.DeleteSession(sessionID); err != nil {
		return false, fmt.Errorf("failed to expire session %s: %w", sessionID, err)
	}

	m.logger.Info().Str("session_id", sessionID).Msg("Session expired")
	return true, nil
}

// sweepIdleSessions expires sessions whose last activity is older than
// the idle timeout. Sessions mid-turn are skipped.
func (m *Manager) sweepIdleSessions() {
	sessions, err := m.sessionStorage.ListSessions()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Session sweep failed to list sessions")
		return
	}

	cutoff := time.Now().Add(-m.idleTimeout)
	expired := 0
	for _, session := range sessions {
		if session.LastActivity.After(cutoff) {
			continue
		}

		removed, err := m.expireIfIdle(session.ID)
		if err != nil {
			m.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to expire idle session")
			continue
		}
		if removed {
			expired++
		}
	}

	if expired > 0 {
		m.logger.Info().Int("expired", expired).Msg("Idle session sweep completed")
	}
}
