package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lector/internal/common"
	"github.com/ternarybob/lector/internal/interfaces"
	"github.com/ternarybob/lector/internal/models"
)

type memorySessionStorage struct {
	sessions map[string]*models.SessionState
}

func newMemorySessionStorage() *memorySessionStorage {
	return &memorySessionStorage{sessions: make(map[string]*models.SessionState)}
}

func (m *memorySessionStorage) SaveSession(session *models.SessionState) error {
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *memorySessionStorage) GetSession(id string) (*models.SessionState, error) {
	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, interfaces.ErrNotFound)
	}
	copied := *session
	return &copied, nil
}

func (m *memorySessionStorage) ListSessions() ([]*models.SessionState, error) {
	out := make([]*models.SessionState, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (m *memorySessionStorage) DeleteSession(id string) error {
	delete(m.sessions, id)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *memorySessionStorage) {
	t.Helper()
	storage := newMemorySessionStorage()
	manager, err := NewManager(storage, &common.SessionConfig{
		IdleTimeout:   "30m",
		SweepSchedule: "@every 1m",
	}, arbor.NewLogger())
	require.NoError(t, err)
	return manager, storage
}

func TestGetOrCreate(t *testing.T) {
	manager, _ := newTestManager(t)

	session, err := manager.GetOrCreate("session_abc")
	require.NoError(t, err)
	assert.Equal(t, "session_abc", session.ID)
	assert.Equal(t, models.PhaseIdle, session.Phase)

	// Second call returns the same session
	again, err := manager.GetOrCreate("session_abc")
	require.NoError(t, err)
	assert.Equal(t, session.ID, again.ID)
	assert.Equal(t, session.CreatedAt.Unix(), again.CreatedAt.Unix())
}

func TestGetOrCreate_GeneratesID(t *testing.T) {
	manager, _ := newTestManager(t)

	session, err := manager.GetOrCreate("")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Contains(t, session.ID, "session_")
}

func TestRecordTurn(t *testing.T) {
	manager, _ := newTestManager(t)

	session, err := manager.GetOrCreate("session_abc")
	require.NoError(t, err)

	err = manager.RecordTurn(session.ID, models.ConversationTurn{
		Role:    models.TurnRoleUser,
		Content: "what is this document about?",
	})
	require.NoError(t, err)

	reloaded, err := manager.Get(session.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Turns, 1)
	assert.Equal(t, models.TurnRoleUser, reloaded.Turns[0].Role)
	assert.False(t, reloaded.Turns[0].Timestamp.IsZero())
}

func TestAcquireRelease(t *testing.T) {
	manager, _ := newTestManager(t)

	require.NoError(t, manager.Acquire("session_abc"))

	// Overlapping turn conflicts
	err := manager.Acquire("session_abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrStateConflict)

	// Other sessions are unaffected
	require.NoError(t, manager.Acquire("session_other"))

	manager.Release("session_abc")
	require.NoError(t, manager.Acquire("session_abc"))
}

func TestExpire(t *testing.T) {
	manager, _ := newTestManager(t)

	session, err := manager.GetOrCreate("session_abc")
	require.NoError(t, err)

	require.NoError(t, manager.Expire(session.ID))

	_, err = manager.Get(session.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestSweepIdleSessions(t *testing.T) {
	manager, storage := newTestManager(t)

	stale, err := manager.GetOrCreate("session_stale")
	require.NoError(t, err)
	stale.LastActivity = time.Now().Add(-time.Hour)
	require.NoError(t, storage.SaveSession(stale))

	_, err = manager.GetOrCreate("session_fresh")
	require.NoError(t, err)

	manager.sweepIdleSessions()

	_, err = manager.Get("session_stale")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	_, err = manager.Get("session_fresh")
	assert.NoError(t, err)
}

func TestSweepSkipsBusySessions(t *testing.T) {
	manager, storage := newTestManager(t)

	session, err := manager.GetOrCreate("session_busy")
	require.NoError(t, err)
	session.LastActivity = time.Now().Add(-time.Hour)
	require.NoError(t, storage.SaveSession(session))

	require.NoError(t, manager.Acquire(session.ID))
	manager.sweepIdleSessions()

	_, err = manager.Get(session.ID)
	assert.NoError(t, err)
}

func TestExpireIfIdle_SkipsAcquiredSession(t *testing.T) {
	manager, storage := newTestManager(t)

	session, err := manager.GetOrCreate("session_busy")
	require.NoError(t, err)
	session.LastActivity = time.Now().Add(-time.Hour)
	require.NoError(t, storage.SaveSession(session))

	// A turn acquiring the session after the sweep listed it must not
	// have its state deleted out from under it
	require.NoError(t, manager.Acquire(session.ID))
	removed, err := manager.expireIfIdle(session.ID)
	require.NoError(t, err)
	assert.False(t, removed)
	_, err = manager.Get(session.ID)
	assert.NoError(t, err)

	manager.Release(session.ID)
	removed, err = manager.expireIfIdle(session.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = manager.Get(session.ID)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}
