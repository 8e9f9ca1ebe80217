package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/saltline/castlog/internal/backend"
)

// mockBackend is an in-memory Adapter keyed by client_uuid, mirroring the
// upsert-by-natural-key contract. Scripted errors are consumed one per
// upsert call before any state changes.
type mockBackend struct {
	mu stdsync.Mutex

	nextSessionID int64
	nextCatchID   int64

	sessions map[string]backend.RemoteSession
	catches  map[string]backend.RemoteCatch

	scriptedErrs []error

	sessionPayloads []backend.SessionPayload
	catchPayloads   []backend.CatchPayload

	remoteSessions []backend.RemoteSession
	remoteCatches  []backend.RemoteCatch

	gate chan struct{}
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		nextSessionID: 101,
		nextCatchID:   501,
		sessions:      make(map[string]backend.RemoteSession),
		catches:       make(map[string]backend.RemoteCatch),
	}
}

func (m *mockBackend) failNextWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scriptedErrs = append(m.scriptedErrs, errs...)
}

func (m *mockBackend) popScriptedErr() error {
	if len(m.scriptedErrs) == 0 {
		return nil
	}
	err := m.scriptedErrs[0]
	m.scriptedErrs = m.scriptedErrs[1:]
	return err
}

func (m *mockBackend) UpsertSession(ctx context.Context, payload backend.SessionPayload) (backend.RemoteSession, error) {
	m.mu.Lock()
	m.sessionPayloads = append(m.sessionPayloads, payload)
	scripted := m.popScriptedErr()
	gate := m.gate
	m.mu.Unlock()

	// The attempt is recorded before blocking so tests can observe an
	// in-flight cycle.
	if gate != nil {
		<-gate
	}
	if scripted != nil {
		return backend.RemoteSession{}, scripted
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.sessions[payload.ClientUUID]
	if !exists {
		record = backend.RemoteSession{ID: m.nextSessionID}
		m.nextSessionID++
	}
	record.SessionPayload = payload
	m.sessions[payload.ClientUUID] = record
	return record, nil
}

func (m *mockBackend) UpsertCatch(ctx context.Context, payload backend.CatchPayload) (backend.RemoteCatch, error) {
	m.mu.Lock()
	m.catchPayloads = append(m.catchPayloads, payload)
	scripted := m.popScriptedErr()
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if scripted != nil {
		return backend.RemoteCatch{}, scripted
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.catches[payload.ClientUUID]
	if !exists {
		record = backend.RemoteCatch{ID: m.nextCatchID}
		m.nextCatchID++
	}
	record.CatchPayload = payload
	m.catches[payload.ClientUUID] = record
	return record, nil
}

func (m *mockBackend) SessionsUpdatedSince(ctx context.Context, userID string, since *time.Time) ([]backend.RemoteSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []backend.RemoteSession
	for _, record := range m.remoteSessions {
		if record.UserID != userID {
			continue
		}
		if since != nil && !record.UpdatedAt.After(*since) {
			continue
		}
		matched = append(matched, record)
	}
	return matched, nil
}

func (m *mockBackend) CatchesUpdatedSince(ctx context.Context, since *time.Time) ([]backend.RemoteCatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []backend.RemoteCatch
	for _, record := range m.remoteCatches {
		if since != nil && !record.UpdatedAt.After(*since) {
			continue
		}
		matched = append(matched, record)
	}
	return matched, nil
}

func (m *mockBackend) sessionUpsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessionPayloads)
}

func (m *mockBackend) catchUpsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.catchPayloads)
}

func (m *mockBackend) storedSessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *mockBackend) storedCatchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.catches)
}
