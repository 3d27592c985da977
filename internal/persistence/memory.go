package persistence

import (
	"context"
	"sort"
	"sync"

	"example.com/vitals/internal/domain"
)

// MemoryStore keeps snapshot history in memory for local development.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]domain.VitalsSnapshot
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string][]domain.VitalsSnapshot)}
}

func key(tenantID, userID string) string {
	return tenantID + "/" + userID
}

// SaveSnapshot stores s for the user.
func (m *MemoryStore) SaveSnapshot(_ context.Context, tenantID, userID string, s domain.VitalsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(tenantID, userID)
	m.snapshots[k] = append(m.snapshots[k], s)
	return nil
}

// ListSnapshots returns up to limit snapshots after cursor, most recent first.
func (m *MemoryStore) ListSnapshots(_ context.Context, tenantID, userID string, cursor *domain.SnapshotCursor, limit int) ([]domain.VitalsSnapshot, *domain.SnapshotCursor, error) {
	m.mu.RLock()
	all := append([]domain.VitalsSnapshot(nil), m.snapshots[key(tenantID, userID)]...)
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CapturedAt.Equal(all[j].CapturedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CapturedAt.After(all[j].CapturedAt)
	})

	page := make([]domain.VitalsSnapshot, 0, limit)
	for _, s := range all {
		if len(page) == limit {
			break
		}
		if cursor != nil && !cursor.Before(s) {
			continue
		}
		page = append(page, s)
	}
	return page, NextCursor(page, limit), nil
}

// Recorder binds the store to one session identity.
func (m *MemoryStore) Recorder(tenantID, userID string) *MemoryRecorder {
	return &MemoryRecorder{store: m, tenantID: tenantID, userID: userID}
}

// MemoryRecorder records snapshots for a fixed tenant and user.
type MemoryRecorder struct {
	store    *MemoryStore
	tenantID string
	userID   string
}

// RecordSnapshot stores s.
func (r *MemoryRecorder) RecordSnapshot(ctx context.Context, s domain.VitalsSnapshot) error {
	return r.store.SaveSnapshot(ctx, r.tenantID, r.userID, s)
}
