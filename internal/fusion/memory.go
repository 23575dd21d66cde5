package fusion

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/hazard-fusion-service/internal/domain"
)

// MemoryBackend keeps records in process memory. Writes are serialized by a
// mutex and reads share a read lock. A record whose ID is already stored
// replaces the earlier one.
type MemoryBackend struct {
	mu      sync.RWMutex
	records []domain.SourceRecord
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Append(_ context.Context, rec domain.SourceRecord, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, rec)
	last := len(m.records) - 1
	kept := m.records[:0]
	for i, r := range m.records {
		if i < last && r.ID == rec.ID {
			continue
		}
		if !r.Timestamp.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	// Zero the tail so purged records can be collected.
	clear(m.records[len(kept):])
	m.records = kept
	return nil
}

func (m *MemoryBackend) Range(_ context.Context, from, to time.Time) ([]domain.SourceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.SourceRecord, 0)
	for _, r := range m.records {
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Len returns the number of stored records, purged or not.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
