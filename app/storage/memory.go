package storage

import (
	"container/ring"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps last N verdicts in memory, thread-safe. Used when no database is configured.
type Memory struct {
	verdicts *ring.Ring
	size     int
	lock     sync.RWMutex
}

// NewMemory creates new in-memory verdicts storage, minimal size is 1
func NewMemory(size int) *Memory {
	if size < 1 {
		size = 1
	}
	return &Memory{verdicts: ring.New(size), size: size}
}

// Write adds a verdict, the oldest one is dropped if the storage is full. ID and timestamp are set if empty.
func (m *Memory) Write(_ context.Context, entry Verdict) (Verdict, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.verdicts.Value = entry
	m.verdicts = m.verdicts.Next()
	return entry, nil
}

// Read returns up to limit last verdicts, most recent first. All kept verdicts if limit is 0 or less.
func (m *Memory) Read(_ context.Context, limit int) ([]Verdict, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if limit <= 0 || limit > m.size {
		limit = m.size
	}
	res := make([]Verdict, 0, limit)
	// the current position is the next to write, so the most recent is right before it
	for r := m.verdicts.Prev(); len(res) < limit; r = r.Prev() {
		v, ok := r.Value.(Verdict)
		if !ok {
			break // not filled yet
		}
		res = append(res, v)
		if r == m.verdicts {
			break
		}
	}
	return res, nil
}

// Size returns the max number of kept verdicts
func (m *Memory) Size() int {
	return m.size
}
