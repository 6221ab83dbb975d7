package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory implementation of PredictionStore
// It's safe for concurrent use by multiple goroutines
type MemoryStorage struct {
	mu      sync.RWMutex
	records []PredictionRecord
}

// NewMemoryStorage creates a new in-memory storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make([]PredictionRecord, 0),
	}
}

// Store appends a prediction, keeping records ordered by timestamp
func (m *MemoryStorage) Store(ctx context.Context, record PredictionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := sort.Search(len(m.records), func(i int) bool {
		return m.records[i].Timestamp.After(record.Timestamp)
	})
	m.records = append(m.records, PredictionRecord{})
	copy(m.records[i+1:], m.records[i:])
	m.records[i] = record

	return nil
}

// List retrieves predictions within a time range
func (m *MemoryStorage) List(ctx context.Context, start, end time.Time) ([]PredictionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]PredictionRecord, 0)
	for _, r := range m.records {
		if !start.IsZero() && r.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && r.Timestamp.After(end) {
			continue
		}
		result = append(result, r)
	}

	return result, nil
}

// Latest returns the n most recent predictions, newest first
func (m *MemoryStorage) Latest(ctx context.Context, n int) ([]PredictionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n < 0 {
		n = 0
	}
	if n > len(m.records) {
		n = len(m.records)
	}
	result := make([]PredictionRecord, 0, n)
	for i := len(m.records) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, m.records[i])
	}

	return result, nil
}

// Close cleans up the storage resources
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Clear all data
	m.records = nil
	return nil
}

// Ensure MemoryStorage implements PredictionStore
var _ PredictionStore = (*MemoryStorage)(nil)
