package eventlog

import (
	"context"
	"sync"

	"adDecisioning/domain"
)

// MemoryWriter keeps events and dead letters in process. It backs the
// server when no database is configured.
type MemoryWriter struct {
	mu      sync.Mutex
	events  []domain.Event
	letters []domain.DeadLetter
	limit   int
}

var (
	_ Writer           = (*MemoryWriter)(nil)
	_ DeadLetterWriter = (*MemoryWriter)(nil)
)

// NewMemoryWriter retains at most limit events; zero means unbounded.
func NewMemoryWriter(limit int) *MemoryWriter {
	return &MemoryWriter{limit: limit}
}

func (m *MemoryWriter) WriteEvents(ctx context.Context, events []domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	if m.limit > 0 && len(m.events) > m.limit {
		m.events = append([]domain.Event(nil), m.events[len(m.events)-m.limit:]...)
	}
	return nil
}

func (m *MemoryWriter) WriteDeadLetters(ctx context.Context, letters []domain.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.letters = append(m.letters, letters...)
	return nil
}

func (m *MemoryWriter) Events() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.events...)
}

func (m *MemoryWriter) DeadLetters() []domain.DeadLetter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DeadLetter(nil), m.letters...)
}
