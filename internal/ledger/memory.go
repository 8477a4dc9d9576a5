package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/liveops-guard/internal/domain"
)

// MemoryStorage — потокобезопасное in-memory хранилище журнала.
// Используется в тестах и в локальном запуске без Postgres.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]domain.LedgerEntry
	order   []string // порядок вставки, для стабильной сортировки при равных ts
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string]domain.LedgerEntry)}
}

func (m *MemoryStorage) Insert(_ context.Context, e domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[e.ID]; exists {
		return fmt.Errorf("memory ledger: duplicate entry id %s", e.ID)
	}
	m.entries[e.ID] = e
	m.order = append(m.order, e.ID)
	return nil
}

func (m *MemoryStorage) Finalize(_ context.Context, id string, verdict domain.Verdict, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return fmt.Errorf("memory ledger: entry %s not found", id)
	}
	if e.Verdict != verdictPending {
		return fmt.Errorf("memory ledger: entry %s is not pending", id)
	}
	e.Verdict = verdict
	e.BlockReason = reason
	m.entries[id] = e
	return nil
}

func (m *MemoryStorage) Query(_ context.Context, playerID string, since time.Time) ([]domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.LedgerEntry
	for _, id := range m.order {
		e := m.entries[id]
		if e.PlayerID != playerID || e.Timestamp.Before(since) {
			continue
		}
		out = append(out, e)
	}
	// Свежие первыми
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStorage) RecentExecuted(_ context.Context, since time.Time) ([]domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.LedgerEntry
	for _, id := range m.order {
		e := m.entries[id]
		if e.Verdict != domain.VerdictExecuted || e.Timestamp.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// All — вспомогательный срез для ассертов в тестах.
func (m *MemoryStorage) All() []domain.LedgerEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.LedgerEntry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return out
}
