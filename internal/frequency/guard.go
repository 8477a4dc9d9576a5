package frequency

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/xela07ax/liveops-guard/internal/domain"
	"go.uber.org/zap"
)

// Window — трейлинг-окно частотного лимита.
const Window = 7 * 24 * time.Hour

const shardCount = 16

// Guard считает исполненные вмешательства игрока в скользящем 7-дневном окне.
// Счетчики независимы между игроками, поэтому шардируются по playerID — без
// единого глобального замка. Внутри одного игрока чтение и запись взаимно
// исключены шардовым мьютексом.
//
// Граница окна: действие ровно 7-дневной давности в счет НЕ входит
// (окно строго внутри, открыто на дальнем крае).
type Guard struct {
	shards [shardCount]*shard
	logger *zap.Logger
	now    func() time.Time
}

type shard struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

func NewGuard(logger *zap.Logger) *Guard {
	g := &Guard{
		logger: logger.Named("frequency"),
		now:    time.Now,
	}
	for i := range g.shards {
		g.shards[i] = &shard{windows: make(map[string][]time.Time)}
	}
	return g
}

// CountRecent возвращает число исполненных действий игрока строго внутри
// трейлинг-окна. Попутно отбрасывает логически истекшие отметки.
func (g *Guard) CountRecent(playerID string) int {
	cutoff := g.now().Add(-Window)
	s := g.shardFor(playerID)

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.windows[playerID]
	live := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		delete(s.windows, playerID)
	} else {
		s.windows[playerID] = live
	}
	return len(live)
}

// Record фиксирует исполненное действие. Вызывается только после вердикта
// EXECUTED — блокировки и сбои в окно не попадают.
func (g *Guard) Record(playerID string, ts time.Time) {
	s := g.shardFor(playerID)
	s.mu.Lock()
	s.windows[playerID] = append(s.windows[playerID], ts)
	s.mu.Unlock()
}

// Warmup восстанавливает окна из EXECUTED записей леджера при старте шлюза.
func (g *Guard) Warmup(entries []domain.LedgerEntry) {
	for _, e := range entries {
		if e.Verdict != domain.VerdictExecuted {
			continue
		}
		g.Record(e.PlayerID, e.Timestamp)
	}
	g.logger.Info("frequency guard warmed up", zap.Int("entries", len(entries)))
}

func (g *Guard) shardFor(playerID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(playerID))
	return g.shards[h.Sum32()%shardCount]
}
