package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/xela07ax/liveops-guard/internal/domain"
)

// SentRecord — что и кому «отправил» мок, для ассертов.
type SentRecord struct {
	Action   domain.ActionType
	PlayerID string
	Payload  []byte
}

// MockDispatcher имитирует каналы доставки для dev-запусков и тестов.
type MockDispatcher struct {
	// Latency эмулирует сетевую задержку канала; 0 = случайные 5-30мс
	Latency time.Duration

	mu   sync.Mutex
	fail map[domain.ActionType]error
	sent []SentRecord
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{fail: make(map[domain.ActionType]error)}
}

// FailChannel заставляет канал падать с заданной ошибкой (nil — снять сбой).
func (m *MockDispatcher) FailChannel(action domain.ActionType, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, action)
		return
	}
	m.fail[action] = err
}

func (m *MockDispatcher) Send(ctx context.Context, action domain.ActionType, playerID string, payload []byte) error {
	latency := m.Latency
	if latency == 0 {
		latency = time.Duration(5+rand.Intn(25)) * time.Millisecond
	}

	select {
	case <-time.After(latency):
		// Имитация работы канала
	case <-ctx.Done():
		return ctx.Err()
	}

	if action == domain.ActionNone {
		return &ChannelError{Action: action, Cause: fmt.Errorf("nothing to deliver")}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fail[action]; ok {
		return &ChannelError{Action: action, Cause: err}
	}
	m.sent = append(m.sent, SentRecord{Action: action, PlayerID: playerID, Payload: payload})
	return nil
}

// Sent возвращает копию всех успешно отправленных записей.
func (m *MockDispatcher) Sent() []SentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentRecord, len(m.sent))
	copy(out, m.sent)
	return out
}
