package dispatch

import (
	"context"
	"fmt"

	"github.com/xela07ax/liveops-guard/internal/domain"
)

// Dispatcher — внешняя граница исполнения: push/email/in-game каналы.
// Шлюз сам НЕ ретраит Send: повтор меняет семантику частоты и бюджета,
// решение о повторе — за вызывающей стороной с тем же ProposedAction.
type Dispatcher interface {
	Send(ctx context.Context, action domain.ActionType, playerID string, payload []byte) error
}

// ChannelError несет канал и первопричину; деталь попадает в
// "dispatch_error:<detail>" леджера.
type ChannelError struct {
	Action domain.ActionType
	Cause  error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Action, e.Cause)
}

func (e *ChannelError) Unwrap() error { return e.Cause }
