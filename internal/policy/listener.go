package policy

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/liveops-guard/internal/infra"
	"go.uber.org/zap"
)

// StartListener — «живучая» подписка на refresh-сигналы констрейнтов.
// Обрабатывает переподключения: при каждом успешном коннекте выполняется
// полный Refresh, чтобы не потерялся сигнал, ушедший во время обрыва.
func (s *Store) StartListener(ctx context.Context) {
	if s.rdb == nil {
		return
	}

	for {
		pubsub := s.rdb.Subscribe(ctx, infra.RedisChanConstraints)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("failed to subscribe to constraints channel", zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		// Ресинк при каждом успешном коннекте
		if err := s.Refresh(ctx); err != nil {
			s.logger.Error("constraints resync failed on reconnect", zap.Error(err))
		}

		s.consume(ctx, pubsub)
		pubsub.Close()

		if ctx.Err() != nil {
			return
		}
		time.Sleep(1 * time.Second) // И идем на переподключение
	}
}

func (s *Store) consume(ctx context.Context, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return // Канал закрыт, наружный цикл переподключится
			}
			s.logger.Debug("constraints refresh signal received", zap.String("payload", msg.Payload))
			if err := s.Refresh(ctx); err != nil {
				s.logger.Error("constraints refresh failed", zap.Error(err))
			}
		}
	}
}
