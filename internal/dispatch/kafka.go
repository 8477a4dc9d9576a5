package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/xela07ax/liveops-guard/internal/domain"
	"github.com/xela07ax/liveops-guard/internal/infra"
	"go.uber.org/zap"
)

// envelope — формат сообщения для воркеров каналов доставки.
type envelope struct {
	ActionType domain.ActionType `json:"action_type"`
	PlayerID   string            `json:"player_id"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
	SentAt     time.Time         `json:"sent_at"`
}

// KafkaDispatcher публикует одобренные действия в топики по каналам.
// Ключ сообщения — playerID: все действия одного игрока попадают в одну
// партицию и доезжают упорядоченно.
type KafkaDispatcher struct {
	writer *kafka.Writer
	topics map[domain.ActionType]string
	logger *zap.Logger
}

func NewKafkaDispatcher(cfg infra.KafkaConfig, logger *zap.Logger) *KafkaDispatcher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll, // Подтверждение отправки = реальная доставка в брокер
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaDispatcher{
		writer: w,
		topics: map[domain.ActionType]string{
			domain.ActionPushNotification: cfg.TopicPush,
			domain.ActionInGameOffer:      cfg.TopicOffer,
			domain.ActionLevelAdjustment:  cfg.TopicAdjust,
			domain.ActionResourceGift:     cfg.TopicGift,
		},
		logger: logger.Named("kafka-dispatch"),
	}
}

func (d *KafkaDispatcher) Send(ctx context.Context, action domain.ActionType, playerID string, payload []byte) error {
	topic, ok := d.topics[action]
	if !ok || topic == "" {
		return &ChannelError{Action: action, Cause: fmt.Errorf("no delivery topic configured")}
	}

	value, err := json.Marshal(envelope{
		ActionType: action,
		PlayerID:   playerID,
		Payload:    payload,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return &ChannelError{Action: action, Cause: err}
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(playerID),
		Value: value,
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		d.logger.Error("kafka write failed",
			zap.String("topic", topic),
			zap.String("player_id", playerID),
			zap.Error(err),
		)
		return &ChannelError{Action: action, Cause: err}
	}
	return nil
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
