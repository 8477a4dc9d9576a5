package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/liveops-guard/internal/domain"
	"github.com/xela07ax/liveops-guard/internal/infra"
	"go.uber.org/zap"
)

// Repository описывает требования стора к хранилищу версий constraints.
type Repository interface {
	// Latest возвращает constraints максимальной версии.
	Latest(ctx context.Context) (domain.SafetyConstraints, error)
	// InsertVersion пишет новую версию и возвращает её номер.
	InsertVersion(ctx context.Context, c domain.SafetyConstraints) (int, error)
}

// Store — Policy Store: in-memory снапшот constraints поверх Postgres.
// Hot Path шлюза читает только память; БД участвует лишь в Refresh/Update.
// Каждое решение берет Current() один раз — атомарный снапшот на всё решение,
// обновление посреди полета не применяется частично.
type Store struct {
	mu      sync.RWMutex
	current domain.SafetyConstraints

	repo   Repository
	rdb    *redis.Client // nil = один инстанс, без рассылки сигналов
	logger *zap.Logger
}

func NewStore(repo Repository, rdb *redis.Client, logger *zap.Logger) *Store {
	return &Store{
		repo:   repo,
		rdb:    rdb,
		logger: logger.Named("policy"),
	}
}

// Current возвращает иммутабельный снапшот действующих constraints.
func (s *Store) Current() domain.SafetyConstraints {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Refresh выполняет «холодную загрузку» актуальной версии из БД в память
// (старт сервиса и каждый refresh-сигнал из Redis).
func (s *Store) Refresh(ctx context.Context) error {
	c, err := s.repo.Latest(ctx)
	if err != nil {
		return fmt.Errorf("policy: refresh: %w", err)
	}

	s.mu.Lock()
	s.current = c
	s.mu.Unlock()

	s.logger.Info("constraints refreshed",
		zap.Int("version", c.Version),
		zap.Bool("compliance_enabled", c.ComplianceEnabled),
	)
	return nil
}

// Update валидирует и сохраняет новую версию, затем будит все шлюзы.
// Некорректная конфигурация отклоняется целиком, без молчаливого clamp.
// Решения, начатые до коммита обновления, доживают на старом снапшоте.
func (s *Store) Update(ctx context.Context, c domain.SafetyConstraints) error {
	if err := c.Validate(); err != nil {
		return err
	}

	version, err := s.repo.InsertVersion(ctx, c)
	if err != nil {
		return fmt.Errorf("policy: update: %w", err)
	}
	c.Version = version

	s.mu.Lock()
	s.current = c
	s.mu.Unlock()

	s.logger.Info("constraints updated", zap.Int("version", version))
	return s.notifyUpdate(ctx)
}

// SetCompliance переключает только bypass-рубильник, не трогая лимиты.
// Это единственный путь мутации флага — никакого ambient-состояния.
func (s *Store) SetCompliance(ctx context.Context, enabled bool) error {
	c := s.Current()
	c.ComplianceEnabled = enabled
	return s.Update(ctx, c)
}

// notifyUpdate отправляет широковещательный сигнал в Redis.
// Все инстансы шлюза, подписанные на канал, перечитают constraints из БД.
func (s *Store) notifyUpdate(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Publish(ctx, infra.RedisChanConstraints, "refresh").Err()
}
