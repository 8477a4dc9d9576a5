package service

import (
	"context"

	"github.com/xela07ax/liveops-guard/internal/domain"
	"github.com/xela07ax/liveops-guard/internal/policy"
)

// ConstraintsService — операторские правки safety rails. Тонкая обертка над
// Policy Store: валидация и рассылка сигналов живут там, консоль — только API.
type ConstraintsService struct {
	store *policy.Store
}

func NewConstraintsService(store *policy.Store) *ConstraintsService {
	return &ConstraintsService{store: store}
}

func (s *ConstraintsService) Current() domain.SafetyConstraints {
	return s.store.Current()
}

// Update сохраняет новую версию целиком и уведомляет шлюзы.
// ConfigurationInvalid отклоняется здесь же — до персистентности.
func (s *ConstraintsService) Update(ctx context.Context, c domain.SafetyConstraints) (domain.SafetyConstraints, error) {
	if err := s.store.Update(ctx, c); err != nil {
		return domain.SafetyConstraints{}, err
	}
	return s.store.Current(), nil
}

// SetCompliance — явный рубильник bypass с документированным жизненным циклом:
// читается каждым решением, мутируется только через Update.
func (s *ConstraintsService) SetCompliance(ctx context.Context, enabled bool) (domain.SafetyConstraints, error) {
	if err := s.store.SetCompliance(ctx, enabled); err != nil {
		return domain.SafetyConstraints{}, err
	}
	return s.store.Current(), nil
}
