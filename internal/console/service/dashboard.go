package service

import (
	"context"

	"github.com/xela07ax/liveops-guard/internal/domain"
)

// DashboardRepository — агрегаты консоли (реализуется postgres.ConsoleRepo).
type DashboardRepository interface {
	GetDashboard(ctx context.Context) (*domain.OpsDashboard, error)
	GetChannelBreakdown(ctx context.Context, windowHours int) ([]domain.ChannelPoint, error)
}

type DashboardService struct {
	repo        DashboardRepository
	constraints *ConstraintsService
}

func NewDashboardService(repo DashboardRepository, constraints *ConstraintsService) *DashboardService {
	return &DashboardService{repo: repo, constraints: constraints}
}

// Overview дополняет агрегаты из БД действующим cap — сводка показывает
// расход против лимита, а не голое число.
func (s *DashboardService) Overview(ctx context.Context) (*domain.OpsDashboard, error) {
	d, err := s.repo.GetDashboard(ctx)
	if err != nil {
		return nil, err
	}
	d.Budget.CapUSD = s.constraints.Current().BudgetCapDailyUSD
	return d, nil
}

func (s *DashboardService) Channels(ctx context.Context, windowHours int) ([]domain.ChannelPoint, error) {
	if windowHours <= 0 || windowHours > 24*30 {
		windowHours = 24
	}
	return s.repo.GetChannelBreakdown(ctx, windowHours)
}
