package policy

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/xela07ax/liveops-guard/internal/domain"
)

// fakeRepo хранит версии в памяти, имитируя поведение Postgres-репозитория.
type fakeRepo struct {
	versions []domain.SafetyConstraints
}

func (r *fakeRepo) Latest(_ context.Context) (domain.SafetyConstraints, error) {
	if len(r.versions) == 0 {
		// Zero Trust дефолт пустой базы: нулевые лимиты, compliance включен
		return domain.SafetyConstraints{ComplianceEnabled: true}, nil
	}
	return r.versions[len(r.versions)-1], nil
}

func (r *fakeRepo) InsertVersion(_ context.Context, c domain.SafetyConstraints) (int, error) {
	c.Version = len(r.versions) + 1
	r.versions = append(r.versions, c)
	return c.Version, nil
}

func validConstraints() domain.SafetyConstraints {
	return domain.SafetyConstraints{
		MaxActionsPerPlayerPerWeek: 2,
		MaxRewardValueUSD:          25,
		BudgetCapDailyUSD:          1000,
		BlacklistedSegments:        []domain.Segment{"payment_issues"},
		ComplianceEnabled:          true,
	}
}

func TestRefreshColdLoad(t *testing.T) {
	repo := &fakeRepo{}
	repo.InsertVersion(context.Background(), validConstraints())

	s := NewStore(repo, nil, zap.NewNop())
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := s.Current(); got.Version != 1 || got.BudgetCapDailyUSD != 1000 {
		t.Fatalf("current = %+v", got)
	}
}

func TestRefreshEmptyRepoYieldsZeroTrustDefault(t *testing.T) {
	s := NewStore(&fakeRepo{}, nil, zap.NewNop())
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	got := s.Current()
	if !got.ComplianceEnabled {
		t.Fatal("default must keep compliance enabled")
	}
	if got.BudgetCapDailyUSD != 0 || got.MaxActionsPerPlayerPerWeek != 0 {
		t.Fatalf("default limits must be zero (nothing passes), got %+v", got)
	}
}

func TestUpdateAssignsVersionAndApplies(t *testing.T) {
	repo := &fakeRepo{}
	s := NewStore(repo, nil, zap.NewNop())

	if err := s.Update(context.Background(), validConstraints()); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := s.Current(); got.Version != 1 {
		t.Fatalf("version = %d, want 1", got.Version)
	}

	c := validConstraints()
	c.MaxRewardValueUSD = 50
	if err := s.Update(context.Background(), c); err != nil {
		t.Fatalf("second update: %v", err)
	}
	if got := s.Current(); got.Version != 2 || got.MaxRewardValueUSD != 50 {
		t.Fatalf("current = %+v", got)
	}
}

// Некорректный набор отклоняется целиком, действующая версия не меняется.
func TestUpdateRejectsInvalidWholesale(t *testing.T) {
	repo := &fakeRepo{}
	s := NewStore(repo, nil, zap.NewNop())
	s.Update(context.Background(), validConstraints())

	bad := validConstraints()
	bad.BudgetCapDailyUSD = -5

	err := s.Update(context.Background(), bad)
	if !errors.Is(err, domain.ErrInvalidConstraints) {
		t.Fatalf("err = %v, want ErrInvalidConstraints", err)
	}
	if got := s.Current(); got.Version != 1 || got.BudgetCapDailyUSD != 1000 {
		t.Fatalf("active version must stay intact, got %+v", got)
	}
	if len(repo.versions) != 1 {
		t.Fatalf("invalid update must not be persisted, versions = %d", len(repo.versions))
	}
}

func TestSetComplianceTouchesOnlyTheFlag(t *testing.T) {
	repo := &fakeRepo{}
	s := NewStore(repo, nil, zap.NewNop())
	s.Update(context.Background(), validConstraints())

	if err := s.SetCompliance(context.Background(), false); err != nil {
		t.Fatalf("set compliance: %v", err)
	}
	got := s.Current()
	if got.ComplianceEnabled {
		t.Fatal("compliance must be off")
	}
	if got.Version != 2 {
		t.Fatalf("flag flip must produce a new version, got %d", got.Version)
	}
	if got.BudgetCapDailyUSD != 1000 || got.MaxRewardValueUSD != 25 {
		t.Fatalf("limits must be untouched, got %+v", got)
	}
}

// Снапшот Current() изолирован: мутация полученного слайса не трогает стор.
func TestCurrentReturnsIsolatedSnapshot(t *testing.T) {
	s := NewStore(&fakeRepo{}, nil, zap.NewNop())
	s.Update(context.Background(), validConstraints())

	snap := s.Current()
	snap.BlacklistedSegments[0] = "mutated"

	if got := s.Current(); got.BlacklistedSegments[0] != "payment_issues" {
		t.Fatalf("store state leaked through snapshot: %v", got.BlacklistedSegments)
	}
}
