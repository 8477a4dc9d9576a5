package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BudgetRepo персистит строку расхода на каждую UTC-дату (одна строка — один день).
// Авторитетное значение для решений живет в памяти аккаунтанта под замком;
// здесь — write-through для рестартов и исторических компенсаций.
type BudgetRepo struct {
	pool *pgxpool.Pool
}

func NewBudgetRepo(pool *pgxpool.Pool) *BudgetRepo {
	return &BudgetRepo{pool: pool}
}

func (r *BudgetRepo) LoadDay(ctx context.Context, day string) (float64, error) {
	var committed float64
	err := r.pool.QueryRow(ctx,
		`SELECT committed_usd FROM budget_days WHERE day = $1`, day,
	).Scan(&committed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: load budget day: %w", err)
	}
	return committed, nil
}

func (r *BudgetRepo) SaveDay(ctx context.Context, day string, committedUSD float64) error {
	query := `
		INSERT INTO budget_days (day, committed_usd)
		VALUES ($1, $2)
		ON CONFLICT (day) DO UPDATE SET committed_usd = EXCLUDED.committed_usd`

	if _, err := r.pool.Exec(ctx, query, day, committedUSD); err != nil {
		return fmt.Errorf("postgres: save budget day: %w", err)
	}
	return nil
}

// AddToDay атомарно сдвигает расход исторической даты — компенсация брони,
// пережившей полуночный rollover.
func (r *BudgetRepo) AddToDay(ctx context.Context, day string, deltaUSD float64) error {
	query := `
		INSERT INTO budget_days (day, committed_usd)
		VALUES ($1, GREATEST($2, 0))
		ON CONFLICT (day) DO UPDATE
		SET committed_usd = GREATEST(budget_days.committed_usd + $2, 0)`

	if _, err := r.pool.Exec(ctx, query, day, deltaUSD); err != nil {
		return fmt.Errorf("postgres: adjust budget day: %w", err)
	}
	return nil
}
