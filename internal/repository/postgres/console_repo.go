package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/liveops-guard/internal/domain"
)

// ConsoleRepo — агрегатные запросы операторской консоли поверх леджера
// и бюджетных строк.
type ConsoleRepo struct {
	pool *pgxpool.Pool
}

func NewConsoleRepo(pool *pgxpool.Pool) *ConsoleRepo {
	return &ConsoleRepo{pool: pool}
}

// GetDashboard собирает сводку за последние 24 часа.
func (r *ConsoleRepo) GetDashboard(ctx context.Context) (*domain.OpsDashboard, error) {
	d := &domain.OpsDashboard{}

	// 1. Вердикты и разбивка блокировок одним проходом по окну
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE verdict = 'EXECUTED'),
			COUNT(*) FILTER (WHERE verdict = 'FAILED'),
			COUNT(*) FILTER (WHERE bypassed AND verdict = 'EXECUTED'),
			COUNT(*) FILTER (WHERE verdict = 'BLOCKED'),
			COUNT(*) FILTER (WHERE block_reason = 'segment_excluded'),
			COUNT(*) FILTER (WHERE block_reason = 'frequency_exceeded'),
			COUNT(*) FILTER (WHERE block_reason = 'reward_value_exceeded'),
			COUNT(*) FILTER (WHERE block_reason = 'budget_cap_exceeded'),
			COUNT(*) FILTER (WHERE block_reason = 'no_action_recommended')
		FROM action_ledger
		WHERE ts > NOW() - INTERVAL '24 hours'`).Scan(
		&d.Decisions.TotalDecisions,
		&d.Decisions.Executed,
		&d.Decisions.Failed,
		&d.Decisions.Bypassed,
		&d.Blocks.Total,
		&d.Blocks.SegmentExcluded,
		&d.Blocks.Frequency,
		&d.Blocks.RewardValue,
		&d.Blocks.BudgetCap,
		&d.Blocks.OracleStayedMute,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: dashboard verdicts: %w", err)
	}

	// 2. Расход текущего UTC-дня
	err = r.pool.QueryRow(ctx, `
		SELECT TO_CHAR(NOW() AT TIME ZONE 'UTC', 'YYYY-MM-DD'),
		       COALESCE((SELECT committed_usd FROM budget_days
		                 WHERE day = TO_CHAR(NOW() AT TIME ZONE 'UTC', 'YYYY-MM-DD')), 0)`).
		Scan(&d.Budget.Day, &d.Budget.CommittedUSD)
	if err != nil {
		return nil, fmt.Errorf("postgres: dashboard budget: %w", err)
	}

	return d, nil
}

// GetChannelBreakdown — исполненные действия по каналам за окно (часы).
func (r *ConsoleRepo) GetChannelBreakdown(ctx context.Context, windowHours int) ([]domain.ChannelPoint, error) {
	query := `
		SELECT action_type, COUNT(*), COALESCE(SUM(value_usd), 0)
		FROM action_ledger
		WHERE verdict = 'EXECUTED' AND ts > NOW() - ($1 || ' hours')::interval
		GROUP BY action_type
		ORDER BY COUNT(*) DESC`

	rows, err := r.pool.Query(ctx, query, windowHours)
	if err != nil {
		return nil, fmt.Errorf("postgres: channel breakdown: %w", err)
	}
	defer rows.Close()

	var out []domain.ChannelPoint
	for rows.Next() {
		var (
			p  domain.ChannelPoint
			at string
		)
		if err := rows.Scan(&at, &p.Count, &p.SpendUSD); err != nil {
			return nil, fmt.Errorf("postgres: scan channel point: %w", err)
		}
		p.ActionType = domain.ActionType(at)
		out = append(out, p)
	}
	return out, rows.Err()
}
