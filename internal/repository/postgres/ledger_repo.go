package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/liveops-guard/internal/domain"
)

// LedgerRepo — Postgres-хранилище Action Ledger. Append-only последовательность
// с ключом (player_id, ts) под оконные запросы; единственный UPDATE —
// финализация PENDING-строки терминальным вердиктом.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func (r *LedgerRepo) Insert(ctx context.Context, e domain.LedgerEntry) error {
	query := `
		INSERT INTO action_ledger
			(id, trace_id, player_id, segment, action_type, value_usd,
			 confidence, verdict, block_reason, bypassed, constraints_version, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.TraceID, e.PlayerID, string(e.Segment), string(e.ActionType),
		e.EstimatedValueUSD, e.Confidence, string(e.Verdict), e.BlockReason,
		e.Bypassed, e.ConstraintsVersion, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert ledger entry: %w", err)
	}
	return nil
}

func (r *LedgerRepo) Finalize(ctx context.Context, id string, verdict domain.Verdict, reason string) error {
	query := `
		UPDATE action_ledger
		SET verdict = $1, block_reason = $2
		WHERE id = $3 AND verdict = 'PENDING'`

	ct, err := r.pool.Exec(ctx, query, string(verdict), reason, id)
	if err != nil {
		return fmt.Errorf("postgres: finalize ledger entry: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: ledger entry %s not pending", id)
	}
	return nil
}

func (r *LedgerRepo) Query(ctx context.Context, playerID string, since time.Time) ([]domain.LedgerEntry, error) {
	query := `
		SELECT id, trace_id, player_id, segment, action_type, value_usd,
		       confidence, verdict, block_reason, bypassed, constraints_version, ts
		FROM action_ledger
		WHERE player_id = $1 AND ts >= $2
		ORDER BY ts DESC`

	rows, err := r.pool.Query(ctx, query, playerID, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: query ledger: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// RecentExecuted отдает EXECUTED записи всех игроков за окно — прогрев
// Frequency Guard при старте шлюза.
func (r *LedgerRepo) RecentExecuted(ctx context.Context, since time.Time) ([]domain.LedgerEntry, error) {
	query := `
		SELECT id, trace_id, player_id, segment, action_type, value_usd,
		       confidence, verdict, block_reason, bypassed, constraints_version, ts
		FROM action_ledger
		WHERE verdict = 'EXECUTED' AND ts >= $1`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: query recent executed: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEntries(rows pgxRows) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for rows.Next() {
		var (
			e          domain.LedgerEntry
			segment    string
			actionType string
			verdict    string
		)
		if err := rows.Scan(
			&e.ID, &e.TraceID, &e.PlayerID, &segment, &actionType,
			&e.EstimatedValueUSD, &e.Confidence, &verdict, &e.BlockReason,
			&e.Bypassed, &e.ConstraintsVersion, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		e.Segment = domain.Segment(segment)
		e.ActionType = domain.ActionType(actionType)
		e.Verdict = domain.Verdict(verdict)
		out = append(out, e)
	}
	return out, rows.Err()
}
