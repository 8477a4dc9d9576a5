package postgres

/*
Файл constraints_repo.go отвечает за хранение версий SafetyConstraints.
Каждое обновление оператора — новая строка: история правок сохраняется,
действующая версия = максимальная. Слой отделяет долговременное хранение
правил от их мгновенной проверки в памяти шлюза.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/liveops-guard/internal/domain"
)

type ConstraintsRepo struct {
	pool *pgxpool.Pool
}

func NewConstraintsRepo(pool *pgxpool.Pool) *ConstraintsRepo {
	return &ConstraintsRepo{pool: pool}
}

// Latest возвращает действующую (максимальную) версию constraints.
// Пустая таблица — это нулевые лимиты с включенным compliance: Zero Trust,
// шлюз блокирует всё, пока оператор не задал правила явно.
func (r *ConstraintsRepo) Latest(ctx context.Context) (domain.SafetyConstraints, error) {
	query := `
		SELECT version, payload, updated_at
		FROM safety_constraints
		ORDER BY version DESC
		LIMIT 1`

	var (
		version   int
		payload   []byte
		updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx, query).Scan(&version, &payload, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SafetyConstraints{ComplianceEnabled: true}, nil
		}
		return domain.SafetyConstraints{}, fmt.Errorf("postgres: load constraints: %w", err)
	}

	var c domain.SafetyConstraints
	if err := json.Unmarshal(payload, &c); err != nil {
		return domain.SafetyConstraints{}, fmt.Errorf("postgres: decode constraints payload: %w", err)
	}
	c.Version = version
	c.UpdatedAt = updatedAt
	return c, nil
}

// InsertVersion пишет новую версию и возвращает присвоенный номер.
func (r *ConstraintsRepo) InsertVersion(ctx context.Context, c domain.SafetyConstraints) (int, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return 0, fmt.Errorf("postgres: encode constraints: %w", err)
	}

	query := `
		INSERT INTO safety_constraints (payload, updated_at)
		VALUES ($1, NOW())
		RETURNING version`

	var version int
	if err := r.pool.QueryRow(ctx, query, payload).Scan(&version); err != nil {
		return 0, fmt.Errorf("postgres: insert constraints version: %w", err)
	}
	return version, nil
}
