package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/liveops-guard/internal/outcome"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

// OutcomeRepo — пакетная запись фида реакций. Отдельное соединение через
// database/sql: поток независим от пула решений и не конкурирует с Hot Path.
type OutcomeRepo struct {
	db *sql.DB
}

func NewOutcomeRepo(connString string) (*OutcomeRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open outcome connection: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &OutcomeRepo{db: db}, nil
}

func (r *OutcomeRepo) WriteBatch(ctx context.Context, events []outcome.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице engagement_outcomes
	const numFields = 5
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5)
		vals = append(vals, e.ID, e.ActionID, e.PlayerID, e.Response, e.NotedAt)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO engagement_outcomes (id, action_id, player_id, response, noted_at) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

func (r *OutcomeRepo) Close() error {
	return r.db.Close()
}
