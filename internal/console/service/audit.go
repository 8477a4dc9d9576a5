package service

import (
	"context"
	"time"

	"github.com/xela07ax/liveops-guard/internal/domain"
)

// LedgerReader описывает требования консоли к журналу решений.
type LedgerReader interface {
	Query(ctx context.Context, playerID string, since time.Time) ([]domain.LedgerEntry, error)
}

// AuditService отдает audit view поверх Action Ledger.
type AuditService struct {
	ledger LedgerReader
}

func NewAuditService(ledger LedgerReader) *AuditService {
	return &AuditService{ledger: ledger}
}

// FetchEntries возвращает записи игрока с sinceTimestamp (свежие первыми).
// Нулевой since = последние 7 дней, под основной кейс разбора частотных блокировок.
func (s *AuditService) FetchEntries(ctx context.Context, playerID string, since time.Time) ([]domain.LedgerEntry, error) {
	if since.IsZero() {
		since = time.Now().UTC().Add(-7 * 24 * time.Hour)
	}
	return s.ledger.Query(ctx, playerID, since)
}
