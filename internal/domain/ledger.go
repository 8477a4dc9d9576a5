package domain

import "time"

// LedgerEntry — одна запись журнала решений. Immutable после финализации:
// записи никогда не изменяются и не удаляются, ретеншн — внешняя забота.
type LedgerEntry struct {
	ID      string `json:"id"`
	TraceID string `json:"trace_id,omitempty"`

	PlayerID string  `json:"player_id"`
	Segment  Segment `json:"segment,omitempty"`

	ActionType        ActionType `json:"action_type"`
	EstimatedValueUSD float64    `json:"estimated_value_usd"`
	Confidence        float64    `json:"confidence"`

	Verdict     Verdict `json:"verdict"`
	BlockReason string  `json:"block_reason,omitempty"`
	Bypassed    bool    `json:"bypassed,omitempty"`

	ConstraintsVersion int       `json:"constraints_version"`
	Timestamp          time.Time `json:"timestamp"`
}
