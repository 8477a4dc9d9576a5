package domain

import (
	"encoding/json"
	"fmt"
)

// Segment — поведенческая когорта игрока (например "new_players", "at_risk_of_churn").
type Segment string

// ActionType определяет канал/тип вмешательства, предложенного ораклом.
type ActionType string

const (
	ActionPushNotification ActionType = "PUSH_NOTIFICATION"
	ActionInGameOffer      ActionType = "IN_GAME_OFFER"
	ActionLevelAdjustment  ActionType = "LEVEL_ADJUSTMENT"
	ActionResourceGift     ActionType = "RESOURCE_GIFT"

	// ActionNone — оракл сознательно выбрал «молчание». Это не вето политики,
	// в отчетности эти исходы разделяются.
	ActionNone ActionType = "NONE"
)

// ProposedAction — кандидат на вмешательство от Recommendation Oracle.
// Живет ровно одно решение, владеет им Decision Gateway.
type ProposedAction struct {
	PlayerID          string     `json:"player_id"`
	Segment           Segment    `json:"segment"`
	ActionType        ActionType `json:"action_type"`
	EstimatedValueUSD float64    `json:"estimated_value_usd"`
	Confidence        float64    `json:"confidence"` // 0..100
	Reasoning         string     `json:"reasoning"`

	// Payload — непрозрачный контент для канала доставки (текст пуша, параметры
	// оффера). Шлюз его не интерпретирует, только передает диспетчеру.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate отсекает заведомо битые предложения до начала 7-шаговой проверки.
func (p ProposedAction) Validate() error {
	if p.PlayerID == "" {
		return fmt.Errorf("proposed action: player_id is required")
	}
	switch p.ActionType {
	case ActionPushNotification, ActionInGameOffer, ActionLevelAdjustment, ActionResourceGift, ActionNone:
	default:
		return fmt.Errorf("proposed action: unknown action_type %q", p.ActionType)
	}
	if p.EstimatedValueUSD < 0 {
		return fmt.Errorf("proposed action: estimated_value_usd must be >= 0")
	}
	if p.Confidence < 0 || p.Confidence > 100 {
		return fmt.Errorf("proposed action: confidence must be within [0,100]")
	}
	return nil
}

// Verdict — финальное распоряжение шлюза по предложенному действию.
type Verdict string

const (
	VerdictExecuted Verdict = "EXECUTED"
	VerdictBlocked  Verdict = "BLOCKED"
	VerdictFailed   Verdict = "FAILED"
)

// Коды причин блокировок и отказов. Каждая причина — одна строка,
// first-failure-wins: решение несет ровно один код.
const (
	ReasonSegmentExcluded     = "segment_excluded"
	ReasonFrequencyExceeded   = "frequency_exceeded"
	ReasonRewardValueExceeded = "reward_value_exceeded"
	ReasonBudgetCapExceeded   = "budget_cap_exceeded"
	ReasonNoActionRecommended = "no_action_recommended"
	ReasonDispatchTimeout     = "dispatch_timeout"
	ReasonLedgerWriteError    = "ledger_write_error"

	// ReasonDispatchErrorPrefix дополняется деталью конкретного сбоя канала.
	ReasonDispatchErrorPrefix = "dispatch_error:"
)

// GatewayVerdict возвращается вызывающему оркестратору.
type GatewayVerdict struct {
	EntryID string  `json:"entry_id"`
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason,omitempty"`

	// Bypassed помечает решения, принятые при отключенном compliance.
	// Видимый флаг, чтобы bypass был неотличим от одобрения только намеренно.
	Bypassed bool `json:"bypassed,omitempty"`

	ConstraintsVersion int    `json:"constraints_version"`
	TraceID            string `json:"trace_id,omitempty"`
}
