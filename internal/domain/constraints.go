package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConstraints возвращается Policy Store при попытке сохранить
	// некорректный набор ограничений. Значения не «подрезаются» молча —
	// оператор обязан получить явный отказ.
	ErrInvalidConstraints = errors.New("invalid safety constraints")
)

// SafetyConstraints — операторский набор жестких ограничений (safety rails).
// Singleton с версионированием: каждое обновление создает новую версию,
// решения, начатые до обновления, доживают на своем снапшоте.
type SafetyConstraints struct {
	Version int `json:"version"`

	MaxActionsPerPlayerPerWeek int     `json:"max_actions_per_player_per_week"`
	MaxRewardValueUSD          float64 `json:"max_reward_value_usd"`
	BudgetCapDailyUSD          float64 `json:"budget_cap_daily_usd"`

	// Сегменты, для которых любые вмешательства запрещены
	BlacklistedSegments []Segment `json:"blacklisted_segments"`

	// ComplianceEnabled == false означает сознательное отключение всех проверок.
	// Решения при этом помечаются bypassed=true в леджере, а не проходят «тихо».
	ComplianceEnabled bool `json:"compliance_enabled"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Validate отклоняет конфигурацию с отрицательными лимитами (ConfigurationInvalid).
func (c SafetyConstraints) Validate() error {
	if c.MaxActionsPerPlayerPerWeek < 0 {
		return fmt.Errorf("%w: max_actions_per_player_per_week must be >= 0", ErrInvalidConstraints)
	}
	if c.MaxRewardValueUSD < 0 {
		return fmt.Errorf("%w: max_reward_value_usd must be >= 0", ErrInvalidConstraints)
	}
	if c.BudgetCapDailyUSD < 0 {
		return fmt.Errorf("%w: budget_cap_daily_usd must be >= 0", ErrInvalidConstraints)
	}
	for _, s := range c.BlacklistedSegments {
		if s == "" {
			return fmt.Errorf("%w: empty segment in blacklist", ErrInvalidConstraints)
		}
	}
	return nil
}

// SegmentBlocked проверяет вхождение сегмента в черный список.
func (c SafetyConstraints) SegmentBlocked(s Segment) bool {
	for _, b := range c.BlacklistedSegments {
		if b == s {
			return true
		}
	}
	return false
}

// Clone возвращает глубокую копию, безопасную для выдачи как снапшот:
// мутации слайса у получателя не затрагивают состояние стора.
func (c SafetyConstraints) Clone() SafetyConstraints {
	out := c
	if c.BlacklistedSegments != nil {
		out.BlacklistedSegments = make([]Segment, len(c.BlacklistedSegments))
		copy(out.BlacklistedSegments, c.BlacklistedSegments)
	}
	return out
}
