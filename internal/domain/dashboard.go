package domain

// OpsDashboard — сводка для операторской консоли: трафик решений,
// вето политики и расход дневного бюджета одним экраном.
type OpsDashboard struct {
	Decisions DecisionStats `json:"decisions"` // Трафик и вердикты
	Blocks    BlockStats    `json:"blocks"`    // Срабатывания safety rails
	Budget    BudgetStats   `json:"budget"`    // Дневной расход
}

type DecisionStats struct {
	TotalDecisions int64 `json:"total_decisions"`
	Executed       int64 `json:"executed"`
	Failed         int64 `json:"failed"`
	Bypassed       int64 `json:"bypassed"` // Исполнены при отключенном compliance
}

// BlockStats раскладывает блокировки по кодам причин.
type BlockStats struct {
	Total            int64 `json:"total"`
	SegmentExcluded  int64 `json:"segment_excluded"`
	Frequency        int64 `json:"frequency_exceeded"`
	RewardValue      int64 `json:"reward_value_exceeded"`
	BudgetCap        int64 `json:"budget_cap_exceeded"`
	OracleStayedMute int64 `json:"no_action_recommended"` // Молчание оракла — не вето
}

type BudgetStats struct {
	Day          string  `json:"day"` // UTC дата
	CommittedUSD float64 `json:"committed_usd"`
	CapUSD       float64 `json:"cap_usd"`
}

// ChannelPoint — разбивка исполненных действий по каналам доставки.
type ChannelPoint struct {
	ActionType ActionType `json:"action_type"`
	Count      int64      `json:"count"`
	SpendUSD   float64    `json:"spend_usd"`
}
