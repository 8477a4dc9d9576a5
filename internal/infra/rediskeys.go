package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "lguard"
)

// Каналы Pub/Sub (события control plane)
const (
	// RedisChanConstraints — широковещательный сигнал «перечитай constraints».
	// Публикуется консолью после каждого Update (включая переключение compliance),
	// все инстансы шлюза вызывают Refresh() своего Policy Store.
	RedisChanConstraints = RedisNamespace + ":policy:refresh-signal"
)
