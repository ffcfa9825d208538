package infra

// RedisNamespace — базовый префикс для изоляции данных платформы в Redis.
const RedisNamespace = "vern"

// Каналы Pub/Sub (события)
const (
	// RedisChanPresence — сигналы присутствия агентов ("name:beat" / "name:gone").
	// Все инстансы шлюза держат L1-кэш реестра в памяти и сходятся через эти сигналы.
	RedisChanPresence = RedisNamespace + ":agents:presence-signal"

	// RedisChanConsentDecisions — трансляция принятых решений по согласиям,
	// чтобы дашборд и соседние инстансы видели их без опроса БД.
	RedisChanConsentDecisions = RedisNamespace + ":consent:decisions"
)
