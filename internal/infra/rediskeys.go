package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "governance"
)

// Ключи для Sets (состояние)
const (
	RedisKeyQuarantineDomains    = RedisNamespace + ":domains:quarantine_set"
	RedisKeyLockQuarantineWarmup = RedisNamespace + ":lock:warmup:quarantine"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanReviewDecisions: канал для трансляции решений ревьюеров.
	RedisChanReviewDecisions = RedisNamespace + ":reviews:decisions"
	RedisChanQuarantine      = RedisNamespace + ":domains:quarantine-signal"
	RedisChanPolicyUpdate    = RedisNamespace + ":policy:update"
)

// GetWarmupLockKey Генератор ключей для блокировок прогрева
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
