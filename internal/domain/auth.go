package domain

import "github.com/golang-jwt/jwt/v5"

// Скоупы API: кто что может делать
const (
	ScopeWorker   = "worker"   // Воркеры: решение политики, жизненный цикл запроса
	ScopeReviewer = "reviewer" // Ревьюеры: очередь, решения, метрики
	ScopeAdmin    = "admin"    // Политика и карантин; включает остальные скоупы
)

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "reviewer": true
	jwt.RegisteredClaims
}

// HasScope: admin получает всё
func (c *CustomClaims) HasScope(scope string) bool {
	return c.Scopes[scope] || c.Scopes[ScopeAdmin]
}
