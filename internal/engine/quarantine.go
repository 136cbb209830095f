package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/copilot-governance/internal/infra"
	"go.uber.org/zap"
)

// DomainQuarantine: ручной контроль при подозрении на деградацию модели в домене:
// все решения по домену в карантине уходят человеку, независимо от политики.
// L1: локальная мапа, L2: Redis set, синхронизация через Pub/Sub.
type DomainQuarantine struct {
	mu      sync.RWMutex
	domains map[string]struct{}
	rdb     redis.UniversalClient
	logger  *zap.Logger
}

func NewDomainQuarantine(rdb redis.UniversalClient, logger *zap.Logger) *DomainQuarantine {
	return &DomainQuarantine{
		domains: make(map[string]struct{}),
		rdb:     rdb,
		logger:  logger.Named("quarantine"),
	}
}

// Init загружает весь карантин из Redis (старт и каждое переподключение)
func (q *DomainQuarantine) Init(ctx context.Context) error {
	domains, err := q.rdb.SMembers(ctx, infra.RedisKeyQuarantineDomains).Result()
	if err != nil {
		return fmt.Errorf("load quarantine set: %w", err)
	}
	q.replace(domains)
	return nil
}

func (q *DomainQuarantine) replace(domains []string) {
	next := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		next[d] = struct{}{}
	}
	q.mu.Lock()
	q.domains = next
	q.mu.Unlock()
}

// Listen блокирует до отмены ctx
func (q *DomainQuarantine) Listen(ctx context.Context) {
	ListenResilient(ctx, q.rdb, q.logger, infra.RedisChanQuarantine, q.Init, q.processSignal)
}

// processSignal ожидает формат "domain:on" или "domain:off"
func (q *DomainQuarantine) processSignal(payload string) {
	i := strings.LastIndex(payload, ":")
	if i <= 0 {
		q.logger.Error("invalid signal format", zap.String("payload", payload))
		return
	}
	name, state := payload[:i], payload[i+1:]
	switch state {
	case "on", "true":
		q.set(name, true)
	case "off", "false":
		q.set(name, false)
	default:
		q.logger.Error("invalid signal state", zap.String("payload", payload))
	}
}

// Preload: стартовый список из конфига в L1 (до Init)
func (q *DomainQuarantine) Preload(domains []string) {
	for _, d := range domains {
		q.set(d, true)
	}
}

func (q *DomainQuarantine) set(name string, on bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if on {
		q.domains[name] = struct{}{}
	} else {
		delete(q.domains, name)
	}
}

// Quarantine помещает домен в карантин на всех инстансах
func (q *DomainQuarantine) Quarantine(ctx context.Context, name string) error {
	return q.update(ctx, name, true)
}

func (q *DomainQuarantine) Release(ctx context.Context, name string) error {
	return q.update(ctx, name, false)
}

func (q *DomainQuarantine) update(ctx context.Context, name string, on bool) error {
	if name == "" {
		return fmt.Errorf("domain is required")
	}
	var err error
	state := "off"
	if on {
		state = "on"
		err = q.rdb.SAdd(ctx, infra.RedisKeyQuarantineDomains, name).Err()
	} else {
		err = q.rdb.SRem(ctx, infra.RedisKeyQuarantineDomains, name).Err()
	}
	if err != nil {
		return fmt.Errorf("update quarantine set: %w", err)
	}

	// Локально применяем сразу, остальным инстансам шлем сигнал
	q.set(name, on)
	if err := q.rdb.Publish(ctx, infra.RedisChanQuarantine, name+":"+state).Err(); err != nil {
		return fmt.Errorf("publish quarantine signal: %w", err)
	}
	q.logger.Info("domain quarantine changed", zap.String("domain", name), zap.Bool("on", on))
	return nil
}

func (q *DomainQuarantine) IsQuarantined(name string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.domains[name]
	return ok
}

// List: текущий L1 снимок
func (q *DomainQuarantine) List() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]string, 0, len(q.domains))
	for d := range q.domains {
		out = append(out, d)
	}
	return out
}
