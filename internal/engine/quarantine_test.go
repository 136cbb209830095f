package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/copilot-governance/internal/infra"
	"go.uber.org/zap"
)

// fakeRedis: set и publish в памяти; остальные методы UniversalClient не вызываются
type fakeRedis struct {
	redis.UniversalClient

	mu        sync.Mutex
	sets      map[string]map[string]bool
	locks     map[string]bool
	published []string
	err       error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{sets: map[string]map[string]bool{}, locks: map[string]bool{}}
}

func (f *fakeRedis) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return redis.NewStringSliceResult(out, f.err)
}

func (f *fakeRedis) SAdd(_ context.Context, key string, members ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	if f.sets[key] == nil {
		f.sets[key] = map[string]bool{}
	}
	for _, m := range members {
		f.sets[key][m.(string)] = true
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeRedis) SRem(_ context.Context, key string, members ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		delete(f.sets[key], m.(string))
	}
	return redis.NewIntResult(int64(len(members)), f.err)
}

func (f *fakeRedis) SCard(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return redis.NewIntResult(int64(len(f.sets[key])), f.err)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.locks[key] = true
	return redis.NewBoolResult(true, f.err)
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, channel+"|"+message.(string))
	return redis.NewIntResult(1, f.err)
}

func TestQuarantine_UpdatePublishesAndAppliesLocally(t *testing.T) {
	rdb := newFakeRedis()
	q := NewDomainQuarantine(rdb, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, q.Quarantine(ctx, "credit_limit"))
	assert.True(t, q.IsQuarantined("credit_limit"))
	assert.True(t, rdb.sets[infra.RedisKeyQuarantineDomains]["credit_limit"])
	assert.Equal(t, []string{infra.RedisChanQuarantine + "|credit_limit:on"}, rdb.published)

	require.NoError(t, q.Release(ctx, "credit_limit"))
	assert.False(t, q.IsQuarantined("credit_limit"))
	assert.Empty(t, q.List())

	assert.Error(t, q.Quarantine(ctx, ""))
}

func TestQuarantine_UpdateFailureLeavesStateUntouched(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")
	q := NewDomainQuarantine(rdb, zap.NewNop())

	assert.Error(t, q.Quarantine(context.Background(), "credit_limit"))
	assert.False(t, q.IsQuarantined("credit_limit"))
}

func TestQuarantine_InitReplacesLocalSet(t *testing.T) {
	rdb := newFakeRedis()
	rdb.sets[infra.RedisKeyQuarantineDomains] = map[string]bool{"a": true, "b": true}
	q := NewDomainQuarantine(rdb, zap.NewNop())
	q.set("stale", true)

	require.NoError(t, q.Init(context.Background()))
	got := q.List()
	sort.Strings(got)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestQuarantine_ProcessSignal(t *testing.T) {
	q := NewDomainQuarantine(newFakeRedis(), zap.NewNop())

	q.processSignal("ns:credit_limit:on") // двоеточие в имени домена допустимо
	assert.True(t, q.IsQuarantined("ns:credit_limit"))

	q.processSignal("ns:credit_limit:false")
	assert.False(t, q.IsQuarantined("ns:credit_limit"))

	q.processSignal("garbage")
	q.processSignal("x:maybe")
	assert.Empty(t, q.List())
}

func TestWarmupSet_FillsEmptyRedisOnce(t *testing.T) {
	rdb := newFakeRedis()
	var l1 []string
	ctx := context.Background()
	lock := infra.GetWarmupLockKey("quarantine")

	err := WarmupSet(ctx, rdb, zap.NewNop(), []string{"a", "b"}, infra.RedisKeyQuarantineDomains, lock, func(ids []string) { l1 = ids })
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, l1)
	assert.Len(t, rdb.sets[infra.RedisKeyQuarantineDomains], 2)

	// Второй инстанс: лок занят, Redis не трогаем
	err = WarmupSet(ctx, rdb, zap.NewNop(), []string{"c"}, infra.RedisKeyQuarantineDomains, lock, func([]string) {})
	require.NoError(t, err)
	assert.False(t, rdb.sets[infra.RedisKeyQuarantineDomains]["c"])
}

func TestWarmupSet_KeepsLiveState(t *testing.T) {
	rdb := newFakeRedis()
	rdb.sets[infra.RedisKeyQuarantineDomains] = map[string]bool{"live": true}

	err := WarmupSet(context.Background(), rdb, zap.NewNop(), []string{"from_config"},
		infra.RedisKeyQuarantineDomains, infra.RedisKeyLockQuarantineWarmup, func([]string) {})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"live": true}, rdb.sets[infra.RedisKeyQuarantineDomains])
}
