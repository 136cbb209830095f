package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WarmupSet: прогрев L1 (RAM) и L2 (Redis set) из списка, заданного в конфиге.
// Redis заливается только если он пуст: живое состояние важнее стартового списка.
func WarmupSet(
	ctx context.Context,
	rdb redis.UniversalClient,
	logger *zap.Logger,
	ids []string,
	redisKey string,
	lockKey string,
	updateL1 func([]string),
) error {
	// 1. Обновляем локальный кэш (L1) через callback
	updateL1(ids)

	// 2. Распределенная блокировка (SetNX), чтобы только один инстанс обновлял Redis
	ok, err := rdb.SetNX(ctx, lockKey, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return nil // Либо ошибка сети, либо другой уже греет кэш
	}

	// 3. Проверка наполненности Redis
	count, err := rdb.SCard(ctx, redisKey).Result()
	if err != nil {
		count = 0
		logger.Warn("could not check Redis set size, proceeding with warm-up",
			zap.String("key", redisKey), zap.Error(err))
	}

	// 4. Если Redis пуст, а данные есть, заливаем
	if count == 0 && len(ids) > 0 {
		logger.Info("Redis set is empty, performing warm-up from config...",
			zap.String("key", redisKey), zap.Int("count", len(ids)))

		members := make([]any, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		return rdb.SAdd(ctx, redisKey, members...).Err()
	}

	return nil
}
