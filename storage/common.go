package storage

import (
	"context"
	"errors"
	"time"
	"trade-order-matching-service/staticerr"

	redisLib "github.com/redis/go-redis/v9"
	logger "github.com/sirupsen/logrus"
)

type TxContainer struct {
	tx redisLib.Pipeliner
}

type RedisClient struct {
	cli *redisLib.Client
}

func NewRedisClient(host string) (*RedisClient, error) {
	cli := redisLib.NewClient(&redisLib.Options{
		Addr:     host,
		Password: "",
		DB:       0,
	})

	pong, err := cli.Ping(context.Background()).Result()

	if err != nil {
		return nil, err
	}

	logger.Infoln(pong)
	return &RedisClient{cli: cli}, nil
}

func (r *RedisClient) Close() error {
	return r.cli.Close()
}

func (r *RedisClient) setNX(ctx context.Context, key string, value interface{}, expire time.Duration) error {
	setted, err := r.cli.SetNX(ctx, key, value, expire).Result()

	if err != nil {
		return err
	}

	if !setted {
		return staticerr.ErrorResourceIsLocked
	}

	return nil
}

func (r *RedisClient) deleteWithValue(ctx context.Context, key string, value string) error {
	err := r.cli.Watch(ctx, func(tx *redisLib.Tx) error {
		valueFromRedis, err := tx.Get(ctx, key).Result()

		if errors.Is(err, redisLib.Nil) {
			return nil
		}

		if err != nil {
			return err
		}

		if valueFromRedis != value {
			return staticerr.ErrorResourceIsLocked
		}

		_, err = tx.TxPipelined(ctx, func(pipe redisLib.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})

		return err
	}, key)

	if err != nil {
		return err
	}

	return nil
}

// watchedTx runs build inside MULTI/EXEC only if every key in owned still
// holds value. A lost lock or a concurrent change to one of the keys aborts
// the write with ErrorResourceIsLocked.
func (r *RedisClient) watchedTx(ctx context.Context, owned []string, value string, build func(x *TxContainer)) error {
	err := r.cli.Watch(ctx, func(tx *redisLib.Tx) error {
		for _, key := range owned {
			valueFromRedis, err := tx.Get(ctx, key).Result()

			if errors.Is(err, redisLib.Nil) {
				return staticerr.ErrorResourceIsLocked
			}

			if err != nil {
				return err
			}

			if valueFromRedis != value {
				return staticerr.ErrorResourceIsLocked
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redisLib.Pipeliner) error {
			build(&TxContainer{tx: pipe})
			return nil
		})

		return err
	}, owned...)

	if errors.Is(err, redisLib.TxFailedErr) {
		return staticerr.ErrorResourceIsLocked
	}

	return err
}

func (x *TxContainer) addInZSet(ctx context.Context, key string, value interface{}, weight float64) *TxContainer {
	x.tx.ZAdd(ctx, key, redisLib.Z{Score: weight, Member: value})

	return x
}

func (x *TxContainer) removeFromZSet(ctx context.Context, key string, value interface{}) *TxContainer {
	x.tx.ZRem(ctx, key, value)

	return x
}

func (x *TxContainer) addInHash(ctx context.Context, key string, fieldKey string, fieldValue interface{}) *TxContainer {
	x.tx.HSet(ctx, key, fieldKey, fieldValue)

	return x
}

func (x *TxContainer) appendToList(ctx context.Context, key string, value interface{}) *TxContainer {
	x.tx.RPush(ctx, key, value)

	return x
}

func (x *TxContainer) pushToList(ctx context.Context, key string, value interface{}) *TxContainer {
	x.tx.LPush(ctx, key, value)

	return x
}

func (r *RedisClient) getFromHash(ctx context.Context, key string, field string) (*string, error) {
	value, err := r.cli.HGet(ctx, key, field).Result()

	if err != nil {
		return nil, err
	}

	return &value, err
}

func (r *RedisClient) getManyFromHash(ctx context.Context, key string, fields ...string) ([]string, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	values, err := r.cli.HMGet(ctx, key, fields...).Result()

	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(values))

	for _, value := range values {
		str, ok := value.(string)
		if !ok {
			continue
		}
		result = append(result, str)
	}

	return result, nil
}

// rangeFromZSet reads limit members from offset. Negative offsets would
// count from the tail in Redis, so they read nothing.
func (r *RedisClient) rangeFromZSet(ctx context.Context, key string, offset, limit int, reverse bool) ([]string, error) {
	if limit <= 0 || offset < 0 {
		return nil, nil
	}

	start := int64(offset)
	stop := int64(offset + limit - 1)

	if reverse {
		return r.cli.ZRevRange(ctx, key, start, stop).Result()
	}

	return r.cli.ZRange(ctx, key, start, stop).Result()
}

func (r *RedisClient) countZSet(ctx context.Context, key string) (int64, error) {
	return r.cli.ZCard(ctx, key).Result()
}

func (r *RedisClient) getAllFromList(ctx context.Context, key string) ([]string, error) {
	return r.cli.LRange(ctx, key, 0, -1).Result()
}

func (r *RedisClient) performTx(ctx context.Context) TxContainer {
	tx := r.cli.TxPipeline()
	return TxContainer{tx: tx}
}

func (x *TxContainer) execTx(ctx context.Context) error {
	_, err := x.tx.Exec(ctx)
	return err
}
