package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"trade-order-matching-service/models"
)

const (
	tradesHashKey  = "trades"
	tradesOwnerKey = "trades:owner:%s"
)

func buildTradesOwnerKey(ownerId string) string {
	return fmt.Sprintf(tradesOwnerKey, ownerId)
}

type TradesStorage struct {
	client *RedisClient
}

func NewTradesStorage(client *RedisClient) *TradesStorage {
	return &TradesStorage{client: client}
}

// GetTradesByOwner returns trades where the owner bought or sold, newest
// first.
func (t *TradesStorage) GetTradesByOwner(ctx context.Context, ownerId string, limit, offset int) ([]models.TradeModel, int64, error) {
	ids, err := t.client.rangeFromZSet(ctx, buildTradesOwnerKey(ownerId), offset, limit, true)

	if err != nil {
		return nil, 0, err
	}

	values, err := t.client.getManyFromHash(ctx, tradesHashKey, ids...)

	if err != nil {
		return nil, 0, err
	}

	trades := make([]models.TradeModel, 0, len(values))

	for _, value := range values {
		var trade models.TradeModel

		if err = json.Unmarshal([]byte(value), &trade); err != nil {
			return nil, 0, err
		}

		trades = append(trades, trade)
	}

	total, err := t.client.countZSet(ctx, buildTradesOwnerKey(ownerId))

	if err != nil {
		return nil, 0, err
	}

	return trades, total, nil
}
