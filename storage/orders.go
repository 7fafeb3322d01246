package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"trade-order-matching-service/models"
	"trade-order-matching-service/staticerr"

	"github.com/redis/go-redis/v9"
)

const (
	ordersHashKey   = "orders"
	ordersBookKey   = "orders:book:%s"
	ordersOwnerKey  = "orders:owner:%s"
	orderHistoryKey = "orders:history:%s"
	ordersLocksKey  = "lock_order:"

	// Prices are numeric(18,8): at most 8 fractional digits, so the scaled
	// integer always fits in priceKeyWidth digits.
	priceScale    = 8
	priceKeyWidth = 24
	timeKeyWidth  = 20
)

var priceKeyCeiling = new(big.Int).Sub(new(big.Int).Exp(big.NewInt(10), big.NewInt(priceKeyWidth), nil), big.NewInt(1))

func buildBookKey(side models.OrderSide) string {
	return fmt.Sprintf(ordersBookKey, side)
}

func buildOwnerKey(ownerId string) string {
	return fmt.Sprintf(ordersOwnerKey, ownerId)
}

func buildHistoryKey(orderId string) string {
	return fmt.Sprintf(orderHistoryKey, orderId)
}

// buildBookMember encodes an order so that lexicographic order inside the
// side's sorted set equals price/time priority: best price first, then
// earliest creation, then id.
func buildBookMember(order models.OrderModel) string {
	scaled := order.Price.Shift(priceScale).Truncate(0).BigInt()

	if order.Side == models.OrderSideBuy {
		scaled = new(big.Int).Sub(priceKeyCeiling, scaled)
	}

	price := scaled.String()

	return fmt.Sprintf("%s%s:%0*d:%s",
		strings.Repeat("0", priceKeyWidth-len(price)), price,
		timeKeyWidth, order.CreationDate.UTC().UnixNano(),
		order.OrderId)
}

func orderIdFromBookMember(member string) string {
	return member[strings.LastIndex(member, ":")+1:]
}

func timeScore(order models.OrderModel) float64 {
	return float64(order.CreationDate.UTC().UnixMicro())
}

type OrdersStorage struct {
	client *RedisClient
}

func NewOrdersStorage(client *RedisClient) *OrdersStorage {
	return &OrdersStorage{client: client}
}

func (o *OrdersStorage) AddOrderToStorage(ctx context.Context, orderInfo models.OrderModel, history models.StatusHistoryModel) error {
	orderData, err := json.Marshal(orderInfo)

	if err != nil {
		return err
	}

	historyData, err := json.Marshal(history)

	if err != nil {
		return err
	}

	tx := o.client.performTx(ctx)

	return tx.
		addInHash(ctx, ordersHashKey, orderInfo.OrderId, orderData).
		addInZSet(ctx, buildBookKey(orderInfo.Side), buildBookMember(orderInfo), 0).
		addInZSet(ctx, buildOwnerKey(orderInfo.OwnerId), orderInfo.OrderId, timeScore(orderInfo)).
		appendToList(ctx, buildHistoryKey(orderInfo.OrderId), historyData).
		execTx(ctx)
}

func (o *OrdersStorage) GetOrderFromStorage(ctx context.Context, id string) (*models.OrderModel, error) {
	return getOrder(ctx, o.client, id)
}

func getOrder(ctx context.Context, client *RedisClient, id string) (*models.OrderModel, error) {
	jsonData, err := client.getFromHash(ctx, ordersHashKey, id)

	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", staticerr.ErrorOrderNotFound, id)
	}

	if err != nil {
		return nil, err
	}

	var orderInfo models.OrderModel

	if err = json.Unmarshal([]byte(*jsonData), &orderInfo); err != nil {
		return nil, err
	}

	return &orderInfo, nil
}

func getOrders(ctx context.Context, client *RedisClient, ids []string) ([]models.OrderModel, error) {
	values, err := client.getManyFromHash(ctx, ordersHashKey, ids...)

	if err != nil {
		return nil, err
	}

	orders := make([]models.OrderModel, 0, len(values))

	for _, value := range values {
		var orderInfo models.OrderModel

		if err = json.Unmarshal([]byte(value), &orderInfo); err != nil {
			return nil, err
		}

		orders = append(orders, orderInfo)
	}

	return orders, nil
}

// GetStatusHistory returns the order's transitions, most recent first.
func (o *OrdersStorage) GetStatusHistory(ctx context.Context, id string) ([]models.StatusHistoryModel, error) {
	values, err := o.client.getAllFromList(ctx, buildHistoryKey(id))

	if err != nil {
		return nil, err
	}

	history := make([]models.StatusHistoryModel, len(values))

	for i, value := range values {
		if err = json.Unmarshal([]byte(value), &history[len(values)-1-i]); err != nil {
			return nil, err
		}
	}

	return history, nil
}

func (o *OrdersStorage) GetOrderBook(ctx context.Context, side models.OrderSide, limit, offset int) ([]models.OrderModel, int64, error) {
	orders, err := getActiveOrders(ctx, o.client, side, limit, offset)

	if err != nil {
		return nil, 0, err
	}

	total, err := o.client.countZSet(ctx, buildBookKey(side))

	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func getActiveOrders(ctx context.Context, client *RedisClient, side models.OrderSide, limit, offset int) ([]models.OrderModel, error) {
	members, err := client.rangeFromZSet(ctx, buildBookKey(side), offset, limit, false)

	if err != nil {
		return nil, err
	}

	ids := make([]string, len(members))
	for i, member := range members {
		ids[i] = orderIdFromBookMember(member)
	}

	return getOrders(ctx, client, ids)
}

func (o *OrdersStorage) GetOrdersByOwner(ctx context.Context, ownerId string, limit, offset int) ([]models.OrderModel, int64, error) {
	ids, err := o.client.rangeFromZSet(ctx, buildOwnerKey(ownerId), offset, limit, true)

	if err != nil {
		return nil, 0, err
	}

	orders, err := getOrders(ctx, o.client, ids)

	if err != nil {
		return nil, 0, err
	}

	total, err := o.client.countZSet(ctx, buildOwnerKey(ownerId))

	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (o *OrdersStorage) PerformTx(ctx context.Context, fn TxFunc) error {
	tx := newOrderTx(o.client)
	defer tx.unlockAll(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	return tx.commit(ctx)
}
