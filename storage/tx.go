package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"trade-order-matching-service/models"
	"trade-order-matching-service/staticerr"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
)

const orderLockTTL = 30 * time.Second

// orderTx buffers the writes of one unit of work. Every order it touches
// is locked with SET NX under the transaction's token, and the buffered
// writes are applied in a single MULTI/EXEC guarded by WATCH on those lock
// keys.
type orderTx struct {
	client  *RedisClient
	token   string
	locks   []string
	orders  map[string]*models.OrderModel
	dirty   []string
	trades  []models.TradeModel
	history []models.StatusHistoryModel
}

func newOrderTx(client *RedisClient) *orderTx {
	return &orderTx{
		client: client,
		token:  uuid.NewString(),
		orders: make(map[string]*models.OrderModel),
	}
}

func (x *orderTx) LockOrder(ctx context.Context, id string) (*models.OrderModel, error) {
	if order, ok := x.orders[id]; ok {
		locked := *order
		return &locked, nil
	}

	if err := x.client.setNX(ctx, ordersLocksKey+id, x.token, orderLockTTL); err != nil {
		return nil, fmt.Errorf("lock order %s: %w", id, err)
	}

	x.locks = append(x.locks, ordersLocksKey+id)

	order, err := getOrder(ctx, x.client, id)

	if err != nil {
		return nil, err
	}

	x.orders[id] = order

	locked := *order
	return &locked, nil
}

func (x *orderTx) GetActiveOrders(ctx context.Context, side models.OrderSide, limit, offset int) ([]models.OrderModel, error) {
	return getActiveOrders(ctx, x.client, side, limit, offset)
}

func (x *orderTx) SaveOrder(ctx context.Context, order models.OrderModel) error {
	current, ok := x.orders[order.OrderId]

	if !ok {
		return fmt.Errorf("save order %s without lock: %w", order.OrderId, staticerr.ErrorResourceIsLocked)
	}

	if current.State != order.State && !models.CanTransition(current.State, order.State) {
		return fmt.Errorf("%w: order %s cannot move from %s to %s", staticerr.ErrorValidation, order.OrderId, current.State, order.State)
	}

	*current = order

	for _, id := range x.dirty {
		if id == order.OrderId {
			return nil
		}
	}

	x.dirty = append(x.dirty, order.OrderId)
	return nil
}

func (x *orderTx) AddTrade(ctx context.Context, trade models.TradeModel) error {
	x.trades = append(x.trades, trade)
	return nil
}

func (x *orderTx) AddStatusHistory(ctx context.Context, entry models.StatusHistoryModel) error {
	x.history = append(x.history, entry)
	return nil
}

func (x *orderTx) commit(ctx context.Context) error {
	if len(x.dirty) == 0 && len(x.trades) == 0 && len(x.history) == 0 {
		return nil
	}

	orderData := make(map[string][]byte, len(x.dirty))

	for _, id := range x.dirty {
		data, err := json.Marshal(x.orders[id])
		if err != nil {
			return err
		}
		orderData[id] = data
	}

	tradeData := make([][]byte, len(x.trades))

	for i, trade := range x.trades {
		data, err := json.Marshal(trade)
		if err != nil {
			return err
		}
		tradeData[i] = data
	}

	historyData := make([][]byte, len(x.history))

	for i, entry := range x.history {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		historyData[i] = data
	}

	return x.client.watchedTx(ctx, x.locks, x.token, func(tx *TxContainer) {
		for _, id := range x.dirty {
			order := x.orders[id]
			tx.addInHash(ctx, ordersHashKey, id, orderData[id])

			if order.IsActive() {
				tx.addInZSet(ctx, buildBookKey(order.Side), buildBookMember(*order), 0)
			} else {
				tx.removeFromZSet(ctx, buildBookKey(order.Side), buildBookMember(*order))
			}
		}

		for i, trade := range x.trades {
			score := float64(trade.CreationDate.UTC().UnixMicro())

			tx.addInHash(ctx, tradesHashKey, trade.TradeId, tradeData[i]).
				addInZSet(ctx, buildTradesOwnerKey(trade.BuyerId), trade.TradeId, score).
				addInZSet(ctx, buildTradesOwnerKey(trade.SellerId), trade.TradeId, score)
		}

		for i, entry := range x.history {
			tx.appendToList(ctx, buildHistoryKey(entry.OrderId), historyData[i])
		}
	})
}

func (x *orderTx) unlockAll(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	for _, key := range x.locks {
		if err := x.client.deleteWithValue(ctx, key, x.token); err != nil {
			logger.WithField("lock", key).Warningln("Release order lock failed, reason: ", err.Error())
		}
	}
}
