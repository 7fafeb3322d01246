package storage

import (
	"context"
	"trade-order-matching-service/models"
)

// OrderTx is the unit of work used by matching chunks and expiry. Orders
// must be locked before they are saved; every write becomes visible
// atomically when the enclosing PerformTx callback returns nil.
type OrderTx interface {
	LockOrder(ctx context.Context, id string) (*models.OrderModel, error)
	GetActiveOrders(ctx context.Context, side models.OrderSide, limit, offset int) ([]models.OrderModel, error)
	SaveOrder(ctx context.Context, order models.OrderModel) error
	AddTrade(ctx context.Context, trade models.TradeModel) error
	AddStatusHistory(ctx context.Context, entry models.StatusHistoryModel) error
}

type TxFunc func(ctx context.Context, tx OrderTx) error
