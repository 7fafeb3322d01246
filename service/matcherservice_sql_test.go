package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"
	"trade-order-matching-service/models"
	"trade-order-matching-service/storage/sqlstore"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newSQLStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "orders.db")), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)

	store, err := sqlstore.New(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func restingOrder(id, owner string, side models.OrderSide, price, qty string, at time.Time) models.OrderModel {
	q := dec(qty)
	return models.OrderModel{
		OrderId:      id,
		OwnerId:      owner,
		Side:         side,
		Type:         models.OrderTypeLimit,
		Price:        dec(price),
		Quantity:     q,
		Remaining:    q,
		State:        models.OrderStatusOpen,
		ValidityDays: models.DefaultValidityDays,
		CreationDate: at,
		UpdatedDate:  at,
	}
}

func historyStatuses(history []models.StatusHistoryModel) []models.OrderStatus {
	statuses := make([]models.OrderStatus, len(history))
	for i, entry := range history {
		statuses[i] = entry.State
	}
	return statuses
}

func TestMatcherService_ChunkedOverSQLStore(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()

	orders := []models.OrderModel{
		restingOrder("s1", "seller", models.OrderSideSell, "99.75", "3", baseTime.Add(1*time.Second)),
		restingOrder("s2", "seller", models.OrderSideSell, "99.75", "3", baseTime.Add(2*time.Second)),
		restingOrder("s3", "seller", models.OrderSideSell, "99.50", "3", baseTime.Add(3*time.Second)),
		restingOrder("b1", "buyer", models.OrderSideBuy, "100", "8", baseTime.Add(4*time.Second)),
	}
	for _, order := range orders {
		require.NoError(t, store.AddOrderToStorage(ctx, order, models.NewStatusHistory(order, models.StatusActorUser, order.CreationDate)))
	}

	clock := baseTime.Add(time.Minute)
	matcher := NewMatcherService(store, nil, 2)
	matcher.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	report, err := matcher.Match(ctx, "b1")
	require.NoError(t, err)

	require.Len(t, report.Trades, 3)
	expected := []struct {
		sell  string
		price string
		qty   string
	}{
		{"s3", "99.50", "3"},
		{"s1", "99.75", "3"},
		{"s2", "99.75", "2"},
	}
	for i, want := range expected {
		trade := report.Trades[i]
		assert.Equal(t, want.sell, trade.SellOrderId, "trade %d", i)
		assert.True(t, trade.Price.Equal(dec(want.price)), "trade %d price %s", i, trade.Price)
		assert.True(t, trade.Quantity.Equal(dec(want.qty)), "trade %d qty %s", i, trade.Quantity)
	}

	assert.Equal(t, models.OrderStatusFilled, report.Order.State)
	assert.True(t, report.Order.Remaining.IsZero())

	s2, err := store.GetOrderFromStorage(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPartial, s2.State)
	assert.True(t, s2.Remaining.Equal(dec("1")))

	book, total, err := store.GetOrderBook(ctx, models.OrderSideSell, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, book, 1)
	assert.Equal(t, "s2", book[0].OrderId)

	history, err := store.GetStatusHistory(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, []models.OrderStatus{models.OrderStatusFilled, models.OrderStatusPartial, models.OrderStatusOpen}, historyStatuses(history))
	assert.Equal(t, models.StatusActorSystem, history[0].Actor)

	history, err = store.GetStatusHistory(ctx, "s3")
	require.NoError(t, err)
	assert.Equal(t, []models.OrderStatus{models.OrderStatusFilled, models.OrderStatusOpen}, historyStatuses(history))

	trades, count, err := store.GetTradesByOwner(ctx, "seller", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Len(t, trades, 3)
}
