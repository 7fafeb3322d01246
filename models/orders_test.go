package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var at = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func newOrder(side OrderSide, price, qty string) OrderModel {
	q := decimal.RequireFromString(qty)
	return OrderModel{
		OrderId:   "o1",
		Side:      side,
		Price:     decimal.RequireFromString(price),
		Quantity:  q,
		Remaining: q,
		State:     OrderStatusOpen,
	}
}

func TestOrderSide(t *testing.T) {
	assert.True(t, OrderSideBuy.Valid())
	assert.True(t, OrderSideSell.Valid())
	assert.False(t, OrderSide("buy").Valid())
	assert.Equal(t, OrderSideSell, OrderSideBuy.Opposite())
	assert.Equal(t, OrderSideBuy, OrderSideSell.Opposite())
}

func TestOrderModel_Crosses(t *testing.T) {
	tests := []struct {
		name      string
		aggressor OrderModel
		counter   OrderModel
		want      bool
	}{
		{"buy above ask", newOrder(OrderSideBuy, "100.50", "1"), newOrder(OrderSideSell, "99.75", "1"), true},
		{"buy at ask", newOrder(OrderSideBuy, "100", "1"), newOrder(OrderSideSell, "100.00", "1"), true},
		{"buy below ask", newOrder(OrderSideBuy, "100.00", "1"), newOrder(OrderSideSell, "100.25", "1"), false},
		{"sell below bid", newOrder(OrderSideSell, "99", "1"), newOrder(OrderSideBuy, "100", "1"), true},
		{"sell above bid", newOrder(OrderSideSell, "101", "1"), newOrder(OrderSideBuy, "100", "1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.aggressor.Crosses(tt.counter))
		})
	}
}

func TestOrderModel_Fill(t *testing.T) {
	order := newOrder(OrderSideBuy, "100", "10")

	assert.True(t, order.Fill(decimal.RequireFromString("4"), at))
	assert.Equal(t, OrderStatusPartial, order.State)
	assert.True(t, order.Remaining.Equal(decimal.RequireFromString("6")))
	assert.Equal(t, at, order.UpdatedDate)

	assert.False(t, order.Fill(decimal.RequireFromString("1"), at), "partial stays partial")
	assert.Equal(t, OrderStatusPartial, order.State)

	assert.True(t, order.Fill(decimal.RequireFromString("5"), at))
	assert.Equal(t, OrderStatusFilled, order.State)
	assert.True(t, order.Remaining.IsZero())
	assert.False(t, order.IsActive())
}

func TestOrderModel_Expire(t *testing.T) {
	open := newOrder(OrderSideSell, "100", "1")
	assert.True(t, open.Expire(at))
	assert.Equal(t, OrderStatusExpired, open.State)
	assert.False(t, open.Expire(at), "already expired")

	filled := newOrder(OrderSideSell, "100", "1")
	filled.Fill(decimal.RequireFromString("1"), at)
	assert.False(t, filled.Expire(at), "fill wins over expiry")
	assert.Equal(t, OrderStatusFilled, filled.State)
}

func TestCanTransition(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusOpen:    {OrderStatusPartial, OrderStatusFilled, OrderStatusExpired},
		OrderStatusPartial: {OrderStatusPartial, OrderStatusFilled, OrderStatusExpired},
	}
	all := []OrderStatus{OrderStatusOpen, OrderStatusPartial, OrderStatusFilled, OrderStatusExpired}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, Pagination{Page: 1, Limit: 10}, NewPagination(0, 0))
	assert.Equal(t, Pagination{Page: 3, Limit: 100}, NewPagination(3, 500))
	assert.Equal(t, 40, NewPagination(5, 10).Offset())

	far := NewPagination(1<<62, 4)
	assert.Equal(t, MaxPage, far.Page)
	assert.Equal(t, (MaxPage-1)*4, far.Offset())
	assert.Equal(t, (MaxPage-1)*MaxLimit, Pagination{Page: 1 << 62, Limit: 1 << 40}.Offset(), "unclamped literal")
}

func TestNewPage(t *testing.T) {
	page := NewPage[TradeModel](nil, 0, NewPagination(1, 10))
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}
