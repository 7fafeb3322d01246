package utils

import (
	"testing"
	"time"
	"trade-order-matching-service/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestReprocessDelay(t *testing.T) {
	tests := []struct {
		name     string
		progress bool
		count    int
		want     time.Duration
	}{
		{"partial first pass", true, 0, time.Minute},
		{"partial third pass", true, 2, 3 * time.Minute},
		{"partial capped", true, 7, 5 * time.Minute},
		{"idle first pass", false, 0, 15 * time.Minute},
		{"idle second pass", false, 1, 30 * time.Minute},
		{"idle capped", false, 9, time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReprocessDelay(DefaultDelayPolicy, tt.progress, tt.count))
		})
	}
}

func TestValidDecimal(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"100.50", true},
		{"0.00000001", true},
		{"1.500000000000", true},
		{"0.000000001", false},
		{"0", false},
		{"-1", false},
		{"9999999999.99999999", true},
		{"10000000000", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidDecimal(decimal.RequireFromString(tt.value)), tt.value)
	}
}

func TestMinDecimal(t *testing.T) {
	a := decimal.RequireFromString("4")
	b := decimal.RequireFromString("10")
	assert.True(t, MinDecimal(a, b).Equal(a))
	assert.True(t, MinDecimal(b, a).Equal(a))
}

func TestMapOrderToResponse(t *testing.T) {
	created := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	order := models.OrderModel{
		OrderId:      "o1",
		OwnerId:      "u1",
		Side:         models.OrderSideBuy,
		Type:         models.OrderTypeLimit,
		Price:        decimal.RequireFromString("100.50"),
		Quantity:     decimal.RequireFromString("10"),
		Remaining:    decimal.RequireFromString("6"),
		State:        models.OrderStatusPartial,
		ValidityDays: 2,
		CreationDate: created,
		UpdatedDate:  created.Add(time.Minute),
	}
	history := []models.StatusHistoryModel{
		{OrderId: "o1", State: models.OrderStatusPartial, Actor: models.StatusActorSystem, CreationDate: created.Add(time.Minute)},
		{OrderId: "o1", State: models.OrderStatusOpen, Actor: models.StatusActorUser, CreationDate: created},
	}

	response := MapOrderToResponse(order, history)

	assert.Equal(t, "100.5", response.Price)
	assert.Equal(t, "4", response.Filled)
	assert.Equal(t, created.AddDate(0, 0, 2), response.ExpiresAt)
	assert.Len(t, response.History, 2)
	assert.Equal(t, models.StatusActorSystem, response.History[0].Actor)
}

func TestMapTradeToResponse(t *testing.T) {
	trade := models.TradeModel{TradeId: "t1", BuyerId: "b", SellerId: "s", Price: decimal.RequireFromString("99.75"), Quantity: decimal.RequireFromString("4")}

	assert.Equal(t, models.OrderSideBuy, MapTradeToResponse(trade, "b").Side)
	assert.Equal(t, models.OrderSideSell, MapTradeToResponse(trade, "s").Side)
	assert.Equal(t, "99.75", MapTradeToResponse(trade, "s").Price)
}
