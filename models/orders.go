package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Opposite returns the side an order of this side is matched against.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

type OrderStatus string

const (
	OrderStatusOpen    OrderStatus = "OPEN"
	OrderStatusPartial OrderStatus = "PARTIAL"
	OrderStatusFilled  OrderStatus = "FILLED"
	OrderStatusExpired OrderStatus = "EXPIRED"
)

// ActiveStatuses are the statuses of orders resting in the book.
var ActiveStatuses = []OrderStatus{OrderStatusOpen, OrderStatusPartial}

// OrderType lists the order kinds a client may declare. Only limit orders
// are executed; the rest are rejected at placement.
type OrderType string

const (
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeStopLoss   OrderType = "STOP_LOSS"
	OrderTypeTakeProfit OrderType = "TAKE_PROFIT"
	OrderTypeIceberg    OrderType = "ICEBERG"
)

type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
	TimeInForceDAY TimeInForce = "DAY"
)

const (
	DefaultValidityDays = 60
	MinValidityDays     = 1
	MaxValidityDays     = 60
)

type OrderModel struct {
	OrderId      string          `json:"order_id" gorm:"primaryKey;type:varchar(36)"`
	OwnerId      string          `json:"owner_id" gorm:"type:varchar(64);not null;index:idx_owner_created,priority:1"`
	Side         OrderSide       `json:"side" gorm:"type:varchar(4);not null;index:idx_side_status_price_created,priority:1"`
	Type         OrderType       `json:"type" gorm:"type:varchar(16);not null;default:LIMIT"`
	Price        decimal.Decimal `json:"price" gorm:"type:numeric(18,8);not null;index:idx_side_status_price_created,priority:3"`
	Quantity     decimal.Decimal `json:"quantity" gorm:"type:numeric(18,8);not null"`
	Remaining    decimal.Decimal `json:"remaining" gorm:"type:numeric(18,8);not null"`
	State        OrderStatus     `json:"status" gorm:"column:status;type:varchar(8);not null;index:idx_side_status_price_created,priority:2"`
	ValidityDays int             `json:"validity_days" gorm:"not null;default:60"`
	CreationDate time.Time       `json:"created_at" gorm:"column:created_at;not null;index:idx_side_status_price_created,priority:4;index:idx_owner_created,priority:2"`
	UpdatedDate  time.Time       `json:"updated_at" gorm:"column:updated_at;not null"`
}

func (OrderModel) TableName() string {
	return "orders"
}

func (o OrderModel) IsActive() bool {
	return o.State == OrderStatusOpen || o.State == OrderStatusPartial
}

// Crosses reports whether o, as the aggressor, can trade against counter.
func (o OrderModel) Crosses(counter OrderModel) bool {
	if o.Side == OrderSideBuy {
		return o.Price.GreaterThanOrEqual(counter.Price)
	}
	return o.Price.LessThanOrEqual(counter.Price)
}

// Fill decrements remaining by qty and recomputes the status. It reports
// whether the status changed.
func (o *OrderModel) Fill(qty decimal.Decimal, at time.Time) bool {
	previous := o.State

	o.Remaining = o.Remaining.Sub(qty)
	o.State = statusForRemaining(o.Remaining, o.Quantity)
	o.UpdatedDate = at

	return previous != o.State
}

// Expire moves an active order to EXPIRED. Filled and already expired
// orders are left untouched.
func (o *OrderModel) Expire(at time.Time) bool {
	if !o.IsActive() {
		return false
	}

	o.State = OrderStatusExpired
	o.UpdatedDate = at
	return true
}

func statusForRemaining(remaining, quantity decimal.Decimal) OrderStatus {
	switch {
	case remaining.IsZero():
		return OrderStatusFilled
	case remaining.Equal(quantity):
		return OrderStatusOpen
	default:
		return OrderStatusPartial
	}
}

// CanTransition reports whether the status machine allows from -> to.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case OrderStatusOpen:
		return to == OrderStatusPartial || to == OrderStatusFilled || to == OrderStatusExpired
	case OrderStatusPartial:
		return to == OrderStatusPartial || to == OrderStatusFilled || to == OrderStatusExpired
	default:
		return false
	}
}
