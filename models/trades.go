package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeModel struct {
	TradeId      string          `json:"trade_id" gorm:"primaryKey;type:varchar(36)"`
	BuyOrderId   string          `json:"buy_order_id" gorm:"type:varchar(36);not null;index"`
	SellOrderId  string          `json:"sell_order_id" gorm:"type:varchar(36);not null;index"`
	BuyerId      string          `json:"buyer_id" gorm:"type:varchar(64);not null;index:idx_trades_buyer"`
	SellerId     string          `json:"seller_id" gorm:"type:varchar(64);not null;index:idx_trades_seller"`
	Price        decimal.Decimal `json:"price" gorm:"type:numeric(18,8);not null"`
	Quantity     decimal.Decimal `json:"quantity" gorm:"type:numeric(18,8);not null"`
	CreationDate time.Time       `json:"created_at" gorm:"column:created_at;not null;index"`
}

func (TradeModel) TableName() string {
	return "trades"
}

// InvolvesOwner reports whether ownerId bought or sold in this trade.
func (t TradeModel) InvolvesOwner(ownerId string) bool {
	return t.BuyerId == ownerId || t.SellerId == ownerId
}
