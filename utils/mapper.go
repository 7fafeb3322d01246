package utils

import (
	"time"
	"trade-order-matching-service/models"
)

type HistoryResponse struct {
	Status    models.OrderStatus `json:"status"`
	Actor     models.StatusActor `json:"actor"`
	CreatedAt time.Time          `json:"created_at"`
}

type OrderResponse struct {
	OrderId      string             `json:"order_id"`
	OwnerId      string             `json:"owner_id"`
	Side         models.OrderSide   `json:"side"`
	Type         models.OrderType   `json:"type"`
	Price        string             `json:"price"`
	Quantity     string             `json:"quantity"`
	Remaining    string             `json:"remaining"`
	Filled       string             `json:"filled"`
	Status       models.OrderStatus `json:"status"`
	ValidityDays int                `json:"validity_days"`
	ExpiresAt    time.Time          `json:"expires_at"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	History      []HistoryResponse  `json:"history,omitempty"`
}

type TradeResponse struct {
	TradeId     string           `json:"trade_id"`
	Side        models.OrderSide `json:"side"`
	BuyOrderId  string           `json:"buy_order_id"`
	SellOrderId string           `json:"sell_order_id"`
	Price       string           `json:"price"`
	Quantity    string           `json:"quantity"`
	CreatedAt   time.Time        `json:"created_at"`
}

func MapOrderToResponse(model models.OrderModel, history []models.StatusHistoryModel) OrderResponse {
	response := OrderResponse{
		OrderId:      model.OrderId,
		OwnerId:      model.OwnerId,
		Side:         model.Side,
		Type:         model.Type,
		Price:        model.Price.String(),
		Quantity:     model.Quantity.String(),
		Remaining:    model.Remaining.String(),
		Filled:       model.Quantity.Sub(model.Remaining).String(),
		Status:       model.State,
		ValidityDays: model.ValidityDays,
		ExpiresAt:    model.CreationDate.AddDate(0, 0, model.ValidityDays).UTC(),
		CreatedAt:    model.CreationDate.UTC(),
		UpdatedAt:    model.UpdatedDate.UTC(),
	}

	for _, entry := range history {
		response.History = append(response.History, HistoryResponse{
			Status:    entry.State,
			Actor:     entry.Actor,
			CreatedAt: entry.CreationDate.UTC(),
		})
	}

	return response
}

func MapOrdersToResponse(orders []models.OrderModel) []OrderResponse {
	responses := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		responses = append(responses, MapOrderToResponse(order, nil))
	}
	return responses
}

// MapTradeToResponse renders a trade from ownerId's point of view.
func MapTradeToResponse(trade models.TradeModel, ownerId string) TradeResponse {
	side := models.OrderSideSell
	if trade.BuyerId == ownerId {
		side = models.OrderSideBuy
	}

	return TradeResponse{
		TradeId:     trade.TradeId,
		Side:        side,
		BuyOrderId:  trade.BuyOrderId,
		SellOrderId: trade.SellOrderId,
		Price:       trade.Price.String(),
		Quantity:    trade.Quantity.String(),
		CreatedAt:   trade.CreationDate.UTC(),
	}
}

func MapTradesToResponse(trades []models.TradeModel, ownerId string) []TradeResponse {
	responses := make([]TradeResponse, 0, len(trades))
	for _, trade := range trades {
		responses = append(responses, MapTradeToResponse(trade, ownerId))
	}
	return responses
}
