package service

import (
	"context"
	"trade-order-matching-service/models"
)

type iTradeStorage interface {
	GetTradesByOwner(ctx context.Context, ownerId string, limit, offset int) ([]models.TradeModel, int64, error)
}

type TradeService struct {
	tradeStorage iTradeStorage
}

func NewTradeService(tradeStorage iTradeStorage) *TradeService {
	return &TradeService{tradeStorage: tradeStorage}
}

// ListTrades returns the trades ownerId took part in, newest first.
func (t *TradeService) ListTrades(ctx context.Context, ownerId string, p models.Pagination) (models.Page[models.TradeModel], error) {
	trades, total, err := t.tradeStorage.GetTradesByOwner(ctx, ownerId, p.Limit, p.Offset())

	if err != nil {
		return models.Page[models.TradeModel]{}, err
	}

	return models.NewPage(trades, total, p), nil
}
