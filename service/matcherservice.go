package service

import (
	"context"
	"fmt"
	"time"
	"trade-order-matching-service/models"
	"trade-order-matching-service/staticerr"
	"trade-order-matching-service/storage"
	"trade-order-matching-service/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultChunkSize = 200

type iMatchingStorage interface {
	GetOrderFromStorage(ctx context.Context, id string) (*models.OrderModel, error)
	PerformTx(ctx context.Context, fn storage.TxFunc) error
}

type iTradePublisher interface {
	PublishTrades(ctx context.Context, trades []models.TradeModel) error
}

// MatchReport is the outcome of one matching pass over an order.
type MatchReport struct {
	Order  *models.OrderModel
	Trades []models.TradeModel
}

type MatcherService struct {
	storage   iMatchingStorage
	publisher iTradePublisher
	chunkSize int
	now       func() time.Time
}

func NewMatcherService(storage iMatchingStorage, publisher iTradePublisher, chunkSize int) *MatcherService {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	return &MatcherService{storage: storage, publisher: publisher, chunkSize: chunkSize, now: time.Now}
}

func (m *MatcherService) MatchOrder(ctx context.Context, id string) (*models.OrderModel, error) {
	report, err := m.Match(ctx, id)

	if err != nil {
		return nil, err
	}

	return report.Order, nil
}

// Match runs the order against the opposite side of the book chunk by
// chunk until it is filled or nothing crosses. Every chunk commits on its
// own; a failing chunk leaves earlier ones in place.
func (m *MatcherService) Match(ctx context.Context, id string) (*MatchReport, error) {
	order, err := m.storage.GetOrderFromStorage(ctx, id)

	if err != nil {
		return nil, err
	}

	report := &MatchReport{Order: order}

	if !order.IsActive() {
		logrus.WithFields(logrus.Fields{
			"orderId": id,
			"status":  order.State}).Infoln("Order is not active, skip matching...")
		return report, nil
	}

	offset := 0

	for chunk := 1; ; chunk++ {
		result, err := m.matchChunk(ctx, id, offset)

		if err != nil {
			logrus.WithFields(logrus.Fields{
				"orderId": id,
				"chunk":   chunk}).Warningln("Matching chunk aborted, reason: ", err.Error())
			return nil, err
		}

		report.Order = result.order
		report.Trades = append(report.Trades, result.trades...)

		m.publish(ctx, id, result.trades)

		if result.done {
			break
		}

		offset = result.nextOffset
	}

	logrus.WithFields(logrus.Fields{
		"orderId":   id,
		"status":    report.Order.State,
		"remaining": report.Order.Remaining.String(),
		"trades":    len(report.Trades)}).Infoln("Matching pass finished")

	return report, nil
}

type chunkResult struct {
	order      *models.OrderModel
	trades     []models.TradeModel
	done       bool
	nextOffset int
}

func (m *MatcherService) matchChunk(ctx context.Context, id string, offset int) (*chunkResult, error) {
	var result *chunkResult

	err := m.storage.PerformTx(ctx, func(ctx context.Context, tx storage.OrderTx) error {
		result = &chunkResult{}

		aggressor, err := tx.LockOrder(ctx, id)

		if err != nil {
			return err
		}

		result.order = aggressor

		if !aggressor.IsActive() || !aggressor.Remaining.IsPositive() {
			result.done = true
			return nil
		}

		counters, err := tx.GetActiveOrders(ctx, aggressor.Side.Opposite(), m.chunkSize, offset)

		if err != nil {
			return err
		}

		examined, stillActive := 0, 0

		for _, counter := range counters {
			if !aggressor.Remaining.IsPositive() || !aggressor.Crosses(counter) {
				break
			}

			locked, err := tx.LockOrder(ctx, counter.OrderId)

			if err != nil {
				return err
			}

			if !locked.IsActive() || !locked.Remaining.IsPositive() {
				return fmt.Errorf("%w: counter order %s is %s", staticerr.ErrorOrderConsumed, locked.OrderId, locked.State)
			}

			trade, err := m.execute(ctx, tx, aggressor, locked)

			if err != nil {
				return err
			}

			result.trades = append(result.trades, trade)
			examined++

			if locked.IsActive() {
				stillActive++
			}
		}

		result.done = examined < m.chunkSize || !aggressor.Remaining.IsPositive()
		result.nextOffset = offset + stillActive
		return nil
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

// execute trades the smaller remaining of both orders at the counter
// order's price and records a status entry for each order whose status
// changed.
func (m *MatcherService) execute(ctx context.Context, tx storage.OrderTx, aggressor, counter *models.OrderModel) (models.TradeModel, error) {
	at := m.now().UTC()
	qty := utils.MinDecimal(aggressor.Remaining, counter.Remaining)
	trade := newTrade(*aggressor, *counter, qty, at)

	for _, order := range []*models.OrderModel{aggressor, counter} {
		changed := order.Fill(qty, at)

		if err := tx.SaveOrder(ctx, *order); err != nil {
			return models.TradeModel{}, err
		}

		if !changed {
			continue
		}

		if err := tx.AddStatusHistory(ctx, models.NewStatusHistory(*order, models.StatusActorSystem, at)); err != nil {
			return models.TradeModel{}, err
		}
	}

	if err := tx.AddTrade(ctx, trade); err != nil {
		return models.TradeModel{}, err
	}

	logrus.WithFields(logrus.Fields{
		"orderId":        aggressor.OrderId,
		"matchedOrderId": counter.OrderId,
		"price":          trade.Price.String(),
		"quantity":       qty.String()}).Debugln("Trade executed")

	return trade, nil
}

func newTrade(aggressor, counter models.OrderModel, qty decimal.Decimal, at time.Time) models.TradeModel {
	buy, sell := aggressor, counter

	if aggressor.Side == models.OrderSideSell {
		buy, sell = counter, aggressor
	}

	return models.TradeModel{
		TradeId:      uuid.NewString(),
		BuyOrderId:   buy.OrderId,
		SellOrderId:  sell.OrderId,
		BuyerId:      buy.OwnerId,
		SellerId:     sell.OwnerId,
		Price:        counter.Price,
		Quantity:     qty,
		CreationDate: at,
	}
}

func (m *MatcherService) publish(ctx context.Context, id string, trades []models.TradeModel) {
	if m.publisher == nil || len(trades) == 0 {
		return
	}

	if err := m.publisher.PublishTrades(ctx, trades); err != nil {
		logrus.WithField("orderId", id).Warningln("Publish trades failed, reason: ", err.Error())
	}
}
