// Package events publishes committed trades to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"
	"trade-order-matching-service/models"

	"github.com/segmentio/kafka-go"
)

const TradeExecuted = "TRADE_EXECUTED"

type TradeEvent struct {
	Type        string            `json:"type"`
	Trade       models.TradeModel `json:"trade"`
	PublishedAt time.Time         `json:"published_at"`
}

type iMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type TradePublisher struct {
	writer iMessageWriter
	now    func() time.Time
}

func NewTradePublisher(brokers []string, topic string) *TradePublisher {
	return &TradePublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		now: time.Now,
	}
}

// PublishTrades writes one message per trade, keyed by the buy order id so
// that the trades of one order keep their relative order.
func (p *TradePublisher) PublishTrades(ctx context.Context, trades []models.TradeModel) error {
	if len(trades) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(trades))
	publishedAt := p.now().UTC()

	for _, trade := range trades {
		value, err := json.Marshal(TradeEvent{Type: TradeExecuted, Trade: trade, PublishedAt: publishedAt})

		if err != nil {
			return err
		}

		messages = append(messages, kafka.Message{
			Key:   []byte(trade.BuyOrderId),
			Value: value,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(TradeExecuted)},
			},
		})
	}

	return p.writer.WriteMessages(ctx, messages...)
}

func (p *TradePublisher) Close() error {
	return p.writer.Close()
}
