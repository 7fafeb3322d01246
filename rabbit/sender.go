package rabbit

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

// Sender publishes JSON messages over one channel; sends are serialised.
type Sender struct {
	mu      *sync.Mutex
	channel *amqp091.Channel
}

func NewSender(ctx context.Context, channel *amqp091.Channel) Sender {
	s := Sender{mu: &sync.Mutex{}, channel: channel}
	go s.handleGraceful(ctx)
	return s
}

func (s Sender) SendMessage(ctx context.Context, message interface{}, exchange, rk string) error {
	bytes, err := json.Marshal(message)

	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.channel.PublishWithContext(ctx, exchange, rk, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Body:         bytes,
	})
}

// declare runs fn against the sender's channel under the send lock.
func (s Sender) declare(fn func(ch *amqp091.Channel) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(s.channel)
}

func (s Sender) declareQueue(name string, args amqp091.Table) error {
	return s.declare(func(ch *amqp091.Channel) error {
		_, err := ch.QueueDeclare(name, true, false, false, false, args)
		return err
	})
}

func (s Sender) handleGraceful(ctx context.Context) {
	<-ctx.Done()
	s.channel.Close()
}
