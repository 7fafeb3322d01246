package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"trade-order-matching-service/queue"
	"trade-order-matching-service/staticerr"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	TasksExchange    = "orderbook.tasks"
	delayQueueGrace  = time.Minute
	defaultPrefetch  = 10
	defaultConsumers = 1
)

func workQueueName(kind queue.Kind) string {
	return fmt.Sprintf("%s.%s", TasksExchange, kind)
}

func failedQueueName(kind queue.Kind) string {
	return workQueueName(kind) + ".failed"
}

// delayQueueName holds messages of one kind for a fixed delay. Queues are
// shared by every task with the same delay. The broker deletes one after
// x-expires without a declare, so every delayed publish redeclares it.
func delayQueueName(kind queue.Kind, delay time.Duration) string {
	return fmt.Sprintf("%s.delay.%d", workQueueName(kind), delay.Milliseconds())
}

func delayQueueArgs(kind queue.Kind, delay time.Duration) amqp091.Table {
	return amqp091.Table{
		"x-dead-letter-exchange":    TasksExchange,
		"x-dead-letter-routing-key": string(kind),
		"x-message-ttl":             delay.Milliseconds(),
		"x-expires":                 (delay + delayQueueGrace).Milliseconds(),
	}
}

type buriedTask struct {
	Task     queue.Task `json:"task"`
	Reason   string     `json:"reason"`
	BuriedAt int64      `json:"buried_at"`
}

func parseTask(body []byte) (*queue.Task, error) {
	var task queue.Task

	if err := json.Unmarshal(body, &task); err != nil {
		return nil, err
	}

	return &task, nil
}

type BrokerConfig struct {
	Consumers int
	Prefetch  int
}

type iTaskSender interface {
	SendMessage(ctx context.Context, message interface{}, exchange, rk string) error
	declareQueue(name string, args amqp091.Table) error
}

// Broker moves tasks through RabbitMQ. Each kind has a durable work queue
// bound to TasksExchange; delayed tasks wait in TTL queues that dead-letter
// into it.
type Broker struct {
	conn   *amqp091.Connection
	sender iTaskSender
	cfg    BrokerConfig
}

func NewBroker(ctx context.Context, conn *amqp091.Connection, kinds []queue.Kind, cfg BrokerConfig) (*Broker, error) {
	if cfg.Consumers < 1 {
		cfg.Consumers = defaultConsumers
	}
	if cfg.Prefetch < 1 {
		cfg.Prefetch = defaultPrefetch
	}

	channel, err := conn.Channel()

	if err != nil {
		return nil, err
	}

	sender := NewSender(ctx, channel)
	b := &Broker{conn: conn, sender: sender, cfg: cfg}

	err = sender.declare(func(ch *amqp091.Channel) error {
		if err := ch.ExchangeDeclare(TasksExchange, amqp091.ExchangeDirect, true, false, false, false, nil); err != nil {
			return err
		}

		for _, kind := range kinds {
			if _, err := ch.QueueDeclare(workQueueName(kind), true, false, false, false, nil); err != nil {
				return err
			}
			if err := ch.QueueBind(workQueueName(kind), string(kind), TasksExchange, false, nil); err != nil {
				return err
			}
			if _, err := ch.QueueDeclare(failedQueueName(kind), true, false, false, false, nil); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	logrus.WithField("kinds", kinds).Infoln("Rabbit task topology declared")

	return b, nil
}

func (b *Broker) Publish(ctx context.Context, task queue.Task, delay time.Duration) error {
	if delay <= 0 {
		return b.sender.SendMessage(ctx, task, TasksExchange, string(task.Kind))
	}

	name := delayQueueName(task.Kind, delay)

	if err := b.sender.declareQueue(name, delayQueueArgs(task.Kind, delay)); err != nil {
		return err
	}

	return b.sender.SendMessage(ctx, task, "", name)
}

func (b *Broker) Bury(ctx context.Context, task queue.Task, reason error) error {
	return b.sender.SendMessage(ctx, buriedTask{
		Task:     task,
		Reason:   reason.Error(),
		BuriedAt: time.Now().UTC().UnixMilli(),
	}, "", failedQueueName(task.Kind))
}

// Consume opens one channel per kind with manual acknowledgement and runs
// Consumers goroutines on each. It returns when ctx is done or a channel
// closes underneath.
func (b *Broker) Consume(ctx context.Context, kinds []queue.Kind, handle func(ctx context.Context, task queue.Task) error) error {
	processor := NewProcessor(parseTask, func(ctx context.Context, task *queue.Task) error {
		return handle(ctx, *task)
	})

	channels := make([]*amqp091.Channel, 0, len(kinds))
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()

	var wg sync.WaitGroup

	for _, kind := range kinds {
		ch, err := b.conn.Channel()

		if err != nil {
			return err
		}

		channels = append(channels, ch)

		if err = ch.Qos(b.cfg.Prefetch, 0, false); err != nil {
			return err
		}

		deliveries, err := ch.Consume(workQueueName(kind), "", false, false, false, false, nil)

		if err != nil {
			return err
		}

		for i := 0; i < b.cfg.Consumers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for msg := range deliveries {
					processor.processMessage(ctx, msg)
				}
			}()
		}
	}

	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		for _, ch := range channels {
			ch.Close()
		}
		<-stopped
		return ctx.Err()
	case <-stopped:
		return staticerr.ErrorRabbitConnectionFail
	}
}
