package rabbit

import (
	"context"
	"errors"
	"testing"
	"time"
	"trade-order-matching-service/queue"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecorder struct {
	acked    int
	nacked   int
	requeued bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.acked++
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple bool, requeue bool) error {
	a.nacked++
	a.requeued = requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "orderbook.tasks.PROCESS_ORDER", workQueueName("PROCESS_ORDER"))
	assert.Equal(t, "orderbook.tasks.PROCESS_ORDER.failed", failedQueueName("PROCESS_ORDER"))
	assert.Equal(t, "orderbook.tasks.EXPIRE_ORDER.delay.20000", delayQueueName("EXPIRE_ORDER", 20*time.Second))
}

func TestDelayQueueArgs(t *testing.T) {
	args := delayQueueArgs("PROCESS_ORDER", 5*time.Second)

	assert.Equal(t, TasksExchange, args["x-dead-letter-exchange"])
	assert.Equal(t, "PROCESS_ORDER", args["x-dead-letter-routing-key"])
	assert.Equal(t, int64(5000), args["x-message-ttl"])
	assert.Equal(t, int64(65000), args["x-expires"])
	require.NoError(t, args.Validate())
}

func TestParseTask(t *testing.T) {
	task, err := parseTask([]byte(`{"id":"t1","kind":"PROCESS_ORDER","payload":{"order_id":"o1"},"attempt":2}`))
	require.NoError(t, err)
	assert.Equal(t, "t1", task.Id)
	assert.Equal(t, queue.Kind("PROCESS_ORDER"), task.Kind)
	assert.Equal(t, 2, task.Attempt)

	_, err = parseTask([]byte(`{`))
	assert.Error(t, err)
}

func TestProcessor_ProcessMessage(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		handlerErr   error
		wantHandled  bool
		wantAck      int
		wantNack     int
		wantRequeued bool
	}{
		{name: "handled", body: `{"id":"t1"}`, wantHandled: true, wantAck: 1},
		{name: "handler failure requeues", body: `{"id":"t1"}`, handlerErr: errors.New("boom"), wantHandled: true, wantNack: 1, wantRequeued: true},
		{name: "unparsable dropped", body: `nope`, wantNack: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handled := false
			p := NewProcessor(parseTask, func(ctx context.Context, task *queue.Task) error {
				handled = true
				return tt.handlerErr
			})

			ack := &ackRecorder{}
			p.processMessage(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: []byte(tt.body)})

			assert.Equal(t, tt.wantHandled, handled)
			assert.Equal(t, tt.wantAck, ack.acked)
			assert.Equal(t, tt.wantNack, ack.nacked)
			assert.Equal(t, tt.wantRequeued, ack.requeued)
		})
	}
}

func TestProcessor_FailedMessageWaitsBeforeRequeue(t *testing.T) {
	p := NewProcessor(parseTask, func(ctx context.Context, task *queue.Task) error {
		return errors.New("channel closed")
	})
	p.requeueDelay = 50 * time.Millisecond

	ack := &ackRecorder{}
	started := time.Now()
	p.processMessage(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: []byte(`{"id":"t1"}`)})

	assert.GreaterOrEqual(t, time.Since(started), 50*time.Millisecond)
	assert.Equal(t, 1, ack.nacked)
	assert.True(t, ack.requeued)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.requeueDelay = time.Hour

	ack = &ackRecorder{}
	p.processMessage(ctx, amqp091.Delivery{Acknowledger: ack, Body: []byte(`{"id":"t1"}`)})
	assert.Equal(t, 1, ack.nacked, "stopped consumer releases the message at once")
}

type sentMessage struct {
	message  interface{}
	exchange string
	rk       string
}

type fakeSender struct {
	declared []string
	sent     []sentMessage
}

func (f *fakeSender) SendMessage(ctx context.Context, message interface{}, exchange, rk string) error {
	f.sent = append(f.sent, sentMessage{message: message, exchange: exchange, rk: rk})
	return nil
}

func (f *fakeSender) declareQueue(name string, args amqp091.Table) error {
	f.declared = append(f.declared, name)
	return nil
}

func TestBroker_PublishRedeclaresDelayQueue(t *testing.T) {
	sender := &fakeSender{}
	b := &Broker{sender: sender}
	ctx := context.Background()

	task := queue.Task{Id: "t1", Kind: "PROCESS_ORDER"}
	require.NoError(t, b.Publish(ctx, task, 20*time.Second))
	require.NoError(t, b.Publish(ctx, task, 20*time.Second))
	require.NoError(t, b.Publish(ctx, task, 0))

	delayQueue := "orderbook.tasks.PROCESS_ORDER.delay.20000"
	assert.Equal(t, []string{delayQueue, delayQueue}, sender.declared, "every delayed publish renews the queue")

	require.Len(t, sender.sent, 3)
	assert.Equal(t, "", sender.sent[1].exchange)
	assert.Equal(t, delayQueue, sender.sent[1].rk)
	assert.Equal(t, TasksExchange, sender.sent[2].exchange)
	assert.Equal(t, "PROCESS_ORDER", sender.sent[2].rk)
}

func TestBroker_BuryGoesToFailedQueue(t *testing.T) {
	sender := &fakeSender{}
	b := &Broker{sender: sender}

	require.NoError(t, b.Bury(context.Background(), queue.Task{Id: "t1", Kind: "EXPIRE_ORDER"}, errors.New("order missing")))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "orderbook.tasks.EXPIRE_ORDER.failed", sender.sent[0].rk)
	buried := sender.sent[0].message.(buriedTask)
	assert.Equal(t, "order missing", buried.Reason)
	assert.Empty(t, sender.declared)
}
