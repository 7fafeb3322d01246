package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"
	"trade-order-matching-service/models"
	"trade-order-matching-service/queue"
	"trade-order-matching-service/storage"
	"trade-order-matching-service/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type scheduledTask struct {
	kind    queue.Kind
	payload interface{}
	delay   time.Duration
}

type recordingScheduler struct {
	tasks []scheduledTask
	err   error
}

func (r *recordingScheduler) Enqueue(ctx context.Context, kind queue.Kind, payload interface{}, delay time.Duration) error {
	if r.err != nil {
		return r.err
	}
	r.tasks = append(r.tasks, scheduledTask{kind: kind, payload: payload, delay: delay})
	return nil
}

type recordingPublisher struct {
	trades []models.TradeModel
}

func (r *recordingPublisher) PublishTrades(ctx context.Context, trades []models.TradeModel) error {
	r.trades = append(r.trades, trades...)
	return nil
}

type testEnv struct {
	orders    *storage.OrdersStorage
	trades    *storage.TradesStorage
	scheduler *recordingScheduler
	publisher *recordingPublisher
	placer    *OrderService
	matcher   *MatcherService
	workers   *Workers
	clock     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := miniredis.RunT(t)
	client, err := storage.NewRedisClient(srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	env := &testEnv{
		orders:    storage.NewOrdersStorage(client),
		trades:    storage.NewTradesStorage(client),
		scheduler: &recordingScheduler{},
		publisher: &recordingPublisher{},
		clock:     baseTime,
	}

	env.placer = NewOrderService(env.orders, env.scheduler, 0)
	env.placer.now = env.tick

	env.matcher = NewMatcherService(env.orders, env.publisher, 0)
	env.matcher.now = env.tick

	env.workers = NewWorkers(env.matcher, env.orders, env.scheduler, WorkersConfig{Delays: utils.DefaultDelayPolicy})
	env.workers.now = env.tick

	return env
}

// tick advances the test clock so that every placed order gets a distinct
// creation time.
func (e *testEnv) tick() time.Time {
	e.clock = e.clock.Add(time.Second)
	return e.clock
}

func (e *testEnv) place(t *testing.T, owner string, side models.OrderSide, price, qty string) *models.OrderModel {
	t.Helper()
	order, err := e.placer.PlaceOrder(context.Background(), PlaceOrderRequest{
		OwnerId:  owner,
		Side:     side,
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	})
	require.NoError(t, err)
	return order
}

func (e *testEnv) get(t *testing.T, id string) *models.OrderModel {
	t.Helper()
	order, err := e.orders.GetOrderFromStorage(context.Background(), id)
	require.NoError(t, err)
	return order
}

func newTask(t *testing.T, kind queue.Kind, payload interface{}) queue.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return queue.Task{Id: "task-1", Kind: kind, Payload: data}
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}
