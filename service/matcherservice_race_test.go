package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"trade-order-matching-service/models"
	"trade-order-matching-service/staticerr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// matchUntilSettled retries the way the queue does for lock conflicts.
func matchUntilSettled(ctx context.Context, matcher *MatcherService, id string) error {
	var err error

	for attempt := 0; attempt < 500; attempt++ {
		if _, err = matcher.Match(ctx, id); err == nil {
			return nil
		}

		if !errors.Is(err, staticerr.ErrorResourceIsLocked) && !errors.Is(err, staticerr.ErrorOrderConsumed) {
			return err
		}

		time.Sleep(time.Millisecond)
	}

	return err
}

func TestMatcherService_ConcurrentAggressorsNeverOverfill(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sell := env.place(t, "seller", models.OrderSideSell, "100", "10")

	buys := make([]*models.OrderModel, 6)
	for i := range buys {
		buys[i] = env.place(t, "buyer", models.OrderSideBuy, "101", "7")
	}

	matcher := NewMatcherService(env.orders, nil, 0)

	errs := make([]error, len(buys))
	var wg sync.WaitGroup

	for i, buy := range buys {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = matchUntilSettled(ctx, matcher, id)
		}(i, buy.OrderId)
	}

	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "aggressor %d", i)
	}

	resting := env.get(t, sell.OrderId)
	assert.True(t, resting.Remaining.IsZero(), "remaining %s", resting.Remaining)
	assert.Equal(t, models.OrderStatusFilled, resting.State)

	bought := decimal.Zero
	for _, buy := range buys {
		order := env.get(t, buy.OrderId)
		assert.False(t, order.Remaining.IsNegative())
		bought = bought.Add(order.Quantity.Sub(order.Remaining))
	}
	assert.True(t, bought.Equal(dec("10")), "bought %s", bought)

	trades, _, err := env.trades.GetTradesByOwner(ctx, "seller", 100, 0)
	require.NoError(t, err)

	traded := decimal.Zero
	for _, trade := range trades {
		traded = traded.Add(trade.Quantity)
	}
	assert.True(t, traded.Equal(dec("10")), "traded %s", traded)
}
