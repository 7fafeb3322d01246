package service

import (
	"context"
	"errors"
	"time"
	"trade-order-matching-service/models"
	"trade-order-matching-service/queue"
	"trade-order-matching-service/staticerr"
	"trade-order-matching-service/storage"
	"trade-order-matching-service/utils"

	"github.com/sirupsen/logrus"
)

const (
	KindProcessOrder queue.Kind = "PROCESS_ORDER"
	KindExpireOrder  queue.Kind = "EXPIRE_ORDER"
)

const DefaultMaxReprocess = 10

type iMatcher interface {
	Match(ctx context.Context, id string) (*MatchReport, error)
}

type iScheduler interface {
	Enqueue(ctx context.Context, kind queue.Kind, payload interface{}, delay time.Duration) error
}

type WorkersConfig struct {
	MaxReprocess int
	Delays       utils.DelayPolicy
}

// Workers holds the task handlers that drive matching and expiry.
type Workers struct {
	matcher   iMatcher
	storage   iMatchingStorage
	scheduler iScheduler
	cfg       WorkersConfig
	now       func() time.Time
}

func NewWorkers(matcher iMatcher, storage iMatchingStorage, scheduler iScheduler, cfg WorkersConfig) *Workers {
	if cfg.MaxReprocess < 1 {
		cfg.MaxReprocess = DefaultMaxReprocess
	}
	return &Workers{matcher: matcher, storage: storage, scheduler: scheduler, cfg: cfg, now: time.Now}
}

// Register binds both task kinds to their handlers.
func (w *Workers) Register(registry *queue.Registry, process, expire queue.Policy) {
	registry.Register(KindProcessOrder, process, w.ProcessOrder)
	registry.Register(KindExpireOrder, expire, w.ExpireOrder)
}

func (w *Workers) ProcessOrder(ctx context.Context, task queue.Task) error {
	var payload models.ProcessOrderTask

	if err := task.Decode(&payload); err != nil {
		return err
	}

	entry := logrus.WithFields(logrus.Fields{
		"orderId":        payload.OrderId,
		"reprocessCount": payload.ReprocessCount,
	})

	if payload.ReprocessCount >= w.cfg.MaxReprocess {
		entry.Errorln("Reprocess limit reached, stop matching...")
		return nil
	}

	report, err := w.matcher.Match(ctx, payload.OrderId)

	if err != nil {
		if errors.Is(err, staticerr.ErrorOrderNotFound) {
			return queue.Permanent(err)
		}
		return err
	}

	order := report.Order

	if !order.IsActive() {
		entry.WithField("status", order.State).Infoln("Order left the book, matching done")
		return nil
	}

	progress := len(report.Trades) > 0
	delay := utils.ReprocessDelay(w.cfg.Delays, progress, payload.ReprocessCount)

	entry.WithFields(logrus.Fields{
		"remaining": order.Remaining.String(),
		"progress":  progress,
		"retryIn":   delay}).Infoln("Order still open, reschedule matching")

	return w.scheduler.Enqueue(ctx, KindProcessOrder, models.ProcessOrderTask{
		OrderId:        order.OrderId,
		ReprocessCount: payload.ReprocessCount + 1,
	}, delay)
}

func (w *Workers) ExpireOrder(ctx context.Context, task queue.Task) error {
	var payload models.ExpireOrderTask

	if err := task.Decode(&payload); err != nil {
		return err
	}

	entry := logrus.WithField("orderId", payload.OrderId)

	order, err := w.storage.GetOrderFromStorage(ctx, payload.OrderId)

	if err != nil {
		if errors.Is(err, staticerr.ErrorOrderNotFound) {
			return queue.Permanent(err)
		}
		return err
	}

	if !order.IsActive() {
		entry.WithField("status", order.State).Infoln("Order is not active, skip expiry...")
		return nil
	}

	expired := false

	err = w.storage.PerformTx(ctx, func(ctx context.Context, tx storage.OrderTx) error {
		locked, err := tx.LockOrder(ctx, payload.OrderId)

		if err != nil {
			return err
		}

		at := w.now().UTC()

		if expired = locked.Expire(at); !expired {
			return nil
		}

		if err = tx.SaveOrder(ctx, *locked); err != nil {
			return err
		}

		return tx.AddStatusHistory(ctx, models.NewStatusHistory(*locked, models.StatusActorSystem, at))
	})

	if err != nil {
		return err
	}

	if expired {
		entry.Infoln("Order expired")
	} else {
		entry.Infoln("Order left the book before expiry, skip...")
	}

	return nil
}
