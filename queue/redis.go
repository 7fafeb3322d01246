package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type iTaskStorage interface {
	AddTask(ctx context.Context, kind string, data []byte, due time.Time) error
	ClaimDueTask(ctx context.Context, kind string, now, leaseUntil time.Time) (string, bool, error)
	AckTask(ctx context.Context, kind string, data string) error
	RequeueExpired(ctx context.Context, kind string, now time.Time) (int64, error)
	BuryTask(ctx context.Context, kind string, data string, reason string, at time.Time) error
}

type RedisBrokerConfig struct {
	Workers      int
	PollInterval time.Duration
	Lease        time.Duration
}

// RedisBroker keeps tasks in per-kind sorted sets scored by due time.
// Claimed tasks stay leased in an in-flight set until acknowledged; leases
// that run out are put back, which gives at-least-once delivery.
type RedisBroker struct {
	storage iTaskStorage
	cfg     RedisBrokerConfig
	now     func() time.Time
}

func NewRedisBroker(storage iTaskStorage, cfg RedisBrokerConfig) *RedisBroker {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	return &RedisBroker{storage: storage, cfg: cfg, now: time.Now}
}

func (b *RedisBroker) Publish(ctx context.Context, task Task, delay time.Duration) error {
	data, err := json.Marshal(task)

	if err != nil {
		return err
	}

	return b.storage.AddTask(ctx, string(task.Kind), data, b.now().Add(delay))
}

func (b *RedisBroker) Bury(ctx context.Context, task Task, reason error) error {
	data, err := json.Marshal(task)

	if err != nil {
		return err
	}

	return b.storage.BuryTask(ctx, string(task.Kind), string(data), reason.Error(), b.now())
}

func (b *RedisBroker) Consume(ctx context.Context, kinds []Kind, handle func(ctx context.Context, task Task) error) error {
	var wg sync.WaitGroup

	wg.Add(b.cfg.Workers + 1)

	go func() {
		defer wg.Done()
		b.reap(ctx, kinds)
	}()

	for i := 0; i < b.cfg.Workers; i++ {
		go func(id int) {
			defer wg.Done()
			b.work(ctx, id, kinds, handle)
		}(i)
	}

	wg.Wait()
	return ctx.Err()
}

func (b *RedisBroker) work(ctx context.Context, id int, kinds []Kind, handle func(ctx context.Context, task Task) error) {
	for {
		processed := false

		for _, kind := range kinds {
			if ctx.Err() != nil {
				return
			}

			ok, err := b.ConsumeOne(ctx, kind, handle)

			if err != nil {
				logrus.WithFields(logrus.Fields{"worker": id, "kind": kind}).Errorln("Consume task failed, reason: ", err.Error())
			}

			processed = processed || ok
		}

		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.cfg.PollInterval):
		}
	}
}

// ConsumeOne claims and handles at most one due task of kind. It reports
// whether a task was claimed.
func (b *RedisBroker) ConsumeOne(ctx context.Context, kind Kind, handle func(ctx context.Context, task Task) error) (bool, error) {
	now := b.now()
	data, ok, err := b.storage.ClaimDueTask(ctx, string(kind), now, now.Add(b.cfg.Lease))

	if err != nil || !ok {
		return false, err
	}

	var task Task

	if err = json.Unmarshal([]byte(data), &task); err != nil {
		return true, b.storage.BuryTask(ctx, string(kind), data, err.Error(), b.now())
	}

	if err = handle(ctx, task); err != nil {
		// left in flight; the lease reaper makes it due again
		return true, err
	}

	return true, b.storage.AckTask(ctx, string(kind), data)
}

func (b *RedisBroker) reap(ctx context.Context, kinds []Kind) {
	ticker := time.NewTicker(b.cfg.Lease / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, kind := range kinds {
				count, err := b.storage.RequeueExpired(ctx, string(kind), b.now())

				if err != nil {
					logrus.WithField("kind", kind).Errorln("Requeue expired tasks failed, reason: ", err.Error())
					continue
				}

				if count > 0 {
					logrus.WithFields(logrus.Fields{"kind": kind, "count": count}).Warningln("Requeued tasks with expired lease")
				}
			}
		}
	}
}
