package queue

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

type Dispatcher struct {
	broker   Broker
	registry *Registry
	random   func() float64
}

func NewDispatcher(broker Broker, registry *Registry) *Dispatcher {
	return &Dispatcher{broker: broker, registry: registry, random: rand.Float64}
}

// Run consumes every registered kind until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	logrus.WithField("kinds", d.registry.Kinds()).Infoln("Task dispatcher started")
	defer logrus.Infoln("Task dispatcher stopped")

	return d.broker.Consume(ctx, d.registry.Kinds(), d.Dispatch)
}

// Dispatch runs one delivery. It returns an error only when the outcome
// could not be recorded, so the broker keeps the delivery for another try.
func (d *Dispatcher) Dispatch(ctx context.Context, task Task) error {
	entry := logrus.WithFields(logrus.Fields{
		"taskId":  task.Id,
		"kind":    task.Kind,
		"attempt": task.Attempt,
	})

	reg, err := d.registry.lookup(task.Kind)

	if err != nil {
		entry.Errorln("Unknown task kind, bury...")
		return d.broker.Bury(ctx, task, err)
	}

	started := time.Now()
	err = reg.handler(ctx, task)

	if err == nil {
		entry.WithField("elapsed", time.Since(started)).Debugln("Task done")
		return nil
	}

	if IsPermanent(err) {
		entry.Errorln("Task failed permanently, reason: ", err.Error())
		return d.broker.Bury(ctx, task, err)
	}

	if !reg.policy.CanRetry(task.Attempt) {
		entry.Errorln("Task attempts exhausted, reason: ", err.Error())
		return d.broker.Bury(ctx, task, err)
	}

	retry := task
	retry.Attempt++
	delay := reg.policy.Jittered(reg.policy.RetryDelay(retry.Attempt), d.random())

	entry.WithField("retryIn", delay).Warningln("Task failed, retry scheduled, reason: ", err.Error())

	return d.broker.Publish(ctx, retry, delay)
}
