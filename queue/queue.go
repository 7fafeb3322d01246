// Package queue dispatches delayed, retryable tasks. Task kinds, their
// retry policies and handlers are declared in a Registry at startup and
// carried by the Scheduler and the Dispatcher; brokers only move tasks.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
	"trade-order-matching-service/staticerr"

	"github.com/google/uuid"
)

type Kind string

type Task struct {
	Id         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt int64           `json:"enqueued_at"`
}

// Decode unmarshals the task payload into v.
func (t Task) Decode(v interface{}) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", t.Kind, err))
	}
	return nil
}

// Policy controls delivery of one task kind. Attempts counts the first
// delivery; retry n (1-based) waits Backoff*2^(n-1), capped by MaxBackoff,
// plus up to Jitter of that delay.
type Policy struct {
	Delay      time.Duration
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
	Jitter     float64
}

func (p Policy) RetryDelay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}

	delay := p.Backoff
	for i := 1; i < retry; i++ {
		delay *= 2
		if p.MaxBackoff > 0 && delay >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}

	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// Jittered stretches delay by Jitter*r, where r is in [0, 1).
func (p Policy) Jittered(delay time.Duration, r float64) time.Duration {
	if p.Jitter <= 0 || r <= 0 {
		return delay
	}
	return delay + time.Duration(float64(delay)*p.Jitter*r)
}

// CanRetry reports whether a task that just failed on attempt (0-based)
// has deliveries left.
func (p Policy) CanRetry(attempt int) bool {
	return attempt+1 < p.Attempts
}

type HandlerFunc func(ctx context.Context, task Task) error

type registration struct {
	policy  Policy
	handler HandlerFunc
}

type Registry struct {
	kinds map[Kind]registration
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[Kind]registration)}
}

func (r *Registry) Register(kind Kind, policy Policy, handler HandlerFunc) {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	r.kinds[kind] = registration{policy: policy, handler: handler}
}

func (r *Registry) lookup(kind Kind) (registration, error) {
	reg, ok := r.kinds[kind]
	if !ok {
		return registration{}, fmt.Errorf("%w: %s", staticerr.ErrorUnknownTaskKind, kind)
	}
	return reg, nil
}

func (r *Registry) Policy(kind Kind) (Policy, error) {
	reg, err := r.lookup(kind)
	return reg.policy, err
}

// Kinds returns the registered kinds in a stable order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.kinds))
	for kind := range r.kinds {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Broker moves tasks with at-least-once delivery. Consume blocks until ctx
// is done, calling handle for each delivered task; a task is acknowledged
// only when handle returns nil.
type Broker interface {
	Publish(ctx context.Context, task Task, delay time.Duration) error
	Consume(ctx context.Context, kinds []Kind, handle func(ctx context.Context, task Task) error) error
	Bury(ctx context.Context, task Task, reason error) error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type Scheduler struct {
	broker   Broker
	registry *Registry
	now      func() time.Time
}

func NewScheduler(broker Broker, registry *Registry) *Scheduler {
	return &Scheduler{broker: broker, registry: registry, now: time.Now}
}

// Enqueue publishes a new task of kind after delay. A negative delay falls
// back to the kind's policy delay.
func (s *Scheduler) Enqueue(ctx context.Context, kind Kind, payload interface{}, delay time.Duration) error {
	policy, err := s.registry.Policy(kind)

	if err != nil {
		return err
	}

	if delay < 0 {
		delay = policy.Delay
	}

	data, err := json.Marshal(payload)

	if err != nil {
		return err
	}

	return s.broker.Publish(ctx, Task{
		Id:         uuid.NewString(),
		Kind:       kind,
		Payload:    data,
		EnqueuedAt: s.now().UTC().UnixMilli(),
	}, delay)
}
