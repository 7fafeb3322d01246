package rabbit

import (
	"context"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type ParserFunc[T any] func([]byte) (*T, error)
type HandlerFunc[T any] func(context.Context, *T) error

const defaultRequeueDelay = time.Second

type Processor[T any] struct {
	parser       ParserFunc[T]
	handler      HandlerFunc[T]
	requeueDelay time.Duration
}

func NewProcessor[T any](parser ParserFunc[T], handler HandlerFunc[T]) Processor[T] {
	return Processor[T]{parser: parser, handler: handler, requeueDelay: defaultRequeueDelay}
}

// processMessage acknowledges only after the handler succeeded. Messages
// that do not parse are dropped; handler failures are requeued after
// requeueDelay, or at once when ctx is done.
func (p *Processor[T]) processMessage(ctx context.Context, msg amqp091.Delivery) {
	body, err := p.parser(msg.Body)

	if err != nil {
		logrus.WithField("messageId", msg.MessageId).Errorln("Parse message failed, drop..., reason: ", err.Error())
		msg.Nack(false, false)
		return
	}

	if err = p.handler(ctx, body); err != nil {
		logrus.WithField("messageId", msg.MessageId).Warningln("Handle message failed, requeue..., reason: ", err.Error())
		p.wait(ctx)
		msg.Nack(false, true)
		return
	}

	msg.Ack(false)
}

func (p *Processor[T]) wait(ctx context.Context) {
	if p.requeueDelay <= 0 {
		return
	}

	timer := time.NewTimer(p.requeueDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
