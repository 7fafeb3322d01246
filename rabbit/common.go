package rabbit

import (
	"context"
	"time"
	"trade-order-matching-service/staticerr"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const dialWindow = time.Minute * 5

func GetRabbitConnection(ctx context.Context, connectionString string) (*amqp091.Connection, error) {
	timeout := time.After(dialWindow)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, staticerr.ErrorRabbitConnectionFail
		default:
			connect, err := amqp091.Dial(connectionString)

			if err != nil {
				logrus.Debugln("Rabbit dial failed, retry..., reason: ", err.Error())
				time.Sleep(time.Millisecond * 100)
				continue
			}

			return connect, nil
		}
	}
}
