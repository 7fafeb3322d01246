// Command orderbookd runs the order book: the HTTP API for placing and
// reading orders and the task dispatcher that drives matching and expiry.
//
// Usage:
//
//	orderbookd --config configs/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"trade-order-matching-service/api"
	"trade-order-matching-service/config"
	"trade-order-matching-service/events"
	"trade-order-matching-service/models"
	"trade-order-matching-service/queue"
	"trade-order-matching-service/rabbit"
	"trade-order-matching-service/service"
	"trade-order-matching-service/storage"
	"trade-order-matching-service/storage/sqlstore"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "", "path to config file")
}

type iOrderBackend interface {
	AddOrderToStorage(ctx context.Context, orderInfo models.OrderModel, history models.StatusHistoryModel) error
	GetOrderFromStorage(ctx context.Context, id string) (*models.OrderModel, error)
	GetStatusHistory(ctx context.Context, id string) ([]models.StatusHistoryModel, error)
	GetOrderBook(ctx context.Context, side models.OrderSide, limit, offset int) ([]models.OrderModel, int64, error)
	GetOrdersByOwner(ctx context.Context, ownerId string, limit, offset int) ([]models.OrderModel, int64, error)
	PerformTx(ctx context.Context, fn storage.TxFunc) error
}

type iTradeBackend interface {
	GetTradesByOwner(ctx context.Context, ownerId string, limit, offset int) ([]models.TradeModel, int64, error)
}

type closer func() error

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.Infoln("No .env file found, using system environment variables")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalln("Failed to load config, reason: ", err.Error())
	}

	setupLogger(cfg.App)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logrus.Warningln("Close resource failed, reason: ", err.Error())
			}
		}
	}()

	var redisClient *storage.RedisClient

	if cfg.Storage.Driver == config.DriverRedis || cfg.Queue.Driver == config.DriverRedis {
		redisClient, err = storage.NewRedisClient(cfg.Storage.RedisAddr)
		if err != nil {
			logrus.Fatalln("Failed to connect redis, reason: ", err.Error())
		}
		closers = append(closers, redisClient.Close)
	}

	orders, trades, err := openBackend(cfg, redisClient, &closers)
	if err != nil {
		logrus.Fatalln("Failed to open storage, reason: ", err.Error())
	}

	broker, err := openBroker(ctx, cfg, redisClient)
	if err != nil {
		logrus.Fatalln("Failed to open task broker, reason: ", err.Error())
	}

	registry := queue.NewRegistry()
	scheduler := queue.NewScheduler(broker, registry)

	matcher := service.NewMatcherService(orders, nil, cfg.Matching.ChunkSize)

	if cfg.Kafka.Enabled {
		publisher := events.NewTradePublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, publisher.Close)
		matcher = service.NewMatcherService(orders, publisher, cfg.Matching.ChunkSize)
	}

	workers := service.NewWorkers(matcher, orders, scheduler, service.WorkersConfig{
		MaxReprocess: cfg.Matching.MaxReprocess,
		Delays:       cfg.DelayPolicy(),
	})
	workers.Register(registry, cfg.ProcessPolicy(), cfg.ExpirePolicy())

	orderService := service.NewOrderService(orders, scheduler, cfg.Matching.InitialDelay)
	tradeService := service.NewTradeService(trades)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(api.NewHandler(orderService, tradeService)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logrus.WithField("addr", cfg.Server.Addr).Infoln("API server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorln("Server failed, reason: ", err.Error())
			stop()
		}
	}()

	dispatched := make(chan error, 1)
	go func() {
		dispatched <- queue.NewDispatcher(broker, registry).Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-dispatched:
		if err != nil && !errors.Is(err, context.Canceled) {
			logrus.Errorln("Task dispatcher stopped, reason: ", err.Error())
		}
		stop()
	}

	logrus.Infoln("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Warningln("Server shutdown failed, reason: ", err.Error())
	}

	select {
	case <-dispatched:
	case <-shutdownCtx.Done():
		logrus.Warningln("Task dispatcher did not stop in time")
	}
}

func setupLogger(app config.AppConfig) {
	level, err := logrus.ParseLevel(app.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if app.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

func openBackend(cfg *config.Config, client *storage.RedisClient, closers *[]closer) (iOrderBackend, iTradeBackend, error) {
	if cfg.Storage.Driver == config.DriverPostgres {
		store, err := sqlstore.OpenPostgres(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, store.Close)
		return store, store, nil
	}

	return storage.NewOrdersStorage(client), storage.NewTradesStorage(client), nil
}

func openBroker(ctx context.Context, cfg *config.Config, client *storage.RedisClient) (queue.Broker, error) {
	if cfg.Queue.Driver == config.DriverRabbitMQ {
		conn, err := rabbit.GetRabbitConnection(ctx, cfg.Queue.RabbitURL)
		if err != nil {
			return nil, err
		}

		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		broker, err := rabbit.NewBroker(ctx, conn, []queue.Kind{service.KindProcessOrder, service.KindExpireOrder}, rabbit.BrokerConfig{
			Consumers: cfg.Queue.Workers,
			Prefetch:  cfg.Queue.Prefetch,
		})
		if err != nil {
			return nil, err
		}
		return broker, nil
	}

	return queue.NewRedisBroker(storage.NewTaskStorage(client), queue.RedisBrokerConfig{
		Workers:      cfg.Queue.Workers,
		PollInterval: cfg.Queue.PollInterval,
		Lease:        cfg.Queue.Lease,
	}), nil
}
