package service

import (
	"context"
	"fmt"
	"time"
	"trade-order-matching-service/models"
	"trade-order-matching-service/staticerr"
	"trade-order-matching-service/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultInitialDelay = 20 * time.Second

type iOrderStorage interface {
	AddOrderToStorage(ctx context.Context, orderInfo models.OrderModel, history models.StatusHistoryModel) error
	GetOrderFromStorage(ctx context.Context, id string) (*models.OrderModel, error)
	GetStatusHistory(ctx context.Context, id string) ([]models.StatusHistoryModel, error)
	GetOrderBook(ctx context.Context, side models.OrderSide, limit, offset int) ([]models.OrderModel, int64, error)
	GetOrdersByOwner(ctx context.Context, ownerId string, limit, offset int) ([]models.OrderModel, int64, error)
}

type PlaceOrderRequest struct {
	OwnerId      string
	Side         models.OrderSide
	Type         models.OrderType
	TimeInForce  models.TimeInForce
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	ValidityDays int
}

type OrderDetails struct {
	Order   models.OrderModel
	History []models.StatusHistoryModel
}

type OrderService struct {
	orderStorage iOrderStorage
	scheduler    iScheduler
	initialDelay time.Duration
	now          func() time.Time
}

func NewOrderService(orderStorage iOrderStorage, scheduler iScheduler, initialDelay time.Duration) *OrderService {
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}
	return &OrderService{orderStorage: orderStorage, scheduler: scheduler, initialDelay: initialDelay, now: time.Now}
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", staticerr.ErrorValidation, fmt.Sprintf(format, args...))
}

func (r *PlaceOrderRequest) validate() error {
	if r.OwnerId == "" {
		return validationError("owner is required")
	}

	if !r.Side.Valid() {
		return validationError("unknown side %q", r.Side)
	}

	if r.Type == "" {
		r.Type = models.OrderTypeLimit
	}

	if r.Type != models.OrderTypeLimit {
		return validationError("order type %s is not supported", r.Type)
	}

	if r.TimeInForce == "" {
		r.TimeInForce = models.TimeInForceGTC
	}

	if r.TimeInForce != models.TimeInForceGTC {
		return validationError("time in force %s is not supported", r.TimeInForce)
	}

	if !utils.ValidDecimal(r.Price) {
		return validationError("price %s must be positive with at most %d decimals", r.Price, utils.MaxDecimalPlaces)
	}

	if !utils.ValidDecimal(r.Quantity) {
		return validationError("quantity %s must be positive with at most %d decimals", r.Quantity, utils.MaxDecimalPlaces)
	}

	if r.ValidityDays == 0 {
		r.ValidityDays = models.DefaultValidityDays
	}

	if r.ValidityDays < models.MinValidityDays || r.ValidityDays > models.MaxValidityDays {
		return validationError("validity days must be between %d and %d", models.MinValidityDays, models.MaxValidityDays)
	}

	return nil
}

// PlaceOrder persists a new OPEN order with its first history entry and
// schedules its matching and expiry. A scheduling failure is returned
// after the order is stored; the order stays OPEN.
func (o *OrderService) PlaceOrder(ctx context.Context, request PlaceOrderRequest) (*models.OrderModel, error) {
	if err := request.validate(); err != nil {
		return nil, err
	}

	now := o.now().UTC()

	orderInfo := models.OrderModel{
		OrderId:      uuid.NewString(),
		OwnerId:      request.OwnerId,
		Side:         request.Side,
		Type:         request.Type,
		Price:        request.Price,
		Quantity:     request.Quantity,
		Remaining:    request.Quantity,
		State:        models.OrderStatusOpen,
		ValidityDays: request.ValidityDays,
		CreationDate: now,
		UpdatedDate:  now,
	}

	entry := logrus.WithField("orderId", orderInfo.OrderId)

	if err := o.orderStorage.AddOrderToStorage(ctx, orderInfo, models.NewStatusHistory(orderInfo, models.StatusActorUser, now)); err != nil {
		entry.Errorln("Creation order failed, reason: ", err.Error())
		return nil, err
	}

	entry.WithFields(logrus.Fields{
		"side":     orderInfo.Side,
		"price":    orderInfo.Price.String(),
		"quantity": orderInfo.Quantity.String()}).Infoln("Creation order successfully")

	if err := o.scheduler.Enqueue(ctx, KindProcessOrder, models.ProcessOrderTask{OrderId: orderInfo.OrderId}, o.initialDelay); err != nil {
		entry.Errorln("Schedule matching failed, reason: ", err.Error())
		return nil, err
	}

	expireIn := time.Duration(orderInfo.ValidityDays) * 24 * time.Hour

	if err := o.scheduler.Enqueue(ctx, KindExpireOrder, models.ExpireOrderTask{OrderId: orderInfo.OrderId}, expireIn); err != nil {
		entry.Errorln("Schedule expiry failed, reason: ", err.Error())
		return nil, err
	}

	return &orderInfo, nil
}

func (o *OrderService) GetOrder(ctx context.Context, id, ownerId string) (*OrderDetails, error) {
	order, err := o.orderStorage.GetOrderFromStorage(ctx, id)

	if err != nil {
		return nil, err
	}

	if order.OwnerId != ownerId {
		logrus.WithField("orderId", id).Warningln("Order requested by another owner")
		return nil, fmt.Errorf("%w: order %s", staticerr.ErrorForbidden, id)
	}

	history, err := o.orderStorage.GetStatusHistory(ctx, id)

	if err != nil {
		return nil, err
	}

	return &OrderDetails{Order: *order, History: history}, nil
}

func (o *OrderService) GetOrderBook(ctx context.Context, side models.OrderSide, p models.Pagination) (models.Page[models.OrderModel], error) {
	if !side.Valid() {
		return models.Page[models.OrderModel]{}, validationError("unknown side %q", side)
	}

	orders, total, err := o.orderStorage.GetOrderBook(ctx, side, p.Limit, p.Offset())

	if err != nil {
		return models.Page[models.OrderModel]{}, err
	}

	return models.NewPage(orders, total, p), nil
}

func (o *OrderService) ListOrders(ctx context.Context, ownerId string, p models.Pagination) (models.Page[models.OrderModel], error) {
	orders, total, err := o.orderStorage.GetOrdersByOwner(ctx, ownerId, p.Limit, p.Offset())

	if err != nil {
		return models.Page[models.OrderModel]{}, err
	}

	return models.NewPage(orders, total, p), nil
}
