// Package sqlstore keeps orders, trades and status history in a SQL
// database through gorm. Matching transactions lock order rows with
// SELECT ... FOR UPDATE.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"trade-order-matching-service/models"
	"trade-order-matching-service/staticerr"
	"trade-order-matching-service/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})

	if err != nil {
		return nil, err
	}

	return New(db)
}

// New migrates the schema on db and returns a store over it.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&models.OrderModel{}, &models.TradeModel{}, &models.StatusHistoryModel{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()

	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func (s *Store) AddOrderToStorage(ctx context.Context, orderInfo models.OrderModel, history models.StatusHistoryModel) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&orderInfo).Error; err != nil {
			return err
		}

		return tx.Create(&history).Error
	})
}

func (s *Store) GetOrderFromStorage(ctx context.Context, id string) (*models.OrderModel, error) {
	return findOrder(s.db.WithContext(ctx), id)
}

func findOrder(db *gorm.DB, id string) (*models.OrderModel, error) {
	var order models.OrderModel

	err := db.Where("order_id = ?", id).First(&order).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", staticerr.ErrorOrderNotFound, id)
	}

	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (s *Store) GetStatusHistory(ctx context.Context, id string) ([]models.StatusHistoryModel, error) {
	var history []models.StatusHistoryModel

	err := s.db.WithContext(ctx).
		Where("order_id = ?", id).
		Order("created_at DESC").
		Order("id DESC").
		Find(&history).Error

	return history, err
}

func activeOrdersQuery(db *gorm.DB, side models.OrderSide) *gorm.DB {
	priceOrder := "price ASC"
	if side == models.OrderSideBuy {
		priceOrder = "price DESC"
	}

	return db.Model(&models.OrderModel{}).
		Where("side = ? AND status IN ?", side, models.ActiveStatuses).
		Order(priceOrder).
		Order("created_at ASC").
		Order("order_id ASC")
}

func findActiveOrders(db *gorm.DB, side models.OrderSide, limit, offset int) ([]models.OrderModel, error) {
	var orders []models.OrderModel

	err := activeOrdersQuery(db, side).Limit(limit).Offset(offset).Find(&orders).Error

	return orders, err
}

func (s *Store) GetOrderBook(ctx context.Context, side models.OrderSide, limit, offset int) ([]models.OrderModel, int64, error) {
	db := s.db.WithContext(ctx)

	orders, err := findActiveOrders(db, side, limit, offset)

	if err != nil {
		return nil, 0, err
	}

	var total int64

	if err = db.Model(&models.OrderModel{}).
		Where("side = ? AND status IN ?", side, models.ActiveStatuses).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (s *Store) GetOrdersByOwner(ctx context.Context, ownerId string, limit, offset int) ([]models.OrderModel, int64, error) {
	db := s.db.WithContext(ctx)

	var orders []models.OrderModel

	if err := db.Where("owner_id = ?", ownerId).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	var total int64

	if err := db.Model(&models.OrderModel{}).Where("owner_id = ?", ownerId).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (s *Store) GetTradesByOwner(ctx context.Context, ownerId string, limit, offset int) ([]models.TradeModel, int64, error) {
	db := s.db.WithContext(ctx)

	var trades []models.TradeModel

	if err := db.Where("buyer_id = ? OR seller_id = ?", ownerId, ownerId).
		Order("created_at DESC").
		Order("trade_id DESC").
		Limit(limit).Offset(offset).
		Find(&trades).Error; err != nil {
		return nil, 0, err
	}

	var total int64

	if err := db.Model(&models.TradeModel{}).
		Where("buyer_id = ? OR seller_id = ?", ownerId, ownerId).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	return trades, total, nil
}

func (s *Store) PerformTx(ctx context.Context, fn storage.TxFunc) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(ctx, &orderTx{db: db, locked: make(map[string]models.OrderStatus)})
	})
}

type orderTx struct {
	db     *gorm.DB
	locked map[string]models.OrderStatus
}

func (x *orderTx) LockOrder(ctx context.Context, id string) (*models.OrderModel, error) {
	order, err := findOrder(x.db.Clauses(clause.Locking{Strength: "UPDATE"}), id)

	if err != nil {
		return nil, err
	}

	if _, ok := x.locked[id]; !ok {
		x.locked[id] = order.State
	}

	return order, nil
}

func (x *orderTx) GetActiveOrders(ctx context.Context, side models.OrderSide, limit, offset int) ([]models.OrderModel, error) {
	return findActiveOrders(x.db, side, limit, offset)
}

func (x *orderTx) SaveOrder(ctx context.Context, order models.OrderModel) error {
	current, ok := x.locked[order.OrderId]

	if !ok {
		return fmt.Errorf("save order %s without lock: %w", order.OrderId, staticerr.ErrorResourceIsLocked)
	}

	if current != order.State && !models.CanTransition(current, order.State) {
		return fmt.Errorf("%w: order %s cannot move from %s to %s", staticerr.ErrorValidation, order.OrderId, current, order.State)
	}

	err := x.db.Model(&models.OrderModel{}).
		Where("order_id = ?", order.OrderId).
		Updates(map[string]interface{}{
			"remaining":  order.Remaining,
			"status":     order.State,
			"updated_at": order.UpdatedDate,
		}).Error

	if err != nil {
		return err
	}

	x.locked[order.OrderId] = order.State
	return nil
}

func (x *orderTx) AddTrade(ctx context.Context, trade models.TradeModel) error {
	return x.db.Create(&trade).Error
}

func (x *orderTx) AddStatusHistory(ctx context.Context, entry models.StatusHistoryModel) error {
	return x.db.Create(&entry).Error
}
