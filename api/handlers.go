// Package api exposes order placement, lookups and the book over HTTP.
// Authentication happens upstream; the caller's identity arrives in the
// X-User-Id header.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"trade-order-matching-service/models"
	"trade-order-matching-service/service"
	"trade-order-matching-service/staticerr"
	"trade-order-matching-service/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	OwnerHeader = "X-User-Id"
	ownerKey    = "ownerId"
)

type iOrderService interface {
	PlaceOrder(ctx context.Context, request service.PlaceOrderRequest) (*models.OrderModel, error)
	GetOrder(ctx context.Context, id, ownerId string) (*service.OrderDetails, error)
	GetOrderBook(ctx context.Context, side models.OrderSide, p models.Pagination) (models.Page[models.OrderModel], error)
	ListOrders(ctx context.Context, ownerId string, p models.Pagination) (models.Page[models.OrderModel], error)
}

type iTradeService interface {
	ListTrades(ctx context.Context, ownerId string, p models.Pagination) (models.Page[models.TradeModel], error)
}

type Handler struct {
	orders iOrderService
	trades iTradeService
}

func NewHandler(orders iOrderService, trades iTradeService) *Handler {
	return &Handler{orders: orders, trades: trades}
}

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.GET("/orderbook/:side", h.getOrderBook)

	owned := v1.Group("", requireOwner())
	owned.POST("/orders", h.createOrder)
	owned.GET("/orders", h.listOrders)
	owned.GET("/orders/:id", h.getOrder)
	owned.GET("/trades", h.listTrades)

	return r
}

type createOrderBody struct {
	Side         string          `json:"side" binding:"required"`
	Type         string          `json:"type"`
	TimeInForce  string          `json:"time_in_force"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	ValidityDays int             `json:"validity_days"`
}

type pageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (h *Handler) createOrder(c *gin.Context) {
	var body createOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.orders.PlaceOrder(c.Request.Context(), service.PlaceOrderRequest{
		OwnerId:      c.GetString(ownerKey),
		Side:         models.OrderSide(strings.ToUpper(body.Side)),
		Type:         models.OrderType(strings.ToUpper(body.Type)),
		TimeInForce:  models.TimeInForce(strings.ToUpper(body.TimeInForce)),
		Price:        body.Price,
		Quantity:     body.Quantity,
		ValidityDays: body.ValidityDays,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, utils.MapOrderToResponse(*order, nil))
}

func (h *Handler) getOrder(c *gin.Context) {
	details, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"), c.GetString(ownerKey))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.MapOrderToResponse(details.Order, details.History))
}

func (h *Handler) listOrders(c *gin.Context) {
	p, ok := bindPage(c)
	if !ok {
		return
	}

	page, err := h.orders.ListOrders(c.Request.Context(), c.GetString(ownerKey), p)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewPage(utils.MapOrdersToResponse(page.Items), page.Total, p))
}

func (h *Handler) getOrderBook(c *gin.Context) {
	p, ok := bindPage(c)
	if !ok {
		return
	}

	side := models.OrderSide(strings.ToUpper(c.Param("side")))

	page, err := h.orders.GetOrderBook(c.Request.Context(), side, p)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewPage(utils.MapOrdersToResponse(page.Items), page.Total, p))
}

func (h *Handler) listTrades(c *gin.Context) {
	p, ok := bindPage(c)
	if !ok {
		return
	}

	ownerId := c.GetString(ownerKey)

	page, err := h.trades.ListTrades(c.Request.Context(), ownerId, p)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewPage(utils.MapTradesToResponse(page.Items, ownerId), page.Total, p))
}

func bindPage(c *gin.Context) (models.Pagination, bool) {
	var query pageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.Pagination{}, false
	}
	return models.NewPagination(query.Page, query.Limit), true
}

func requireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerId := strings.TrimSpace(c.GetHeader(OwnerHeader))
		if ownerId == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + OwnerHeader + " header"})
			return
		}
		c.Set(ownerKey, ownerId)
		c.Next()
	}
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, staticerr.ErrorOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, staticerr.ErrorForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": staticerr.ErrorForbidden.Error()})
	case errors.Is(err, staticerr.ErrorValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logrus.WithField("path", c.FullPath()).Errorln("Request failed, reason: ", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		logrus.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(started),
		}).Debugln("Request served")
	}
}
