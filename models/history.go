package models

import "time"

type StatusActor string

const (
	StatusActorUser   StatusActor = "USER"
	StatusActorSystem StatusActor = "SYSTEM"
)

type StatusHistoryModel struct {
	Id           uint64      `json:"-" gorm:"primaryKey;autoIncrement"`
	OrderId      string      `json:"order_id" gorm:"type:varchar(36);not null;index"`
	State        OrderStatus `json:"status" gorm:"column:status;type:varchar(8);not null"`
	Actor        StatusActor `json:"actor" gorm:"type:varchar(6);not null"`
	CreationDate time.Time   `json:"created_at" gorm:"column:created_at;not null"`
}

func (StatusHistoryModel) TableName() string {
	return "order_status_history"
}

func NewStatusHistory(order OrderModel, actor StatusActor, at time.Time) StatusHistoryModel {
	return StatusHistoryModel{
		OrderId:      order.OrderId,
		State:        order.State,
		Actor:        actor,
		CreationDate: at,
	}
}
