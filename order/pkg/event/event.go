package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/Alturino/foodorder/order/pkg/domain"
)

// StatusChanged is published after a status update commits.
type StatusChanged struct {
	OrderID     uuid.UUID          `json:"orderId"`
	OrderNumber string             `json:"orderNumber"`
	From        domain.OrderStatus `json:"from"`
	To          domain.OrderStatus `json:"to"`
	ChangedAt   time.Time          `json:"changedAt"`
}

func NewStatusChanged(order domain.Order, from domain.OrderStatus) StatusChanged {
	return StatusChanged{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		From:        from,
		To:          order.Status,
		ChangedAt:   order.StatusChangedAt,
	}
}
