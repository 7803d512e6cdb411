package request

import (
	"github.com/google/uuid"

	cartDomain "github.com/Alturino/foodorder/cart/pkg/domain"
	"github.com/Alturino/foodorder/internal/money"
	"github.com/Alturino/foodorder/order/pkg/domain"
)

// CreateOrder is the body of the internal checkout endpoint. The checkout key travels in the
// Idempotency-Key header and the owner is taken from the caller's session.
type CreateOrder struct {
	Lines           []cartDomain.LineItem  `json:"lines"`
	DeliveryAddress domain.DeliveryAddress `json:"deliveryAddress"`
	ContactInfo     domain.ContactInfo     `json:"contactInfo"`
	Subtotal        money.Money            `json:"subtotal"`
	DeliveryFee     money.Money            `json:"deliveryFee"`
	Tax             money.Money            `json:"tax"`
	GrandTotal      money.Money            `json:"grandTotal"`
	Currency        string                 `json:"currency"`
}

func FromNewOrder(newOrder domain.NewOrder) CreateOrder {
	return CreateOrder{
		Lines:           newOrder.Lines,
		DeliveryAddress: newOrder.DeliveryAddress,
		ContactInfo:     newOrder.ContactInfo,
		Subtotal:        newOrder.Subtotal,
		DeliveryFee:     newOrder.DeliveryFee,
		Tax:             newOrder.Tax,
		GrandTotal:      newOrder.GrandTotal,
		Currency:        newOrder.Currency,
	}
}

func (r CreateOrder) NewOrder(checkoutKey string, userID uuid.UUID) domain.NewOrder {
	return domain.NewOrder{
		CheckoutKey:     checkoutKey,
		UserID:          userID,
		Lines:           r.Lines,
		DeliveryAddress: r.DeliveryAddress,
		ContactInfo:     r.ContactInfo,
		Subtotal:        r.Subtotal,
		DeliveryFee:     r.DeliveryFee,
		Tax:             r.Tax,
		GrandTotal:      r.GrandTotal,
		Currency:        r.Currency,
	}
}

type UpdateStatus struct {
	Status string `json:"status" validate:"required"`
}
