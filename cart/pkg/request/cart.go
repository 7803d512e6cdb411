package request

import (
	orderDomain "github.com/Alturino/foodorder/order/pkg/domain"
)

type AddItem struct {
	ItemID int64 `json:"itemId" validate:"required,gt=0"`
}

// UpdateQuantity takes a pointer so a missing quantity is told apart from 0, which removes the line.
type UpdateQuantity struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// Checkout is validated by the checkout itself so its preconditions keep their order.
type Checkout struct {
	DeliveryAddress orderDomain.DeliveryAddress `json:"deliveryAddress"`
	ContactInfo     orderDomain.ContactInfo     `json:"contactInfo"`
}
