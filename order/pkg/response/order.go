package response

import (
	"github.com/Alturino/foodorder/internal/money"
	"github.com/Alturino/foodorder/order/pkg/domain"
)

// Order adds locale formatted amounts to the stored order.
type Order struct {
	domain.Order
	Display map[string]string `json:"display,omitempty"`
}

func FromOrder(order domain.Order, locale string) (Order, error) {
	amounts := map[string]money.Money{
		"subtotal":    order.Subtotal,
		"deliveryFee": order.DeliveryFee,
		"tax":         order.Tax,
		"grandTotal":  order.GrandTotal,
	}
	display := make(map[string]string, len(amounts))
	for name, amount := range amounts {
		formatted, err := amount.Format(locale, order.Currency)
		if err != nil {
			return Order{}, err
		}
		display[name] = formatted
	}
	return Order{Order: order, Display: display}, nil
}

func FromOrders(orders []domain.Order, locale string) ([]Order, error) {
	out := make([]Order, 0, len(orders))
	for _, order := range orders {
		res, err := FromOrder(order, locale)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}
