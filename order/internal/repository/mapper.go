package repository

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	cartDomain "github.com/Alturino/foodorder/cart/pkg/domain"
	"github.com/Alturino/foodorder/internal/money"
	"github.com/Alturino/foodorder/order/pkg/domain"
)

const orderColumns = `id, order_number, user_id, checkout_key, delivery_address, contact_info,
	subtotal, delivery_fee, tax, grand_total, currency, status,
	created_at, updated_at, status_changed_at, estimated_delivery_at`

var itemColumns = []string{"order_id", "position", "item_id", "name", "unit_price", "quantity"}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		order                                 domain.Order
		subtotal, deliveryFee, tax, grandTotal int64
		status                                string
	)
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.CheckoutKey,
		&order.DeliveryAddress,
		&order.ContactInfo,
		&subtotal,
		&deliveryFee,
		&tax,
		&grandTotal,
		&order.Currency,
		&status,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.StatusChangedAt,
		&order.EstimatedDeliveryAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.Subtotal = money.FromMinor(subtotal)
	order.DeliveryFee = money.FromMinor(deliveryFee)
	order.Tax = money.FromMinor(tax)
	order.GrandTotal = money.FromMinor(grandTotal)
	order.Status = domain.OrderStatus(status)
	return order, nil
}

func scanItem(row pgx.Row) (uuid.UUID, cartDomain.LineItem, error) {
	var (
		orderID   uuid.UUID
		line      cartDomain.LineItem
		unitPrice int64
	)
	if err := row.Scan(&orderID, &line.ItemID, &line.Name, &unitPrice, &line.Quantity); err != nil {
		return uuid.UUID{}, cartDomain.LineItem{}, err
	}
	line.UnitPrice = money.FromMinor(unitPrice)
	return orderID, line, nil
}

func itemRows(order domain.Order) [][]any {
	rows := make([][]any, len(order.Lines))
	for i, line := range order.Lines {
		rows[i] = []any{order.ID, i, line.ItemID, line.Name, line.UnitPrice.Minor(), line.Quantity}
	}
	return rows
}
