package domain

import (
	"fmt"

	inErrors "github.com/Alturino/foodorder/internal/errors"
)

type OrderStatus string

const (
	StatusPending        OrderStatus = "PENDING"
	StatusConfirmed      OrderStatus = "CONFIRMED"
	StatusPreparing      OrderStatus = "PREPARING"
	StatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	StatusDelivered      OrderStatus = "DELIVERED"
	StatusCancelled      OrderStatus = "CANCELLED"
)

var AllStatuses = []OrderStatus{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

// ParseOrderStatus is case-sensitive; statuses travel verbatim.
func ParseOrderStatus(value string) (OrderStatus, error) {
	status := OrderStatus(value)
	if !status.IsValid() {
		return "", inErrors.ValidationFailed("status")
	}
	return status, nil
}

// TransitionPolicy decides which moves between non-terminal and different statuses are allowed.
// Terminal and same-status moves are rejected before the policy is asked.
type TransitionPolicy interface {
	Name() string
	Allows(from OrderStatus, to OrderStatus) bool
}

// PermissivePolicy lets staff move an order from any open status to any other status.
type PermissivePolicy struct{}

func (PermissivePolicy) Name() string { return "permissive" }

func (PermissivePolicy) Allows(OrderStatus, OrderStatus) bool { return true }

type TablePolicy struct {
	name  string
	moves map[OrderStatus][]OrderStatus
}

func NewTablePolicy(name string, moves map[OrderStatus][]OrderStatus) TablePolicy {
	return TablePolicy{name: name, moves: moves}
}

func (p TablePolicy) Name() string { return p.name }

func (p TablePolicy) Allows(from OrderStatus, to OrderStatus) bool {
	for _, allowed := range p.moves[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func ForwardOnlyPolicy() TablePolicy {
	return NewTablePolicy("forward_only", map[OrderStatus][]OrderStatus{
		StatusPending:        {StatusConfirmed, StatusCancelled},
		StatusConfirmed:      {StatusPreparing, StatusCancelled},
		StatusPreparing:      {StatusOutForDelivery, StatusCancelled},
		StatusOutForDelivery: {StatusDelivered, StatusCancelled},
	})
}

func PolicyByName(name string) (TransitionPolicy, error) {
	switch name {
	case "", "permissive":
		return PermissivePolicy{}, nil
	case "forward_only":
		return ForwardOnlyPolicy(), nil
	}
	return nil, fmt.Errorf("unknown transition policy=%s", name)
}

// CheckTransition returns an InvalidTransition error carrying the order's current status when
// the move is not allowed.
func CheckTransition(policy TransitionPolicy, orderID string, from OrderStatus, to OrderStatus) error {
	details := inErrors.TransitionDetails{
		OrderID:         orderID,
		CurrentStatus:   from.String(),
		RequestedStatus: to.String(),
	}
	switch {
	case from.IsTerminal():
		details.Reason = fmt.Sprintf("order is already %s", from)
	case from == to:
		details.Reason = fmt.Sprintf("order is already %s", from)
	case !policy.Allows(from, to):
		details.Reason = fmt.Sprintf("%s policy does not allow %s to %s", policy.Name(), from, to)
	default:
		return nil
	}
	return inErrors.InvalidTransition(details)
}
