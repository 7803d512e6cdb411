// Package repository stores orders in memory or in postgres.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/order/pkg/domain"
)

const (
	KindMemory   = "memory"
	KindPostgres = "postgres"
)

// ErrDuplicateOrderNumber is returned by Create when another order already holds the number.
// Nothing is stored; the caller draws a new number and tries again.
var ErrDuplicateOrderNumber = errors.New("order number already taken")

// Store is the order record of truth.
//
// UpdateStatus runs apply on the current order inside that order's critical section and saves
// the result only when apply returns nil, so the status check and the write cannot interleave
// with another update of the same order.
type Store interface {
	Create(c context.Context, order domain.Order) (stored domain.Order, created bool, err error)
	Get(c context.Context, id uuid.UUID) (domain.Order, error)
	List(c context.Context, direction domain.SortDirection) ([]domain.Order, error)
	ListByUser(c context.Context, userID uuid.UUID) ([]domain.Order, error)
	UpdateStatus(c context.Context, id uuid.UUID, apply func(order *domain.Order) error) (domain.Order, error)
}

func orderNotFound(id uuid.UUID) error {
	return inErrors.New(inErrors.CodeOrderNotFound, fmt.Sprintf("order %s does not exist", id))
}

func sortOrders(orders []domain.Order, direction domain.SortDirection) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			if direction == domain.SortAscending {
				return a.OrderNumber < b.OrderNumber
			}
			return a.OrderNumber > b.OrderNumber
		}
		if direction == domain.SortAscending {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
