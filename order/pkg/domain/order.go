package domain

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	cartDomain "github.com/Alturino/foodorder/cart/pkg/domain"
	"github.com/Alturino/foodorder/internal/money"
)

type DeliveryAddress struct {
	Address      string `json:"address"                validate:"notblank"`
	City         string `json:"city"                   validate:"notblank"`
	PostalCode   string `json:"postalCode"             validate:"notblank"`
	Instructions string `json:"instructions,omitempty"`
}

type ContactInfo struct {
	FirstName string `json:"firstName" validate:"notblank"`
	LastName  string `json:"lastName"  validate:"notblank"`
	Email     string `json:"email"     validate:"notblank,email"`
	Phone     string `json:"phone"     validate:"notblank"`
}

// Order is immutable after creation except for its status and the timestamps that track it.
type Order struct {
	ID                  uuid.UUID             `json:"id"`
	OrderNumber         string                `json:"orderNumber"`
	UserID              uuid.UUID             `json:"userId"`
	Lines               []cartDomain.LineItem `json:"lines"`
	DeliveryAddress     DeliveryAddress       `json:"deliveryAddress"`
	ContactInfo         ContactInfo           `json:"contactInfo"`
	Subtotal            money.Money           `json:"subtotal"`
	DeliveryFee         money.Money           `json:"deliveryFee"`
	Tax                 money.Money           `json:"tax"`
	GrandTotal          money.Money           `json:"grandTotal"`
	Currency            string                `json:"currency"`
	Status              OrderStatus           `json:"status"`
	CheckoutKey         string                `json:"-"`
	CreatedAt           time.Time             `json:"createdAt"`
	UpdatedAt           time.Time             `json:"updatedAt"`
	StatusChangedAt     time.Time             `json:"statusChangedAt"`
	EstimatedDeliveryAt time.Time             `json:"estimatedDeliveryAt"`
}

// Clone copies the order so callers cannot reach into a store's copy.
func (o Order) Clone() Order {
	lines := make([]cartDomain.LineItem, len(o.Lines))
	copy(lines, o.Lines)
	o.Lines = lines
	return o
}

// NewOrder is everything checkout knows when it asks for an order to be created.
type NewOrder struct {
	CheckoutKey     string                `json:"checkoutKey"     validate:"notblank"`
	UserID          uuid.UUID             `json:"userId"`
	Lines           []cartDomain.LineItem `json:"lines"           validate:"required,min=1,dive"`
	DeliveryAddress DeliveryAddress       `json:"deliveryAddress"`
	ContactInfo     ContactInfo           `json:"contactInfo"`
	Subtotal        money.Money           `json:"subtotal"`
	DeliveryFee     money.Money           `json:"deliveryFee"`
	Tax             money.Money           `json:"tax"`
	GrandTotal      money.Money           `json:"grandTotal"`
	Currency        string                `json:"currency"        validate:"len=3"`
}

// Matches reports whether o is what n asks for: same customer, lines and charges.
func (o Order) Matches(n NewOrder) bool {
	return o.UserID == n.UserID &&
		slices.Equal(o.Lines, n.Lines) &&
		o.Subtotal == n.Subtotal &&
		o.DeliveryFee == n.DeliveryFee &&
		o.Tax == n.Tax &&
		o.GrandTotal == n.GrandTotal &&
		o.Currency == n.Currency
}

// Build turns a request into a PENDING order stamped at now.
func (n NewOrder) Build(id uuid.UUID, orderNumber string, now time.Time, eta time.Duration) Order {
	lines := make([]cartDomain.LineItem, len(n.Lines))
	copy(lines, n.Lines)
	return Order{
		ID:                  id,
		OrderNumber:         orderNumber,
		UserID:              n.UserID,
		Lines:               lines,
		DeliveryAddress:     n.DeliveryAddress,
		ContactInfo:         n.ContactInfo,
		Subtotal:            n.Subtotal,
		DeliveryFee:         n.DeliveryFee,
		Tax:                 n.Tax,
		GrandTotal:          n.GrandTotal,
		Currency:            n.Currency,
		Status:              StatusPending,
		CheckoutKey:         n.CheckoutKey,
		CreatedAt:           now,
		UpdatedAt:           now,
		StatusChangedAt:     now,
		EstimatedDeliveryAt: now.Add(eta),
	}
}

type SortDirection string

const (
	SortDescending SortDirection = "desc"
	SortAscending  SortDirection = "asc"
)

func ParseSortDirection(value string) (SortDirection, bool) {
	switch SortDirection(value) {
	case "", SortDescending:
		return SortDescending, true
	case SortAscending:
		return SortAscending, true
	}
	return "", false
}

// NumberGenerator hands out ORD-{unix millis} numbers, bumping past the last one issued so two
// orders created in the same millisecond still differ within a process.
type NumberGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewNumberGenerator(now func() time.Time) *NumberGenerator {
	if now == nil {
		now = time.Now
	}
	return &NumberGenerator{now: now}
}

func (g *NumberGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	millis := g.now().UnixMilli()
	if millis <= g.last {
		millis = g.last + 1
	}
	g.last = millis
	return fmt.Sprintf("ORD-%d", millis)
}
