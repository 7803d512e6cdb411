package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/internal/money"
)

// MenuItemRef is what the catalog tells us about a menu item at the time it is added.
type MenuItemRef struct {
	ItemID    int64       `json:"itemId"`
	Name      string      `json:"name"`
	UnitPrice money.Money `json:"unitPrice"`
	Available bool        `json:"available"`
}

type LineItem struct {
	ItemID    int64       `json:"itemId"    validate:"gt=0"`
	Name      string      `json:"name"`
	UnitPrice money.Money `json:"unitPrice"`
	Quantity  int         `json:"quantity"  validate:"min=1"`
}

func (l LineItem) LineTotal() money.Money {
	return l.UnitPrice.Mul(l.Quantity)
}

// Cart keeps its total in step with its lines. Every mutation either commits completely or
// leaves the cart as it was. A cart gets a fresh id when it is created and when it is cleared,
// so (id, revision) never repeats even after the stored cart expires.
type Cart struct {
	id       uuid.UUID
	lines    map[int64]LineItem
	order    []int64
	total    money.Money
	revision int64
}

func NewCart() *Cart {
	return &Cart{id: uuid.New(), lines: map[int64]LineItem{}}
}

// put installs line (or removes itemID when line is nil) with the given total, then checks the
// invariant. On failure the previous line, order and total are restored.
func (c *Cart) put(itemID int64, line *LineItem, total money.Money) error {
	if c.lines == nil {
		c.lines = map[int64]LineItem{}
	}
	prevLine, hadLine := c.lines[itemID]
	prevTotal := c.total
	prevOrder := c.order

	switch {
	case line == nil && hadLine:
		order := make([]int64, 0, len(c.order)-1)
		for _, id := range c.order {
			if id != itemID {
				order = append(order, id)
			}
		}
		c.order = order
		delete(c.lines, itemID)
	case line != nil && !hadLine:
		c.order = append(c.order[:len(c.order):len(c.order)], itemID)
		c.lines[itemID] = *line
	case line != nil:
		c.lines[itemID] = *line
	}
	c.total = total

	if err := c.CheckInvariant(); err != nil {
		c.order = prevOrder
		c.total = prevTotal
		if hadLine {
			c.lines[itemID] = prevLine
		} else {
			delete(c.lines, itemID)
		}
		return err
	}
	c.revision++
	return nil
}

// AddItem adds one of ref. A line already in the cart takes the catalog's current name and
// price, and the total is adjusted for the whole line.
func (c *Cart) AddItem(ref MenuItemRef) error {
	if !ref.Available {
		return inErrors.New(inErrors.CodeItemUnavailable, fmt.Sprintf("%s is not available", ref.Name)).
			WithDetails(map[string]int64{"itemId": ref.ItemID})
	}
	if ref.UnitPrice.IsNegative() {
		return inErrors.ValidationFailed("unitPrice")
	}

	line, ok := c.lines[ref.ItemID]
	total := c.total
	if ok {
		total = total.Sub(line.LineTotal())
		line.Quantity++
	} else {
		line = LineItem{ItemID: ref.ItemID, Quantity: 1}
	}
	line.Name = ref.Name
	line.UnitPrice = ref.UnitPrice
	return c.put(ref.ItemID, &line, total.Add(line.LineTotal()))
}

// UpdateQuantity sets the quantity of a line; a quantity of zero or less removes it.
func (c *Cart) UpdateQuantity(itemID int64, quantity int) error {
	if quantity <= 0 {
		return c.RemoveItem(itemID)
	}
	line, ok := c.lines[itemID]
	if !ok {
		return inErrors.New(inErrors.CodeItemNotFound, fmt.Sprintf("item %d is not in the cart", itemID)).
			WithDetails(map[string]int64{"itemId": itemID})
	}
	if line.Quantity == quantity {
		return nil
	}

	total := c.total.Add(line.UnitPrice.Mul(quantity - line.Quantity))
	line.Quantity = quantity
	return c.put(itemID, &line, total)
}

// RemoveItem is a no-op for items that are not in the cart.
func (c *Cart) RemoveItem(itemID int64) error {
	line, ok := c.lines[itemID]
	if !ok {
		return nil
	}
	return c.put(itemID, nil, c.total.Sub(line.LineTotal()))
}

func (c *Cart) Clear() {
	revision := c.revision
	if len(c.lines) > 0 {
		revision++
	}
	*c = Cart{id: uuid.New(), lines: map[int64]LineItem{}, revision: revision}
}

// CheckInvariant reports a total that drifted from the sum of its lines, a line with a
// non-positive quantity, or a display order out of step with the lines.
func (c *Cart) CheckInvariant() error {
	if len(c.order) != len(c.lines) {
		return inErrors.New(
			inErrors.CodeInternal,
			fmt.Sprintf("cart has %d lines but %d ordered ids", len(c.lines), len(c.order)),
		)
	}
	sum := money.Zero()
	for _, id := range c.order {
		line, ok := c.lines[id]
		if !ok {
			return inErrors.New(inErrors.CodeInternal, fmt.Sprintf("ordered item %d has no line", id))
		}
		if line.Quantity < 1 {
			return inErrors.New(
				inErrors.CodeInternal,
				fmt.Sprintf("item %d has quantity=%d", id, line.Quantity),
			)
		}
		sum = sum.Add(line.LineTotal())
	}
	if sum.Cmp(c.total) != 0 {
		return inErrors.New(
			inErrors.CodeInternal,
			fmt.Sprintf("cart total=%d does not match sum of lines=%d", c.total.Minor(), sum.Minor()),
		)
	}
	return nil
}

// Lines returns the lines in the order they were first added.
func (c *Cart) Lines() []LineItem {
	lines := make([]LineItem, 0, len(c.order))
	for _, id := range c.order {
		lines = append(lines, c.lines[id])
	}
	return lines
}

func (c *Cart) Line(itemID int64) (LineItem, bool) {
	line, ok := c.lines[itemID]
	return line, ok
}

func (c *Cart) Total() money.Money {
	return c.total
}

func (c *Cart) Subtotal() money.Money {
	return c.total
}

func (c *Cart) ID() uuid.UUID {
	return c.id
}

func (c *Cart) Revision() int64 {
	return c.revision
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

func (c *Cart) ItemCount() int {
	count := 0
	for _, line := range c.lines {
		count += line.Quantity
	}
	return count
}

type Snapshot struct {
	ID        uuid.UUID   `json:"id"`
	Lines     []LineItem  `json:"lines"`
	Total     money.Money `json:"total"`
	ItemCount int         `json:"itemCount"`
	Revision  int64       `json:"revision"`
}

func (s Snapshot) Subtotal() money.Money {
	return s.Total
}

func (s Snapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

func (c *Cart) Snapshot() Snapshot {
	return Snapshot{
		ID:        c.id,
		Lines:     c.Lines(),
		Total:     c.total,
		ItemCount: c.ItemCount(),
		Revision:  c.revision,
	}
}

func (c *Cart) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

// UnmarshalJSON rebuilds a cart and rejects payloads that break the cart invariant.
func (c *Cart) UnmarshalJSON(data []byte) error {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed decoding cart with error=%w", err)
	}
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	next := &Cart{
		id:       snapshot.ID,
		lines:    make(map[int64]LineItem, len(snapshot.Lines)),
		order:    make([]int64, 0, len(snapshot.Lines)),
		total:    snapshot.Total,
		revision: snapshot.Revision,
	}
	for _, line := range snapshot.Lines {
		if _, dup := next.lines[line.ItemID]; dup {
			return inErrors.New(inErrors.CodeInternal, fmt.Sprintf("item %d appears twice", line.ItemID))
		}
		next.lines[line.ItemID] = line
		next.order = append(next.order, line.ItemID)
	}
	if err := next.CheckInvariant(); err != nil {
		return fmt.Errorf("failed decoding cart with error=%w", err)
	}
	*c = *next
	return nil
}
