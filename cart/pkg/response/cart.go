package response

import (
	"github.com/Alturino/foodorder/cart/pkg/domain"
	"github.com/Alturino/foodorder/internal/money"
	"github.com/Alturino/foodorder/internal/pricing"
)

type Line struct {
	ItemID    int64       `json:"itemId"`
	Name      string      `json:"name"`
	UnitPrice money.Money `json:"unitPrice"`
	Quantity  int         `json:"quantity"`
	LineTotal money.Money `json:"lineTotal"`
}

type Cart struct {
	Lines     []Line      `json:"lines"`
	Total     money.Money `json:"total"`
	ItemCount int         `json:"itemCount"`
	Revision  int64       `json:"revision"`
}

func CartFromSnapshot(snapshot domain.Snapshot) Cart {
	lines := make([]Line, len(snapshot.Lines))
	for i, line := range snapshot.Lines {
		lines[i] = Line{
			ItemID:    line.ItemID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal(),
		}
	}
	return Cart{
		Lines:     lines,
		Total:     snapshot.Total,
		ItemCount: snapshot.ItemCount,
		Revision:  snapshot.Revision,
	}
}

// Quote carries the breakdown in minor units plus display strings for the storefront.
type Quote struct {
	pricing.Breakdown
	Display map[string]string `json:"display,omitempty"`
}

func QuoteFromBreakdown(breakdown pricing.Breakdown, locale string) (Quote, error) {
	amounts := map[string]money.Money{
		"subtotal":    breakdown.Subtotal,
		"deliveryFee": breakdown.DeliveryFee,
		"tax":         breakdown.Tax,
		"grandTotal":  breakdown.GrandTotal,
	}
	display := make(map[string]string, len(amounts))
	for name, amount := range amounts {
		formatted, err := amount.Format(locale, breakdown.Currency)
		if err != nil {
			return Quote{}, err
		}
		display[name] = formatted
	}
	return Quote{Breakdown: breakdown, Display: display}, nil
}
