package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Alturino/foodorder/internal/config"
	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/internal/money"
)

const (
	DefaultDeliveryFee = 399
	DefaultTaxRate     = "0.10"
	DefaultCurrency    = "INR"
	DefaultLocale      = "en-IN"
)

type Config struct {
	DeliveryFee money.Money
	TaxRate     decimal.Decimal
	Currency    string
	Locale      string
}

func NewConfig(deliveryFee money.Money, taxRate decimal.Decimal) (Config, error) {
	if deliveryFee.IsNegative() {
		return Config{}, inErrors.ValidationFailed("deliveryFee")
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(1)) {
		return Config{}, inErrors.ValidationFailed("taxRate")
	}
	return Config{
		DeliveryFee: deliveryFee,
		TaxRate:     taxRate,
		Currency:    DefaultCurrency,
		Locale:      DefaultLocale,
	}, nil
}

func DefaultConfig() Config {
	return Config{
		DeliveryFee: money.FromMinor(DefaultDeliveryFee),
		TaxRate:     decimal.RequireFromString(DefaultTaxRate),
		Currency:    DefaultCurrency,
		Locale:      DefaultLocale,
	}
}

func FromConfig(cfg config.Pricing) (Config, error) {
	rate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return Config{}, fmt.Errorf("failed parsing taxRate=%s with error=%w", cfg.TaxRate, err)
	}
	pricingConfig, err := NewConfig(money.FromMinor(cfg.DeliveryFee), rate)
	if err != nil {
		return Config{}, fmt.Errorf("failed creating pricing config with error=%w", err)
	}
	if cfg.Currency != "" {
		pricingConfig.Currency = cfg.Currency
	}
	if cfg.Locale != "" {
		pricingConfig.Locale = cfg.Locale
	}
	return pricingConfig, nil
}

// Subtotaler is anything with a running subtotal, typically a cart snapshot.
type Subtotaler interface {
	Subtotal() money.Money
}

type Breakdown struct {
	Subtotal    money.Money `json:"subtotal"`
	DeliveryFee money.Money `json:"deliveryFee"`
	Tax         money.Money `json:"tax"`
	GrandTotal  money.Money `json:"grandTotal"`
	Currency    string      `json:"currency"`
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) Engine {
	return Engine{cfg: cfg}
}

func (e Engine) Config() Config {
	return e.cfg
}

// Quote derives the charges for a cart. Tax is rounded half-up once, on the subtotal.
func (e Engine) Quote(cart Subtotaler) Breakdown {
	subtotal := cart.Subtotal()
	tax := decimal.NewFromInt(subtotal.Minor()).Mul(e.cfg.TaxRate).Round(0).IntPart()
	breakdown := Breakdown{
		Subtotal:    subtotal,
		DeliveryFee: e.cfg.DeliveryFee,
		Tax:         money.FromMinor(tax),
		Currency:    e.cfg.Currency,
	}
	breakdown.GrandTotal = subtotal.Add(breakdown.DeliveryFee).Add(breakdown.Tax)
	return breakdown
}
