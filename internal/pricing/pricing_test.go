package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/foodorder/internal/config"
	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/internal/money"
)

type subtotal int64

func (s subtotal) Subtotal() money.Money {
	return money.FromMinor(int64(s))
}

func TestQuote(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	testCases := []struct {
		desc     string
		subtotal int64
		want     Breakdown
	}{
		{
			desc:     "two pizzas",
			subtotal: 2598,
			want: Breakdown{
				Subtotal:    money.FromMinor(2598),
				DeliveryFee: money.FromMinor(399),
				Tax:         money.FromMinor(260),
				GrandTotal:  money.FromMinor(3257),
				Currency:    "INR",
			},
		},
		{
			desc:     "round subtotal",
			subtotal: 1000,
			want: Breakdown{
				Subtotal:    money.FromMinor(1000),
				DeliveryFee: money.FromMinor(399),
				Tax:         money.FromMinor(100),
				GrandTotal:  money.FromMinor(1499),
				Currency:    "INR",
			},
		},
		{
			desc:     "half rounds up",
			subtotal: 5,
			want: Breakdown{
				Subtotal:    money.FromMinor(5),
				DeliveryFee: money.FromMinor(399),
				Tax:         money.FromMinor(1),
				GrandTotal:  money.FromMinor(405),
				Currency:    "INR",
			},
		},
		{
			desc:     "below half rounds down",
			subtotal: 4,
			want: Breakdown{
				Subtotal:    money.FromMinor(4),
				DeliveryFee: money.FromMinor(399),
				Tax:         money.Zero(),
				GrandTotal:  money.FromMinor(403),
				Currency:    "INR",
			},
		},
		{
			desc:     "empty cart still quotes the delivery fee",
			subtotal: 0,
			want: Breakdown{
				Subtotal:    money.Zero(),
				DeliveryFee: money.FromMinor(399),
				Tax:         money.Zero(),
				GrandTotal:  money.FromMinor(399),
				Currency:    "INR",
			},
		},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			got := engine.Quote(subtotal(tC.subtotal))
			assert.Equal(t, tC.want, got)
			assert.Equal(t, got, engine.Quote(subtotal(tC.subtotal)), "quote must be idempotent")
		})
	}
}

func TestNewConfig(t *testing.T) {
	testCases := []struct {
		desc    string
		fee     int64
		rate    string
		wantErr bool
	}{
		{desc: "defaults", fee: 399, rate: "0.10"},
		{desc: "no tax", fee: 0, rate: "0"},
		{desc: "full rate", fee: 0, rate: "1"},
		{desc: "negative fee", fee: -1, rate: "0.10", wantErr: true},
		{desc: "negative rate", fee: 399, rate: "-0.01", wantErr: true},
		{desc: "rate above one", fee: 399, rate: "1.01", wantErr: true},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			_, err := NewConfig(money.FromMinor(tC.fee), decimal.RequireFromString(tC.rate))
			if tC.wantErr {
				assert.ErrorIs(t, err, inErrors.ErrValidationFailed)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg, err := FromConfig(config.Pricing{
		Currency:    "USD",
		Locale:      "en-US",
		DeliveryFee: 250,
		TaxRate:     "0.08",
	})
	require.NoError(t, err)
	assert.Equal(t, money.FromMinor(250), cfg.DeliveryFee)
	assert.True(t, cfg.TaxRate.Equal(decimal.RequireFromString("0.08")))
	assert.Equal(t, "USD", cfg.Currency)

	_, err = FromConfig(config.Pricing{TaxRate: "ten percent"})
	assert.Error(t, err)
}
