// Package catalog looks menu items up in the catalog service.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Alturino/foodorder/cart/pkg/domain"
	"github.com/Alturino/foodorder/internal/config"
	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/money"
	"github.com/Alturino/foodorder/internal/otel"
)

// MenuItem is the catalog's wire shape. Price arrives in major units, as a number or a string.
type MenuItem struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Category  string          `json:"category"`
	Available bool            `json:"available"`
	ImageURL  string          `json:"imageUrl,omitempty"`
}

type Client struct {
	baseURL    string
	currency   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[domain.MenuItemRef]
}

func NewClient(cfg config.Catalog, currencyCode string) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		currency: currencyCode,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[domain.MenuItemRef](gobreaker.Settings{
			Name:        "catalog",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// an unknown item is a healthy answer
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, inErrors.ErrItemNotFound)
			},
		}),
	}
}

func (cl *Client) GetMenuItem(c context.Context, itemID int64) (domain.MenuItemRef, error) {
	c, span := otel.Tracer.Start(c, "CatalogClient GetMenuItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CatalogClient GetMenuItem").
		Int64(log.KeyItemID, itemID).
		Str(log.KeyCatalogURL, cl.baseURL).
		Logger()

	logger.Trace().Msg("fetching menu item")
	ref, err := cl.breaker.Execute(func() (domain.MenuItemRef, error) {
		return cl.fetch(c, itemID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = inErrors.DependencyUnavailable(err, "catalog")
		}
		err = fmt.Errorf("failed fetching menu item=%d with error=%w", itemID, err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Str(log.KeyBreakerState, cl.breaker.State().String()).Msg(err.Error())
		return domain.MenuItemRef{}, err
	}
	logger.Trace().Msg("fetched menu item")
	return ref, nil
}

func (cl *Client) fetch(c context.Context, itemID int64) (domain.MenuItemRef, error) {
	url := fmt.Sprintf("%s/api/menu/%d", cl.baseURL, itemID)
	req, err := http.NewRequestWithContext(c, http.MethodGet, url, nil)
	if err != nil {
		return domain.MenuItemRef{}, inErrors.Wrap(inErrors.CodeInternal, err, "failed building catalog request")
	}
	req.Header.Set("Accept", "application/json")

	res, err := cl.httpClient.Do(req)
	if err != nil {
		return domain.MenuItemRef{}, inErrors.DependencyUnavailable(err, "catalog")
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return domain.MenuItemRef{}, inErrors.New(
			inErrors.CodeItemNotFound,
			fmt.Sprintf("menu item %d does not exist", itemID),
		)
	case res.StatusCode != http.StatusOK:
		return domain.MenuItemRef{}, inErrors.DependencyUnavailable(
			fmt.Errorf("catalog answered status=%d", res.StatusCode),
			"catalog",
		)
	}

	var item MenuItem
	if err := json.NewDecoder(res.Body).Decode(&item); err != nil {
		return domain.MenuItemRef{}, inErrors.DependencyUnavailable(
			fmt.Errorf("failed decoding menu item with error=%w", err),
			"catalog",
		)
	}
	price, err := money.FromDecimal(item.Price, cl.currency)
	if err != nil {
		return domain.MenuItemRef{}, inErrors.DependencyUnavailable(err, "catalog")
	}

	return domain.MenuItemRef{
		ItemID:    item.ID,
		Name:      item.Name,
		UnitPrice: price,
		Available: item.Available,
	}, nil
}
