// Package client creates orders in the order service over HTTP on behalf of the caller.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Alturino/foodorder/internal/auth"
	"github.com/Alturino/foodorder/internal/config"
	inErrors "github.com/Alturino/foodorder/internal/errors"
	inHttp "github.com/Alturino/foodorder/internal/http"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/otel"
	"github.com/Alturino/foodorder/order/pkg/domain"
	"github.com/Alturino/foodorder/order/pkg/request"
)

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

type failure struct {
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

type OrderClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[domain.Order]
}

func NewOrderClient(cfg config.OrderService) *OrderClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OrderClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[domain.Order](gobreaker.Settings{
			Name:        "order-service",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// a rejected request means the service is up
			IsSuccessful: func(err error) bool {
				return err == nil || !errors.Is(err, inErrors.ErrDependencyUnavailable)
			},
		}),
	}
}

// Create posts the order with its checkout key as the Idempotency-Key, so a retried checkout
// gets the order created the first time.
func (cl *OrderClient) Create(c context.Context, newOrder domain.NewOrder) (domain.Order, error) {
	c, span := otel.Tracer.Start(c, "OrderClient Create")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderClient Create").
		Str(log.KeyCheckoutKey, newOrder.CheckoutKey).
		Logger()

	logger.Trace().Msg("creating order")
	order, err := cl.breaker.Execute(func() (domain.Order, error) {
		return cl.post(c, newOrder)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = inErrors.DependencyUnavailable(err, "order service")
		}
		err = fmt.Errorf("failed creating order with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Str(log.KeyBreakerState, cl.breaker.State().String()).Msg(err.Error())
		return domain.Order{}, err
	}
	logger.Trace().Str(log.KeyOrderNumber, order.OrderNumber).Msg("created order")
	return order, nil
}

func (cl *OrderClient) post(c context.Context, newOrder domain.NewOrder) (domain.Order, error) {
	body, err := json.Marshal(request.FromNewOrder(newOrder))
	if err != nil {
		return domain.Order{}, inErrors.Wrap(inErrors.CodeInternal, err, "failed encoding order")
	}
	req, err := http.NewRequestWithContext(c, http.MethodPost, cl.baseURL+"/orders/checkout", bytes.NewReader(body))
	if err != nil {
		return domain.Order{}, inErrors.Wrap(inErrors.CodeInternal, err, "failed building order request")
	}
	req.Header.Set(inHttp.KeyHeaderContentType, inHttp.ValueHeaderApplicationJson)
	req.Header.Set(inHttp.KeyHeaderIdempotency, newOrder.CheckoutKey)
	if token := auth.TokenFromContext(c); token != "" {
		req.Header.Set(inHttp.KeyHeaderAuthorization, "Bearer "+token)
	}

	res, err := cl.httpClient.Do(req)
	if err != nil {
		return domain.Order{}, inErrors.DependencyUnavailable(err, "order service")
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return domain.Order{}, inErrors.DependencyUnavailable(
			fmt.Errorf("failed decoding order service response status=%d with error=%w", res.StatusCode, err),
			"order service",
		)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return domain.Order{}, decodeFailure(res.StatusCode, env)
	}

	var data struct {
		Order domain.Order `json:"order"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return domain.Order{}, inErrors.DependencyUnavailable(
			fmt.Errorf("failed decoding order with error=%w", err),
			"order service",
		)
	}
	return data.Order, nil
}

// decodeFailure turns the service's error envelope back into a coded error.
func decodeFailure(statusCode int, env envelope) error {
	var body failure
	if err := json.Unmarshal(env.Data, &body); err != nil || body.Code == "" {
		if statusCode >= http.StatusInternalServerError {
			return inErrors.DependencyUnavailable(
				fmt.Errorf("order service answered status=%d", statusCode),
				"order service",
			)
		}
		return inErrors.New(inErrors.CodeInternal, env.Message)
	}

	code := inErrors.Code(body.Code)
	switch code {
	case inErrors.CodeValidationFailed:
		var details inErrors.ValidationDetails
		_ = json.Unmarshal(body.Details, &details)
		return inErrors.ValidationFailed(details.Fields...)
	case inErrors.CodeInternal:
		return inErrors.DependencyUnavailable(
			fmt.Errorf("order service failed with message=%s", env.Message),
			"order service",
		)
	}
	return inErrors.New(code, env.Message)
}
