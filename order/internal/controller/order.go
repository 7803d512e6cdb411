package controller

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Alturino/foodorder/internal/auth"
	inErrors "github.com/Alturino/foodorder/internal/errors"
	inHttp "github.com/Alturino/foodorder/internal/http"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/middleware"
	"github.com/Alturino/foodorder/internal/otel"
	"github.com/Alturino/foodorder/internal/validate"
	"github.com/Alturino/foodorder/order/internal/service"
	"github.com/Alturino/foodorder/order/pkg/domain"
	"github.com/Alturino/foodorder/order/pkg/request"
	"github.com/Alturino/foodorder/order/pkg/response"
)

type OrderController struct {
	service *service.OrderService
	locale  string
}

func AttachOrderController(mux *mux.Router, service *service.OrderService, locale string) {
	controller := OrderController{service: service, locale: locale}

	router := mux.PathPrefix("/orders").Subrouter()
	router.Handle("", middleware.RequireStaff(http.HandlerFunc(controller.FindOrders))).
		Methods(http.MethodGet)
	router.Handle("/checkout", middleware.RequireSession(http.HandlerFunc(controller.CreateOrder))).
		Methods(http.MethodPost)
	router.Handle("/mine", middleware.RequireSession(http.HandlerFunc(controller.FindMyOrders))).
		Methods(http.MethodGet)
	router.Handle("/{orderId}", middleware.RequireSession(http.HandlerFunc(controller.FindOrderById))).
		Methods(http.MethodGet)
	router.Handle("/{orderId}/status", middleware.RequireStaff(http.HandlerFunc(controller.UpdateStatus))).
		Methods(http.MethodPatch)
}

func orderIDFromPath(r *http.Request) (uuid.UUID, error) {
	orderID, err := uuid.Parse(mux.Vars(r)["orderId"])
	if err != nil {
		return uuid.Nil, inErrors.ValidationFailed("orderId")
	}
	return orderID, nil
}

func (s OrderController) writeOrder(
	w http.ResponseWriter,
	r *http.Request,
	statusCode int,
	message string,
	order domain.Order,
) {
	res, err := response.FromOrder(order, s.locale)
	if err != nil {
		inHttp.WriteError(r.Context(), w, err)
		return
	}
	inHttp.WriteSuccess(r.Context(), w, statusCode, message, map[string]any{"order": res})
}

func (s OrderController) CreateOrder(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "OrderController CreateOrder")
	defer span.End()

	session, _ := auth.SessionFromContext(c)
	checkoutKey := r.Header.Get(inHttp.KeyHeaderIdempotency)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderController CreateOrder").
		Str(log.KeyCheckoutKey, checkoutKey).
		Logger()

	if checkoutKey == "" {
		err := fmt.Errorf("failed creating order with error=%w", inErrors.ValidationFailed(inHttp.KeyHeaderIdempotency))
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Trace().Msg("decoding request body")
	reqBody := request.CreateOrder{}
	if err := validate.DecodeJSON(r, &reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger.Trace().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "creating order").Logger()
	logger.Trace().Msg("creating order")
	c = logger.WithContext(c)
	order, err := s.service.Create(c, reqBody.NewOrder(checkoutKey, session.UserID))
	if err != nil {
		err = fmt.Errorf("failed creating order with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger.Info().Str(log.KeyOrderNumber, order.OrderNumber).Msg("created order")

	s.writeOrder(w, r.WithContext(c), http.StatusCreated, "order created", order)
}

func (s OrderController) FindOrders(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "OrderController FindOrders")
	defer span.End()

	sort := r.URL.Query().Get("sort")
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderController FindOrders").
		Str("sort", sort).
		Logger()

	direction, ok := domain.ParseSortDirection(sort)
	if !ok {
		err := fmt.Errorf("failed finding orders with error=%w", inErrors.ValidationFailed("sort"))
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "finding orders").Logger()
	logger.Trace().Msg("finding orders")
	c = logger.WithContext(c)
	orders, err := s.service.ListAll(c, direction)
	if err != nil {
		err = fmt.Errorf("failed finding orders with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger.Trace().Int("count", len(orders)).Msg("found orders")

	s.writeOrders(w, r.WithContext(c), orders)
}

func (s OrderController) FindMyOrders(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "OrderController FindMyOrders")
	defer span.End()

	session, _ := auth.SessionFromContext(c)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderController FindMyOrders").
		Str(log.KeyProcess, "finding orders of user").
		Logger()

	logger.Trace().Msg("finding orders of user")
	c = logger.WithContext(c)
	orders, err := s.service.ListByUser(c, session.UserID)
	if err != nil {
		err = fmt.Errorf("failed finding orders of user with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger.Trace().Int("count", len(orders)).Msg("found orders of user")

	s.writeOrders(w, r.WithContext(c), orders)
}

func (s OrderController) writeOrders(w http.ResponseWriter, r *http.Request, orders []domain.Order) {
	res, err := response.FromOrders(orders, s.locale)
	if err != nil {
		inHttp.WriteError(r.Context(), w, err)
		return
	}
	inHttp.WriteSuccess(r.Context(), w, http.StatusOK, "found orders", map[string]any{"orders": res})
}

func (s OrderController) FindOrderById(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "OrderController FindOrderById")
	defer span.End()

	session, _ := auth.SessionFromContext(c)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderController FindOrderById").
		Any(log.KeyPathValues, mux.Vars(r)).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "validating orderId").Logger()
	orderID, err := orderIDFromPath(r)
	if err != nil {
		err = fmt.Errorf("failed validating orderId with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "finding order").Logger()
	logger.Trace().Msg("finding order")
	c = logger.WithContext(c)
	order, err := s.service.Get(c, orderID)
	if err != nil {
		err = fmt.Errorf("failed finding order with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	if !session.IsStaff() && order.UserID != session.UserID {
		err = fmt.Errorf("failed finding order with error=%w", inErrors.ErrForbidden)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger.Trace().Msg("found order")

	s.writeOrder(w, r.WithContext(c), http.StatusOK, "found order", order)
}

func (s OrderController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "OrderController UpdateStatus")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderController UpdateStatus").
		Any(log.KeyPathValues, mux.Vars(r)).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "validating request").Logger()
	orderID, err := orderIDFromPath(r)
	if err != nil {
		err = fmt.Errorf("failed validating orderId with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	reqBody := request.UpdateStatus{}
	if err = validate.DecodeJSON(r, &reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	status, err := domain.ParseOrderStatus(reqBody.Status)
	if err != nil {
		err = fmt.Errorf("failed parsing status with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}

	logger = logger.With().
		Str(log.KeyProcess, "updating order status").
		Str(log.KeyOrderStatusTarget, status.String()).
		Logger()
	logger.Trace().Msg("updating order status")
	c = logger.WithContext(c)
	order, err := s.service.UpdateStatus(c, orderID, status)
	if err != nil {
		err = fmt.Errorf("failed updating order status with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger.Info().Msg("updated order status")

	s.writeOrder(w, r.WithContext(c), http.StatusOK, fmt.Sprintf("order is %s", order.Status), order)
}
