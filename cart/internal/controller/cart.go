package controller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Alturino/foodorder/cart/internal/checkout"
	"github.com/Alturino/foodorder/cart/internal/service"
	"github.com/Alturino/foodorder/cart/pkg/request"
	"github.com/Alturino/foodorder/cart/pkg/response"
	inErrors "github.com/Alturino/foodorder/internal/errors"
	inHttp "github.com/Alturino/foodorder/internal/http"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/middleware"
	"github.com/Alturino/foodorder/internal/otel"
	"github.com/Alturino/foodorder/internal/validate"
)

type CartController struct {
	service  *service.CartService
	checkout *checkout.Orchestrator
	locale   string
}

func AttachCartController(
	mux *mux.Router,
	service *service.CartService,
	orchestrator *checkout.Orchestrator,
	locale string,
) {
	controller := CartController{service: service, checkout: orchestrator, locale: locale}

	router := mux.PathPrefix("/carts").Subrouter()
	router.HandleFunc("/{sessionId}", controller.GetCart).Methods(http.MethodGet)
	router.HandleFunc("/{sessionId}", controller.ClearCart).Methods(http.MethodDelete)
	router.HandleFunc("/{sessionId}/items", controller.AddItem).Methods(http.MethodPost)
	router.HandleFunc("/{sessionId}/items/{itemId}", controller.UpdateQuantity).Methods(http.MethodPut)
	router.HandleFunc("/{sessionId}/items/{itemId}", controller.RemoveItem).Methods(http.MethodDelete)
	router.HandleFunc("/{sessionId}/quote", controller.Quote).Methods(http.MethodGet)
	router.Handle("/{sessionId}/checkout", middleware.RequireSession(http.HandlerFunc(controller.Checkout))).
		Methods(http.MethodPost)
}

func itemIDFromPath(r *http.Request) (int64, error) {
	itemID, err := strconv.ParseInt(mux.Vars(r)["itemId"], 10, 64)
	if err != nil || itemID <= 0 {
		return 0, inErrors.ValidationFailed("itemId")
	}
	return itemID, nil
}

func (t CartController) GetCart(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController GetCart")
	defer span.End()

	session := mux.Vars(r)["sessionId"]
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController GetCart").
		Str(log.KeySessionID, session).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "getting cart").Logger()
	logger.Trace().Msg("getting cart")
	c = logger.WithContext(c)
	snapshot, err := t.service.Get(c, session)
	if err != nil {
		err = fmt.Errorf("failed getting cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger.Trace().Msg("got cart")

	inHttp.WriteSuccess(c, w, http.StatusOK, "cart found", map[string]any{
		"cart": response.CartFromSnapshot(snapshot),
	})
}

func (t CartController) AddItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController AddItem")
	defer span.End()

	session := mux.Vars(r)["sessionId"]
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController AddItem").
		Str(log.KeySessionID, session).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Trace().Msg("decoding request body")
	reqBody := request.AddItem{}
	if err := validate.DecodeJSON(r, &reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger = logger.With().Int64(log.KeyItemID, reqBody.ItemID).Logger()
	logger.Trace().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "adding item").Logger()
	logger.Trace().Msg("adding item")
	c = logger.WithContext(c)
	snapshot, err := t.service.AddItem(c, session, reqBody.ItemID)
	if err != nil {
		err = fmt.Errorf("failed adding item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger.Info().Msg("added item")

	inHttp.WriteSuccess(c, w, http.StatusOK, fmt.Sprintf("added itemId=%d", reqBody.ItemID), map[string]any{
		"cart": response.CartFromSnapshot(snapshot),
	})
}

func (t CartController) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController UpdateQuantity")
	defer span.End()

	session := mux.Vars(r)["sessionId"]
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController UpdateQuantity").
		Str(log.KeySessionID, session).
		Any(log.KeyPathValues, mux.Vars(r)).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "validating itemId").Logger()
	itemID, err := itemIDFromPath(r)
	if err != nil {
		err = fmt.Errorf("failed validating itemId with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Trace().Msg("decoding request body")
	reqBody := request.UpdateQuantity{}
	if err := validate.DecodeJSON(r, &reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger = logger.With().Int(log.KeyQuantity, *reqBody.Quantity).Logger()
	logger.Trace().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "updating quantity").Logger()
	c = logger.WithContext(c)
	snapshot, err := t.service.UpdateQuantity(c, session, itemID, *reqBody.Quantity)
	if err != nil {
		err = fmt.Errorf("failed updating quantity with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger.Info().Msg("updated quantity")

	inHttp.WriteSuccess(c, w, http.StatusOK, fmt.Sprintf("updated itemId=%d", itemID), map[string]any{
		"cart": response.CartFromSnapshot(snapshot),
	})
}

func (t CartController) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController RemoveItem")
	defer span.End()

	session := mux.Vars(r)["sessionId"]
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController RemoveItem").
		Str(log.KeySessionID, session).
		Any(log.KeyPathValues, mux.Vars(r)).
		Logger()

	itemID, err := itemIDFromPath(r)
	if err != nil {
		err = fmt.Errorf("failed validating itemId with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "removing item").Logger()
	c = logger.WithContext(c)
	snapshot, err := t.service.RemoveItem(c, session, itemID)
	if err != nil {
		err = fmt.Errorf("failed removing item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger.Info().Msg("removed item")

	inHttp.WriteSuccess(c, w, http.StatusOK, fmt.Sprintf("removed itemId=%d", itemID), map[string]any{
		"cart": response.CartFromSnapshot(snapshot),
	})
}

func (t CartController) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController ClearCart")
	defer span.End()

	session := mux.Vars(r)["sessionId"]
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController ClearCart").
		Str(log.KeySessionID, session).
		Str(log.KeyProcess, "clearing cart").
		Logger()

	c = logger.WithContext(c)
	snapshot, err := t.service.Clear(c, session)
	if err != nil {
		err = fmt.Errorf("failed clearing cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger.Info().Msg("cleared cart")

	inHttp.WriteSuccess(c, w, http.StatusOK, "cleared cart", map[string]any{
		"cart": response.CartFromSnapshot(snapshot),
	})
}

func (t CartController) Quote(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController Quote")
	defer span.End()

	session := mux.Vars(r)["sessionId"]
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController Quote").
		Str(log.KeySessionID, session).
		Str(log.KeyProcess, "quoting cart").
		Logger()

	c = logger.WithContext(c)
	snapshot, breakdown, err := t.service.Quote(c, session)
	if err != nil {
		err = fmt.Errorf("failed quoting cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	quote, err := response.QuoteFromBreakdown(breakdown, t.locale)
	if err != nil {
		err = fmt.Errorf("failed formatting quote with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger.Trace().Any(log.KeyQuote, breakdown).Msg("quoted cart")

	inHttp.WriteSuccess(c, w, http.StatusOK, "quoted cart", map[string]any{
		"cart":  response.CartFromSnapshot(snapshot),
		"quote": quote,
	})
}

func (t CartController) Checkout(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController Checkout")
	defer span.End()

	session := mux.Vars(r)["sessionId"]
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController Checkout").
		Str(log.KeySessionID, session).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Trace().Msg("decoding request body")
	reqBody := request.Checkout{}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		err = inErrors.Wrap(inErrors.CodeValidationFailed, err, "invalid request body")
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger.Trace().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "submitting checkout").Logger()
	logger.Trace().Msg("submitting checkout")
	c = logger.WithContext(c)
	receipt, err := t.checkout.Submit(c, session, reqBody.DeliveryAddress, reqBody.ContactInfo)
	if err != nil {
		err = fmt.Errorf("failed submitting checkout with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteError(c, w, err)
		return
	}
	logger.Info().Str(log.KeyOrderNumber, receipt.OrderNumber).Msg("submitted checkout")

	inHttp.WriteSuccess(
		c,
		w,
		http.StatusCreated,
		fmt.Sprintf("created order=%s", receipt.OrderNumber),
		map[string]any{"receipt": receipt},
	)
}
