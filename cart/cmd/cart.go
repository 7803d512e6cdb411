package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/Alturino/foodorder/cart/internal/checkout"
	"github.com/Alturino/foodorder/cart/internal/controller"
	"github.com/Alturino/foodorder/cart/internal/service"
	"github.com/Alturino/foodorder/cart/internal/store"
	"github.com/Alturino/foodorder/internal/auth"
	"github.com/Alturino/foodorder/internal/catalog"
	"github.com/Alturino/foodorder/internal/config"
	"github.com/Alturino/foodorder/internal/constants"
	"github.com/Alturino/foodorder/internal/infra"
	"github.com/Alturino/foodorder/internal/keylock"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/metrics"
	"github.com/Alturino/foodorder/internal/middleware"
	"github.com/Alturino/foodorder/internal/otel"
	"github.com/Alturino/foodorder/internal/pricing"
	"github.com/Alturino/foodorder/order/pkg/client"
)

func RunCartService(c context.Context) {
	c, span := otel.Tracer.Start(c, "RunCartService")
	defer span.End()

	cfg := config.Get(c, constants.AppCartService)

	logger := log.Get(cfg.Application.LogFile, cfg.Application.Env).
		With().
		Str(log.KeyAppName, constants.AppCartService).
		Str(log.KeyTag, "main RunCartService").
		Logger()

	logger = logger.With().Str(log.KeyProcess, "initializing otel sdk").Logger()
	logger.Info().Msg("initializing otel sdk")
	c = logger.WithContext(c)
	otelShutdowns, err := otel.InitOtelSdk(c, constants.AppCartService, cfg.Otel)
	if err != nil {
		err = fmt.Errorf("failed initializing otel sdk with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	defer func() {
		logger.Info().Msg("shutting down otel")
		if err := otel.ShutdownOtel(context.WithoutCancel(c), otelShutdowns); err != nil {
			err = fmt.Errorf("failed shutting down otel with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		logger.Info().Msg("shutdown otel")
	}()
	logger.Info().Msg("initialized otel sdk")

	logger = logger.With().Str(log.KeyProcess, "initializing cache").Logger()
	logger.Info().Msg("initializing cache")
	c = logger.WithContext(c)
	cache := infra.NewCacheClient(c, cfg.Cache)
	defer func() {
		logger = logger.With().Str(log.KeyProcess, "shutting down cache").Logger()
		logger.Info().Msg("shutting down cache")
		if err := cache.Close(); err != nil {
			err = fmt.Errorf("failed shutting down cache with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		logger.Info().Msg("shutdown cache")
	}()
	logger.Info().Msg("initialized cache")

	logger = logger.With().Str(log.KeyProcess, "initializing pricing").Logger()
	logger.Info().Msg("initializing pricing")
	pricingConfig, err := pricing.FromConfig(cfg.Pricing)
	if err != nil {
		err = fmt.Errorf("failed initializing pricing with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	engine := pricing.NewEngine(pricingConfig)
	logger.Info().Msg("initialized pricing")

	logger = logger.With().Str(log.KeyProcess, "initializing cart service").Logger()
	logger.Info().Msg("initializing cart service")
	registry := prometheus.DefaultRegisterer
	cartMetrics := metrics.NewCartMetrics(registry)
	cartService := service.NewCartService(
		store.NewCartStore(cache, cfg.Cart.TTL),
		catalog.NewClient(cfg.Catalog, pricingConfig.Currency),
		keylock.New(),
		engine,
		cartMetrics,
	)
	orchestrator := checkout.NewOrchestrator(
		auth.ContextAuthenticator{},
		cartService,
		client.NewOrderClient(cfg.OrderService),
		engine,
		cartMetrics,
	)
	logger.Info().Msg("initialized cart service")

	logger = logger.With().Str(log.KeyProcess, "initializing router").Logger()
	logger.Info().Msg("initializing router")
	tokens := auth.NewTokenService(cfg.Auth.SecretKey, cfg.Auth.Issuer, constants.AudienceStorefront, cfg.Auth.TokenTTL)
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler())
	router.Use(
		otelmux.Middleware(constants.AppCartService),
		middleware.RecoverPanic,
		middleware.Logging,
		metrics.NewServerMetrics(registry, constants.AppCartService).Middleware,
		middleware.Authenticate(tokens),
	)
	controller.AttachCartController(router, cartService, orchestrator, pricingConfig.Locale)
	logger.Info().Msg("initialized router")

	logger = logger.With().Str(log.KeyProcess, "initializing server").Logger()
	logger.Info().Msg("initializing server")
	httpServer := http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Application.Host, cfg.Application.Port),
		BaseContext: func(net.Listener) context.Context {
			lg := logger.With().
				Reset().
				Timestamp().
				Caller().
				Stack().
				Str(log.KeyAppName, constants.AppCartService).
				Logger()
			return lg.WithContext(c)
		},
		Handler:      router,
		ReadTimeout:  45 * time.Second,
		WriteTimeout: 45 * time.Second,
	}
	logger.Info().Msg("initialized server")

	go infra.Serve(&httpServer, logger)

	<-c.Done()
	logger = logger.With().Str(log.KeyProcess, "shutdown server").Logger()
	logger.Info().Msg("received interuption signal shutting down")
	infra.Shutdown(c, &httpServer, logger)
}
