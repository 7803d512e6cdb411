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

	"github.com/Alturino/foodorder/internal/auth"
	"github.com/Alturino/foodorder/internal/config"
	"github.com/Alturino/foodorder/internal/constants"
	"github.com/Alturino/foodorder/internal/infra"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/metrics"
	"github.com/Alturino/foodorder/internal/middleware"
	"github.com/Alturino/foodorder/internal/otel"
	"github.com/Alturino/foodorder/internal/pricing"
	"github.com/Alturino/foodorder/order/internal/cache"
	"github.com/Alturino/foodorder/order/internal/controller"
	"github.com/Alturino/foodorder/order/internal/repository"
	"github.com/Alturino/foodorder/order/internal/service"
	"github.com/Alturino/foodorder/order/pkg/domain"
)

func RunOrderService(c context.Context) {
	c, span := otel.Tracer.Start(c, "RunOrderService")
	defer span.End()

	cfg := config.Get(c, constants.AppOrderService)

	logger := log.Get(cfg.Application.LogFile, cfg.Application.Env).
		With().
		Str(log.KeyAppName, constants.AppOrderService).
		Str(log.KeyTag, "main RunOrderService").
		Logger()

	logger = logger.With().Str(log.KeyProcess, "initializing otel sdk").Logger()
	logger.Info().Msg("initializing otel sdk")
	c = logger.WithContext(c)
	shutdownFuncs, err := otel.InitOtelSdk(c, constants.AppOrderService, cfg.Otel)
	if err != nil {
		err = fmt.Errorf("failed initializing otel sdk with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	defer func() {
		logger.Info().Msg("shutting down otel")
		if err := otel.ShutdownOtel(context.WithoutCancel(c), shutdownFuncs); err != nil {
			err = fmt.Errorf("failed shutting down otel with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
		}
		logger.Info().Msg("shutdown otel")
	}()
	logger.Info().Msg("initialized otel sdk")

	logger = logger.With().Str(log.KeyProcess, "initializing order store").Logger()
	logger.Info().Msg("initializing order store")
	var store repository.Store
	switch cfg.Order.Store {
	case repository.KindMemory:
		store = repository.NewMemoryStore()
	case repository.KindPostgres:
		c = logger.WithContext(c)
		db := infra.NewDatabaseClient(c, cfg.Database)
		defer func() {
			logger = logger.With().Str(log.KeyProcess, "closing database").Logger()
			logger.Info().Msg("closing database")
			db.Close()
			logger.Info().Msg("closed database")
		}()
		if cfg.Database.MigrationPath != "" {
			if err := infra.Migrate(c, db, cfg.Database.MigrationPath); err != nil {
				err = fmt.Errorf("failed migrating database with error=%w", err)
				otel.RecordError(err, span)
				logger.Error().Err(err).Msg(err.Error())
				return
			}
		}
		store = repository.NewPostgresStore(db)
	default:
		err = fmt.Errorf("unknown order store=%s", cfg.Order.Store)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger.Info().Str("store", cfg.Order.Store).Msg("initialized order store")

	logger = logger.With().Str(log.KeyProcess, "initializing cache").Logger()
	logger.Info().Msg("initializing cache")
	c = logger.WithContext(c)
	redisClient := infra.NewCacheClient(c, cfg.Cache)
	defer func() {
		logger = logger.With().Str(log.KeyProcess, "closing cache").Logger()
		logger.Info().Msg("closing cache")
		if err := redisClient.Close(); err != nil {
			err = fmt.Errorf("failed closing cache with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		logger.Info().Msg("closed cache")
	}()
	logger.Info().Msg("initialized cache")

	logger = logger.With().Str(log.KeyProcess, "initializing broker").Logger()
	logger.Info().Msg("initializing broker")
	eventBroker, topic, err := infra.NewBroker(c, cfg.Broker, redisClient)
	if err != nil {
		err = fmt.Errorf("failed initializing broker with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	defer func() {
		if err := eventBroker.Close(); err != nil {
			err = fmt.Errorf("failed closing broker with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
		}
	}()
	logger.Info().Str(log.KeyBroker, topic).Msg("initialized broker")

	logger = logger.With().Str(log.KeyProcess, "initializing order service").Logger()
	logger.Info().Msg("initializing order service")
	policy, err := domain.PolicyByName(cfg.Order.TransitionPolicy)
	if err != nil {
		err = fmt.Errorf("failed initializing transition policy with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	pricingConfig, err := pricing.FromConfig(cfg.Pricing)
	if err != nil {
		err = fmt.Errorf("failed initializing pricing with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	registry := prometheus.DefaultRegisterer
	orderMetrics := metrics.NewOrderMetrics(registry)
	orderCache := cache.NewOrderCache(redisClient, cfg.Order.CacheTTL)
	orderService := service.NewOrderService(
		store,
		orderCache,
		policy,
		pricing.NewEngine(pricingConfig),
		time.Duration(cfg.Pricing.EstimatedDeliveryMinutes)*time.Minute,
		orderMetrics,
		service.CacheInvalidator(orderCache),
		service.NewEventPublisher(eventBroker, topic),
		service.TransitionCounter(orderMetrics),
	)
	logger.Info().Str("policy", policy.Name()).Msg("initialized order service")

	logger = logger.With().Str(log.KeyProcess, "initializing router").Logger()
	logger.Info().Msg("initializing router")
	tokens := auth.NewTokenService(cfg.Auth.SecretKey, cfg.Auth.Issuer, constants.AudienceStorefront, cfg.Auth.TokenTTL)
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler())
	router.Use(
		otelmux.Middleware(constants.AppOrderService),
		middleware.RecoverPanic,
		middleware.Logging,
		metrics.NewServerMetrics(registry, constants.AppOrderService).Middleware,
		middleware.Authenticate(tokens),
	)
	controller.AttachOrderController(router, orderService, pricingConfig.Locale)
	logger.Info().Msg("initialized router")

	logger = logger.With().Str(log.KeyProcess, "initializing server").Logger()
	logger.Info().Msg("initializing server")
	server := http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Application.Host, cfg.Application.Port),
		BaseContext: func(net.Listener) context.Context {
			lg := logger.With().
				Reset().
				Timestamp().
				Caller().
				Stack().
				Str(log.KeyAppName, constants.AppOrderService).
				Logger()
			return lg.WithContext(c)
		},
		Handler:      router,
		ReadTimeout:  45 * time.Second,
		WriteTimeout: 45 * time.Second,
	}
	logger.Info().Msg("initialized server")

	go infra.Serve(&server, logger)

	<-c.Done()
	logger = logger.With().Str(log.KeyProcess, "shutdown server").Logger()
	logger.Info().Msg("received interuption signal shutting down")
	infra.Shutdown(c, &server, logger)
}
