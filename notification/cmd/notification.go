package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
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
	"github.com/Alturino/foodorder/notification/internal/hub"
	"github.com/Alturino/foodorder/notification/internal/listener"
)

func RunNotificationService(c context.Context) {
	c, span := otel.Tracer.Start(c, "RunNotificationService")
	defer span.End()

	cfg := config.Get(c, constants.AppNotificationService)

	logger := log.Get(cfg.Application.LogFile, cfg.Application.Env).
		With().
		Str(log.KeyAppName, constants.AppNotificationService).
		Str(log.KeyTag, "main RunNotificationService").
		Logger()

	logger = logger.With().Str(log.KeyProcess, "initializing otel sdk").Logger()
	logger.Info().Msg("initializing otel sdk")
	c = logger.WithContext(c)
	shutdownFuncs, err := otel.InitOtelSdk(c, constants.AppNotificationService, cfg.Otel)
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
			return
		}
		logger.Info().Msg("shutdown otel")
	}()
	logger.Info().Msg("initialized otel sdk")

	logger = logger.With().Str(log.KeyProcess, "initializing cache").Logger()
	logger.Info().Msg("initializing cache")
	c = logger.WithContext(c)
	redisClient := infra.NewCacheClient(c, cfg.Cache)
	defer func() {
		if err := redisClient.Close(); err != nil {
			err = fmt.Errorf("failed closing cache with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
		}
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

	logger = logger.With().Str(log.KeyProcess, "starting listener").Logger()
	logger.Info().Msg("starting listener")
	dashboards := hub.New(hub.DefaultKeepAlive)
	statusListener := listener.NewStatusListener(eventBroker, topic, dashboards)
	messages, err := statusListener.Subscribe(c)
	if err != nil {
		err = fmt.Errorf("failed starting listener with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go statusListener.Start(c, &wg, messages)
	defer wg.Wait()
	logger.Info().Msg("started listener")

	logger = logger.With().Str(log.KeyProcess, "initializing router").Logger()
	logger.Info().Msg("initializing router")
	registry := prometheus.DefaultRegisterer
	tokens := auth.NewTokenService(cfg.Auth.SecretKey, cfg.Auth.Issuer, constants.AudienceStorefront, cfg.Auth.TokenTTL)
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler())
	router.Use(
		otelmux.Middleware(constants.AppNotificationService),
		middleware.RecoverPanic,
		middleware.Logging,
		metrics.NewServerMetrics(registry, constants.AppNotificationService).Middleware,
		middleware.Authenticate(tokens),
	)
	hub.AttachHub(router, dashboards)
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
				Str(log.KeyAppName, constants.AppNotificationService).
				Logger()
			return lg.WithContext(c)
		},
		Handler:     router,
		ReadTimeout: 45 * time.Second,
		// event streams stay open, so no write timeout
	}
	logger.Info().Msg("initialized server")

	go infra.Serve(&server, logger)

	<-c.Done()
	logger = logger.With().Str(log.KeyProcess, "shutdown server").Logger()
	logger.Info().Msg("received interuption signal shutting down")
	infra.Shutdown(c, &server, logger)
}
