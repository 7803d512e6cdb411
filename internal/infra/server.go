package infra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alturino/foodorder/internal/log"
)

const shutdownTimeout = 10 * time.Second

func Serve(server *http.Server, logger zerolog.Logger) {
	logger = logger.With().Str(log.KeyProcess, "start server").Logger()
	logger.Info().Msgf("start listening request at %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		err = fmt.Errorf("error=%w occured while server is running", err)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger.Info().Msg("shutdown server")
}

// Shutdown drains the server. c is usually already cancelled by the signal, so the deadline is
// derived from a detached copy.
func Shutdown(c context.Context, server *http.Server, logger zerolog.Logger) {
	logger = logger.With().Str(log.KeyProcess, "shutting down http server").Logger()
	logger.Info().Msg("shutting down http server")
	c, cancel := context.WithTimeout(context.WithoutCancel(c), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(c); err != nil {
		err = fmt.Errorf("failed shutting down http server with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger.Info().Msg("shutdown http server")
}
