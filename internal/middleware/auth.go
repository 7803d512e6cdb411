package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Alturino/foodorder/internal/auth"
	inErrors "github.com/Alturino/foodorder/internal/errors"
	inHttp "github.com/Alturino/foodorder/internal/http"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/otel"
)

type TokenVerifier interface {
	Verify(c context.Context, token string) (auth.Session, error)
}

// Authenticate attaches the session of a valid bearer token to the request context. Requests
// without one pass through untouched; handlers decide whether a session is required.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, span := otel.Tracer.Start(r.Context(), "middleware Authenticate")
			defer span.End()

			logger := zerolog.Ctx(c).With().Str(log.KeyTag, "middleware Authenticate").Logger()

			authorization := r.Header.Get(inHttp.KeyHeaderAuthorization)
			token, found := strings.CutPrefix(authorization, "Bearer ")
			if !found {
				token, found = strings.CutPrefix(authorization, "bearer ")
			}
			if !found || token == "" {
				logger.Trace().Msg("no bearer token")
				next.ServeHTTP(w, r.WithContext(c))
				return
			}

			session, err := verifier.Verify(c, token)
			if err != nil {
				err = fmt.Errorf("failed verifying bearer token with error=%w", err)
				otel.RecordError(err, span)
				logger.Warn().Err(err).Msg(err.Error())
				next.ServeHTTP(w, r.WithContext(c))
				return
			}

			logger = logger.With().
				Str(log.KeyUserID, session.UserID.String()).
				Str(log.KeyRole, string(session.Role)).
				Logger()
			c = auth.AttachSession(c, session)
			c = auth.AttachToken(c, token)
			c = logger.WithContext(c)
			logger.Trace().Msg("attached session to context")

			next.ServeHTTP(w, r.WithContext(c))
		})
	}
}

func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.SessionFromContext(r.Context()); !ok {
			inHttp.WriteError(r.Context(), w, inErrors.ErrAuthenticationRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := auth.SessionFromContext(r.Context())
		if !ok {
			inHttp.WriteError(r.Context(), w, inErrors.ErrAuthenticationRequired)
			return
		}
		if !session.IsStaff() {
			inHttp.WriteError(r.Context(), w, inErrors.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
