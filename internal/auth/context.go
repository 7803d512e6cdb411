package auth

import (
	"context"

	inErrors "github.com/Alturino/foodorder/internal/errors"
)

type sessionKey struct{}

type tokenKey struct{}

func AttachSession(c context.Context, session Session) context.Context {
	return context.WithValue(c, sessionKey{}, session)
}

func SessionFromContext(c context.Context) (Session, bool) {
	session, ok := c.Value(sessionKey{}).(Session)
	return session, ok
}

// AttachToken keeps the raw bearer token so outgoing calls can forward it.
func AttachToken(c context.Context, token string) context.Context {
	return context.WithValue(c, tokenKey{}, token)
}

func TokenFromContext(c context.Context) string {
	token, _ := c.Value(tokenKey{}).(string)
	return token
}

// ContextAuthenticator reads the session the auth middleware put in the request context.
type ContextAuthenticator struct{}

func (ContextAuthenticator) Authenticate(c context.Context) (Session, error) {
	session, ok := SessionFromContext(c)
	if !ok {
		return Session{}, inErrors.ErrAuthenticationRequired
	}
	return session, nil
}
