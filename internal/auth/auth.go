package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	inErrors "github.com/Alturino/foodorder/internal/errors"
	"github.com/Alturino/foodorder/internal/log"
	"github.com/Alturino/foodorder/internal/otel"
)

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleStaff    Role = "STAFF"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

type Session struct {
	UserID uuid.UUID
	Role   Role
}

// IsStaff reports whether the session may drive order statuses.
func (s Session) IsStaff() bool {
	return s.Role == RoleStaff || s.Role == RoleAdmin
}

// Authenticator answers "is this caller authenticated" for the current request.
type Authenticator interface {
	Authenticate(c context.Context) (Session, error)
}

type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// TokenService issues and verifies HS256 bearer tokens.
type TokenService struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewTokenService(secret string, issuer string, audience string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *TokenService) Issue(c context.Context, userID uuid.UUID, role Role) (string, error) {
	c, span := otel.Tracer.Start(c, "TokenService Issue")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "TokenService Issue").
		Str(log.KeyUserID, userID.String()).
		Str(log.KeyRole, string(role)).
		Logger()

	if !role.IsValid() {
		err := fmt.Errorf("failed issuing token with error=%w", inErrors.ValidationFailed("role"))
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return "", err
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Role: role,
	}

	logger.Trace().Msg("signing token")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		err = fmt.Errorf("failed signing token with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return "", err
	}
	logger.Trace().Msg("signed token")

	return token, nil
}

func (s *TokenService) Verify(c context.Context, token string) (Session, error) {
	c, span := otel.Tracer.Start(c, "TokenService Verify")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "TokenService Verify").
		Str(log.KeyProcess, "parsing claims").
		Logger()

	logger.Trace().Msg("parsing claims")
	claims := Claims{}
	_, err := jwt.ParseWithClaims(token,
		&claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithAudience(s.audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		err = fmt.Errorf(
			"failed parsing claims with error=%w",
			inErrors.Wrap(inErrors.CodeAuthenticationRequired, err, "invalid token"),
		)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Session{}, err
	}
	logger.Trace().Msg("parsed claims")

	logger = logger.With().Str(log.KeyProcess, "parsing subject").Logger()
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		err = fmt.Errorf(
			"failed parsing subject=%s with error=%w",
			claims.Subject,
			inErrors.Wrap(inErrors.CodeAuthenticationRequired, err, "invalid subject"),
		)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Session{}, err
	}
	if !claims.Role.IsValid() {
		err = fmt.Errorf(
			"failed validating role=%s with error=%w",
			claims.Role,
			inErrors.New(inErrors.CodeAuthenticationRequired, "invalid role"),
		)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Session{}, err
	}

	logger.Trace().Str(log.KeyUserID, userID.String()).Msg("verified token")
	return Session{UserID: userID, Role: claims.Role}, nil
}
