package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ErrUnauthenticated is returned when a request carries no valid bearer token
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator resolves a bearer token to the acting user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*entity.User, error)
}

// TokenAuthenticator verifies HS256 tokens whose subject is a user id
type TokenAuthenticator struct {
	secret []byte
	issuer string
	users  port.UserDirectory
	now    func() time.Time
}

// NewTokenAuthenticator creates a new HS256 token authenticator
func NewTokenAuthenticator(secret, issuer string, users port.UserDirectory) *TokenAuthenticator {
	return &TokenAuthenticator{
		secret: []byte(secret),
		issuer: issuer,
		users:  users,
		now:    time.Now,
	}
}

// Issue signs a token for userID valid for ttl
func (a *TokenAuthenticator) Issue(userID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate validates the token and loads its subject
func (a *TokenAuthenticator) Authenticate(ctx context.Context, raw string) (*entity.User, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	user, err := a.users.GetByID(ctx, claims.Subject)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil, fmt.Errorf("%w: unknown user %s", ErrUnauthenticated, claims.Subject)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

var _ Authenticator = (*TokenAuthenticator)(nil)
