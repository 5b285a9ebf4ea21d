package http

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

type mockDirectory struct {
	users map[string]*entity.User
	err   error
}

func (m *mockDirectory) GetByID(_ context.Context, id string) (*entity.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user", id)
}

func (m *mockDirectory) Save(context.Context, *entity.User) error { return m.err }

func newAuthenticator(now time.Time) *TokenAuthenticator {
	a := NewTokenAuthenticator("s3cret", "expense-approval", &mockDirectory{
		users: map[string]*entity.User{"emp": employee},
	})
	a.now = func() time.Time { return now }
	return a
}

func TestTokenAuthenticator_IssueAndAuthenticate(t *testing.T) {
	a := newAuthenticator(stamp)

	token, err := a.Issue("emp", time.Hour)
	require.NoError(t, err)

	user, err := a.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, employee, user)
}

func TestTokenAuthenticator_Rejects(t *testing.T) {
	a := newAuthenticator(stamp)

	sign := func(method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{
		Subject:   "emp",
		Issuer:    "expense-approval",
		ExpiresAt: jwt.NewNumericDate(stamp.Add(time.Hour)),
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(stamp.Add(-time.Minute))
	noExpiry := valid
	noExpiry.ExpiresAt = nil
	otherIssuer := valid
	otherIssuer.Issuer = "someone-else"
	noSubject := valid
	noSubject.Subject = ""
	stranger := valid
	stranger.Subject = "ghost"

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("other"), valid)},
		{"wrong algorithm", sign(jwt.SigningMethodHS512, []byte("s3cret"), valid)},
		{"expired", sign(jwt.SigningMethodHS256, []byte("s3cret"), expired)},
		{"no expiry", sign(jwt.SigningMethodHS256, []byte("s3cret"), noExpiry)},
		{"other issuer", sign(jwt.SigningMethodHS256, []byte("s3cret"), otherIssuer)},
		{"no subject", sign(jwt.SigningMethodHS256, []byte("s3cret"), noSubject)},
		{"unknown user", sign(jwt.SigningMethodHS256, []byte("s3cret"), stranger)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := a.Authenticate(context.Background(), tt.token)
			assert.Nil(t, user)
			assert.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestTokenAuthenticator_DirectoryFailure(t *testing.T) {
	boom := errors.New("db down")
	a := NewTokenAuthenticator("s3cret", "", &mockDirectory{err: boom})
	a.now = func() time.Time { return stamp }

	token, err := a.Issue("emp", time.Hour)
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}
