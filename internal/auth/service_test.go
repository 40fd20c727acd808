package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeUserStore struct {
	names map[string]string
	err   error
	calls int
}

func (f *fakeUserStore) DisplayName(_ context.Context, userID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	name, ok := f.names[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	return name, nil
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func upgradeRequest(query string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/ws?"+query, nil)
}

func TestResolveWithoutToken(t *testing.T) {
	svc := NewService(nil, testSecret)

	id, err := svc.Resolve(upgradeRequest("userName=Ada"))
	require.NoError(t, err)
	assert.Equal(t, Identity{DisplayName: "Ada"}, id)

	id, err = svc.Resolve(upgradeRequest(""))
	require.NoError(t, err)
	assert.Empty(t, id.DisplayName)
}

func TestResolveIgnoresTokenWhenDisabled(t *testing.T) {
	svc := NewService(nil, "")

	id, err := svc.Resolve(upgradeRequest("token=garbage&userName=Ada"))
	require.NoError(t, err)
	assert.Equal(t, "Ada", id.DisplayName)
	assert.Empty(t, id.UserID)
}

func TestResolveUsesNameClaim(t *testing.T) {
	store := &fakeUserStore{names: map[string]string{"user_1": "From DB"}}
	svc := NewService(store, testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "user_1",
		"name": "From Token",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	id, err := svc.Resolve(upgradeRequest("token=" + token + "&userName=Query"))
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user_1", DisplayName: "From Token"}, id)
	assert.Zero(t, store.calls)
}

func TestResolveFallsBackToStore(t *testing.T) {
	store := &fakeUserStore{names: map[string]string{"user_1": "From DB"}}
	svc := NewService(store, testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "user_1"})

	id, err := svc.Resolve(upgradeRequest("token=" + token))
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user_1", DisplayName: "From DB"}, id)
}

func TestResolveUnknownUserKeepsQueryName(t *testing.T) {
	svc := NewService(&fakeUserStore{}, testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "user_404"})

	id, err := svc.Resolve(upgradeRequest("token=" + token + "&userName=Query"))
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user_404", DisplayName: "Query"}, id)
}

func TestResolveStoreError(t *testing.T) {
	svc := NewService(&fakeUserStore{err: errors.New("connection refused")}, testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "user_1"})

	_, err := svc.Resolve(upgradeRequest("token=" + token))
	assert.ErrorContains(t, err, "lookup display name")
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewService(nil, testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not.a.jwt"},
		{name: "wrong secret", token: signToken(t, "other-secret", jwt.MapClaims{"sub": "user_1"})},
		{name: "expired", token: signToken(t, testSecret, jwt.MapClaims{
			"sub": "user_1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{name: "missing subject", token: signToken(t, testSecret, jwt.MapClaims{"name": "Ada"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	svc := NewService(nil, testSecret)
	var seenUser string
	h := svc.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "user_9"}), status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Equal(t, "user_9", seenUser)
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	svc := NewService(nil, "")
	h := svc.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
