package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUserNotFound = errors.New("user not found")
)

// UserStore looks up display names for authenticated users.
type UserStore interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Identity is the opaque principal attached to a connection. Neither field
// is used for authorization.
type Identity struct {
	UserID      string
	DisplayName string
}

type Claims struct {
	Subject string
	Name    string
}

type Service struct {
	store     UserStore
	jwtSecret []byte
}

// NewService builds an identity service. store may be nil, and an empty
// jwtSecret disables token validation entirely.
func NewService(store UserStore, jwtSecret string) *Service {
	return &Service{
		store:     store,
		jwtSecret: []byte(jwtSecret),
	}
}

func (s *Service) TokensEnabled() bool {
	return len(s.jwtSecret) > 0
}

// Resolve derives the connection identity from the upgrade request's query
// string: an optional `token` and a fallback `userName`.
func (s *Service) Resolve(r *http.Request) (Identity, error) {
	q := r.URL.Query()
	id := Identity{DisplayName: q.Get("userName")}

	token := q.Get("token")
	if token == "" || !s.TokensEnabled() {
		return id, nil
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		return Identity{}, err
	}
	id.UserID = claims.Subject

	if claims.Name != "" {
		id.DisplayName = claims.Name
		return id, nil
	}
	if s.store == nil {
		return id, nil
	}

	name, err := s.store.DisplayName(r.Context(), claims.Subject)
	switch {
	case err == nil:
		id.DisplayName = name
	case errors.Is(err, ErrUserNotFound):
	default:
		return Identity{}, fmt.Errorf("lookup display name: %w", err)
	}
	return id, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, ok := mapClaims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	name, _ := mapClaims["name"].(string)

	return &Claims{Subject: sub, Name: name}, nil
}
