package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller extracted from the bearer token.
// Tokens are minted by the external identity service; this layer only
// verifies the signature and reads the subject and role claims.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller holds the administrator role.
func (i Identity) IsAdmin() bool { return i.Role == "admin" }

// Claims is the expected token payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type ctxKey int

const identityKey ctxKey = iota

// IdentityFrom returns the caller identity stored by the auth
// middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Auth verifies HS256 bearer tokens and enforces the admin role where
// required.
type Auth struct {
	secret []byte
}

// NewAuth builds the middleware around the shared signing secret.
func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// Middleware authenticates the request and stores the caller Identity
// in the context. Requests without a valid token get 401.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			respondWithError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		identity, err := a.verify(token)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects authenticated callers without the admin role.
// Admin authorization is an explicit precondition of the review
// endpoints, not an assumption about who can reach them.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
			return
		}
		if !identity.IsAdmin() {
			respondWithError(w, http.StatusForbidden, "forbidden", "administrator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) verify(tokenStr string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("invalid claims")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, fmt.Errorf("token missing subject")
	}
	return Identity{UserID: claims.Subject, Role: claims.Role}, nil
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
