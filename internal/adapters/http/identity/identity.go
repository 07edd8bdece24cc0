// Package identity resolves the user behind an HTTP request.
//
// With a secret configured, callers are identified by an HMAC signed bearer
// token whose "sub" claim is the user id. Without one, the X-User-ID header
// is trusted as is, which is only suitable for local development.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/okian/questrank/pkg/logger"
)

// HeaderUserID carries the caller in development mode.
const HeaderUserID = "X-User-ID"

type ctxKey struct{}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the caller resolved by the middleware, or "" for an
// anonymous request.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Authenticator verifies request credentials.
type Authenticator struct {
	secret []byte
	log    logger.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLogger sets the logger used for rejected tokens.
func WithLogger(l logger.Logger) Option {
	return func(a *Authenticator) {
		if l != nil {
			a.log = l
		}
	}
}

// New returns an Authenticator. An empty secret enables header trust.
func New(secret string, opts ...Option) *Authenticator {
	a := &Authenticator{secret: []byte(secret), log: logger.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Verifying reports whether bearer tokens are checked.
func (a *Authenticator) Verifying() bool { return len(a.secret) > 0 }

// Authenticate returns the caller of r. No credentials yields "" and no error.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	if !a.Verifying() {
		return strings.TrimSpace(r.Header.Get(HeaderUserID)), nil
	}
	raw, ok := bearer(r.Header.Get("Authorization"))
	if !ok {
		return "", nil
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}

// Middleware stores the caller in the request context and rejects bad
// tokens with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.Authenticate(r)
		if err != nil {
			a.log.Debug(r.Context(), "rejected credentials", logger.Error(err))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    "unauthorized",
				"message": err.Error(),
			})
			return
		}
		if userID != "" {
			r = r.WithContext(WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// Sign issues an HS256 token for userID valid for ttl. It is used by the
// seeding tool and tests.
func Sign(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func bearer(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
