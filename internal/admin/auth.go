// Package admin handles the admin password check and session cookie.
package admin

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joseph-ayodele/bill-extractor/internal/common"
)

const CookieName = "bill_extractor_admin_session"

var ErrInvalidSession = fmt.Errorf("invalid admin session: %w", common.ErrUnauthorized)

// PasswordSource returns the stored admin password ("" when unset).
type PasswordSource interface {
	AdminPassword(ctx context.Context) (string, error)
}

type Auth struct {
	passwords PasswordSource
	key       []byte
	maxAge    time.Duration
	secure    bool
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Auth)

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) Option { return func(a *Auth) { a.secure = secure } }

func WithClock(now func() time.Time) Option { return func(a *Auth) { a.now = now } }

func New(passwords PasswordSource, secretKey string, maxAge time.Duration, logger *slog.Logger, opts ...Option) *Auth {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	a := &Auth{
		passwords: passwords,
		key:       []byte(secretKey),
		maxAge:    maxAge,
		now:       time.Now,
		logger:    logger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// VerifyPassword compares password with the stored one. An unset stored
// password never matches.
func (a *Auth) VerifyPassword(ctx context.Context, password string) bool {
	stored, err := a.passwords.AdminPassword(ctx)
	if err != nil {
		a.logger.Error("admin.password_lookup_failed", "error", err)
		return false
	}
	if stored == "" {
		a.logger.Warn("admin.password_not_set")
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1
}

type sessionClaims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// SessionCookie issues a signed session cookie.
func (a *Auth) SessionCookie() (*http.Cookie, error) {
	now := a.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Admin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.maxAge)),
		},
	})
	signed, err := token.SignedString(a.key)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(a.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// VerifyToken checks the signature, expiry and admin claim of a session token.
func (a *Auth) VerifyToken(token string) error {
	if token == "" {
		return ErrInvalidSession
	}
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || !claims.Admin {
		return ErrInvalidSession
	}
	return nil
}

// VerifyRequest reports whether r carries a valid session cookie.
func (a *Auth) VerifyRequest(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return a.VerifyToken(c.Value) == nil
}

// ClearCookie expires the session cookie.
func (a *Auth) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
