// Package auth issues and verifies bearer tokens and exposes the caller to handlers.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hyperjump/shopassist/internal/config"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidToken is returned by Parse for a malformed, expired, or foreign token.
	ErrInvalidToken = errors.New("invalid token")
)

// Principal is an authenticated caller.
type Principal struct {
	Email string `json:"email"`
	Admin bool   `json:"admin"`
}

// Authenticator signs and verifies HS256 tokens for configured users.
type Authenticator struct {
	key    []byte
	ttl    time.Duration
	users  map[string]string
	admins map[string]bool
	logger *zap.Logger
}

// New builds an Authenticator from cfg. An empty signing key is replaced by a random one,
// so tokens do not survive a restart.
func New(cfg config.AuthConfig, logger *zap.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	key := []byte(cfg.SigningKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		logger.Warn("no signing key configured, using an ephemeral key")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	a := &Authenticator{
		key:    key,
		ttl:    ttl,
		users:  make(map[string]string, len(cfg.Users)),
		admins: make(map[string]bool, len(cfg.Admins)),
		logger: logger,
	}
	for email, hash := range cfg.Users {
		a.users[normalize(email)] = hash
	}
	for _, email := range cfg.Admins {
		a.admins[normalize(email)] = true
	}
	return a, nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login checks password against the stored bcrypt hash and returns a signed token.
func (a *Authenticator) Login(email, password string) (string, error) {
	hash, ok := a.users[normalize(email)]
	if !ok || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return a.IssueToken(email)
}

// IssueToken signs a token for email without checking a password.
func (a *Authenticator) IssueToken(email string) (string, error) {
	email = normalize(email)
	if email == "" {
		return "", errors.New("email is required")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": email,
		"admin": a.admins[email],
		"exp":   time.Now().Add(a.ttl).Unix(),
	})
	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies tokenString and returns its principal.
func (a *Authenticator) Parse(tokenString string) (*Principal, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("%w: missing email", ErrInvalidToken)
	}
	admin, _ := claims["admin"].(bool)
	return &Principal{Email: email, Admin: admin}, nil
}

// HashPassword returns the bcrypt hash stored in auth.users.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type contextKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the caller stored by the middleware, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok && p != nil
}

// IsAuthenticated reports whether ctx carries a caller.
func IsAuthenticated(ctx context.Context) bool {
	_, ok := FromContext(ctx)
	return ok
}

// IsAdmin reports whether the caller in ctx is an administrator.
func IsAdmin(ctx context.Context) bool {
	p, ok := FromContext(ctx)
	return ok && p.Admin
}
