// Package auth issues and verifies the tokens that gate the HTTP API.
// The configured admin may start and stop tracking; viewers only receive
// queue updates.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gfnviewer/queuewatch/internal/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownUser  = errors.New("unknown user")
	ErrDisabled     = errors.New("authentication disabled")
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// LocalUser is the identity granted to every caller when no secret is set.
const LocalUser = "local"

const issuer = "queuewatch"

type Identity struct {
	User string `json:"user"`
	Role Role   `json:"role"`
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret  []byte
	admin   string
	viewers []string
	ttl     time.Duration
	now     func() time.Time
}

func New(cfg config.AuthConfig) *Authenticator {
	viewers := make([]string, 0, len(cfg.Viewers))
	for _, v := range cfg.Viewers {
		if v = strings.TrimSpace(v); v != "" {
			viewers = append(viewers, v)
		}
	}
	return &Authenticator{
		secret:  []byte(cfg.Secret),
		admin:   strings.TrimSpace(cfg.Admin),
		viewers: viewers,
		ttl:     cfg.TokenTTL,
		now:     time.Now,
	}
}

func (a *Authenticator) Enabled() bool { return len(a.secret) > 0 }

// Role returns the role user currently holds.
func (a *Authenticator) Role(user string) (Role, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return "", ErrUnknownUser
	}
	if a.admin != "" && strings.EqualFold(user, a.admin) {
		return RoleAdmin, nil
	}
	for _, v := range a.viewers {
		if strings.EqualFold(user, v) {
			return RoleViewer, nil
		}
	}
	return "", ErrUnknownUser
}

// Issue signs a token for a configured user.
func (a *Authenticator) Issue(user string) (string, Identity, error) {
	if !a.Enabled() {
		return "", Identity{}, ErrDisabled
	}
	role, err := a.Role(user)
	if err != nil {
		return "", Identity{}, fmt.Errorf("%w: %s", err, user)
	}

	now := a.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  strings.TrimSpace(user),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if a.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(a.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", Identity{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, Identity{User: claims.Subject, Role: role}, nil
}

// Verify checks the token signature and that its subject still holds the
// role it was issued with. Users removed from the config lose access even
// with an unexpired token.
func (a *Authenticator) Verify(tokenString string) (Identity, error) {
	if !a.Enabled() {
		return Identity{User: LocalUser, Role: RoleAdmin}, nil
	}
	if tokenString == "" {
		return Identity{}, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	role, err := a.Role(claims.Subject)
	if err != nil {
		return Identity{}, err
	}
	if role != claims.Role {
		return Identity{}, fmt.Errorf("%w: role changed for %s", ErrInvalidToken, claims.Subject)
	}
	return Identity{User: claims.Subject, Role: role}, nil
}
