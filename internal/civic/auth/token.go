package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// RoleAdmin is the role claim value that grants access to the admin console
	RoleAdmin = "admin"
)

var (
	// ErrNoToken is returned when an authenticated call is attempted without a token
	ErrNoToken = errors.New("not signed in: no bearer token configured")
	// ErrNotAdmin is returned when the token does not carry the admin role
	ErrNotAdmin = errors.New("admin role required")
)

// TokenSource provides the viewer's bearer token
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a token obtained from the identity provider out of band
type StaticToken string

// Token implements TokenSource
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// FileToken reads the token from a file on every call, so a refreshed token
// is picked up without restarting
type FileToken struct {
	Path string
}

// Token implements TokenSource
func (f FileToken) Token(context.Context) (string, error) {
	if f.Path == "" {
		return "", ErrNoToken
	}
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("cannot read token file: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Claims are the identity provider session claims the client looks at
type Claims struct {
	Metadata struct {
		Role string `json:"role"`
	} `json:"metadata"`
	jwt.RegisteredClaims
}

// ParseClaims decodes the claims of a session token without verifying its
// signature. The store verifies tokens; the client only uses the claims to
// decide which screens to offer.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("cannot parse session token: %w", err)
	}
	return claims, nil
}

// Role returns the role claim of token, or an empty string
func Role(token string) string {
	claims, err := ParseClaims(token)
	if err != nil {
		return ""
	}
	return claims.Metadata.Role
}

// RequireAdmin fails unless the token carries the admin role
func RequireAdmin(ctx context.Context, source TokenSource) (string, error) {
	token, err := source.Token(ctx)
	if err != nil {
		return "", err
	}
	if Role(token) != RoleAdmin {
		return "", ErrNotAdmin
	}
	return token, nil
}
