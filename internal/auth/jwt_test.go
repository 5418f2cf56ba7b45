package auth

import (
	"errors"
	"testing"
	"time"

	"callcenter/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

func newManager(t *testing.T, cfg config.AuthConfig) *Manager {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "secret"
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = time.Minute
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newManager(t, config.AuthConfig{
		JWTIssuer:      "issuer",
		JWTAudience:    "aud",
		AccessTokenTTL: 15 * time.Minute,
	})

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.IssueAccess(now, 7, "employee")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(tok, TokenTypeAccess, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != 7 || claims.Role != "employee" || claims.Subject != "7" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if claims.TokenType != TokenTypeAccess {
		t.Fatalf("unexpected token type %q", claims.TokenType)
	}

	if _, err := m.Verify(tok, TokenTypeAccess, now.Add(16*time.Minute)); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m := newManager(t, config.AuthConfig{})
	// A portal refresh token presented as an access token.
	now := time.Now()
	refresh, err := m.sign(m.claims(now, TokenTypeRefresh, 1, "", time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(refresh, TokenTypeAccess, now); !errors.Is(err, ErrTokenType) {
		t.Fatalf("expected token_type mismatch, got %v", err)
	}
}

func TestVerifyRejectsForeignIssuerAndSecret(t *testing.T) {
	now := time.Now()
	ours := newManager(t, config.AuthConfig{JWTIssuer: "portal"})
	other := newManager(t, config.AuthConfig{JWTIssuer: "elsewhere"})
	tok, _ := other.IssueAccess(now, 1, "admin")
	if _, err := ours.Verify(tok, TokenTypeAccess, now); !errors.Is(err, jwt.ErrTokenInvalidIssuer) {
		t.Fatalf("expected invalid issuer, got %v", err)
	}

	forged := newManager(t, config.AuthConfig{JWTSecret: "other", JWTIssuer: "portal"})
	tok, _ = forged.IssueAccess(now, 1, "admin")
	if _, err := ours.Verify(tok, TokenTypeAccess, now); !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestVerifyRejectsMissingUser(t *testing.T) {
	m := newManager(t, config.AuthConfig{})
	if _, err := m.IssueAccess(time.Now(), 0, "admin"); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected issue to refuse user 0, got %v", err)
	}
	if _, err := m.IssueAccess(time.Now(), 1, ""); !errors.Is(err, ErrMissingRole) {
		t.Fatalf("expected issue to refuse empty role, got %v", err)
	}

	// A token minted elsewhere without a user id.
	now := time.Now()
	tok, err := m.sign(m.claims(now, TokenTypeAccess, 0, "admin", time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(tok, TokenTypeAccess, now); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected user_id missing, got %v", err)
	}
}
