// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/galdcup/internal/config"
)

// Roles carried in tokens.
const (
	RoleMaster = "master"
	RoleAdmin  = "admin"
	RoleBridge = "bridge"
	RoleViewer = "viewer"
)

// tokenIssuer is written to and required in every token.
const tokenIssuer = "galdcup"

// Claims represents JWT claims
type Claims struct {
	// UserID is the chat user id for admins and the operator login name
	// otherwise.
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager handles JWT token creation and validation
type JWTManager struct {
	secret  []byte
	timeout time.Duration
	now     func() time.Time
	parser  *jwt.Parser
}

// NewJWTManager creates a token manager from the security config. Config
// validation enforces a secret of at least 32 characters; an empty secret is
// still refused here.
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required but was empty")
	}
	m := &JWTManager{
		secret:  []byte(cfg.JWTSecret),
		timeout: cfg.SessionTimeout,
		now:     time.Now,
	}
	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)
	return m, nil
}

// GenerateToken signs an HS256 token for userID with role. The token id is
// a random uuid so audit entries can name the token that was issued.
func (m *JWTManager) GenerateToken(userID, role string) (string, time.Time, error) {
	now := m.now()
	expires := now.Add(m.timeout)
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// ValidateToken verifies signature, algorithm, issuer and validity window
// and returns the claims.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := m.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
