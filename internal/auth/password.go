// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for a wrong username or password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrLoginDisabled is returned when no operator password is configured.
var ErrLoginDisabled = errors.New("operator login is not configured")

// bcryptCost for newly hashed passwords.
const bcryptCost = 12

// PasswordAuthenticator verifies the operator login against a bcrypt hash.
type PasswordAuthenticator struct {
	username     string
	passwordHash []byte
}

// NewPasswordAuthenticator creates an authenticator from a stored bcrypt hash.
// An empty hash disables password login.
func NewPasswordAuthenticator(username, passwordHash string) *PasswordAuthenticator {
	return &PasswordAuthenticator{
		username:     username,
		passwordHash: []byte(passwordHash),
	}
}

// Enabled reports whether a password is configured.
func (a *PasswordAuthenticator) Enabled() bool {
	return len(a.passwordHash) > 0
}

// Verify checks username and password. Both comparisons always run.
func (a *PasswordAuthenticator) Verify(username, password string) error {
	if !a.Enabled() {
		return ErrLoginDisabled
	}
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
	if !usernameMatch || !passwordMatch {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
