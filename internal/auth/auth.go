// SPDX-License-Identifier: MIT

// Package auth supplies the login-hash oracle used during authentication.
//
// The firmware derives the UserLogin LoginFlag from the login nonce, user
// name and password with a routine that never shipped outside the vendor
// SDK. That routine stays behind the Oracle interface: deployments provide
// it as an external helper binary, tests inject a stub.
package auth

import (
	"context"
	"errors"
)

// ErrUnavailable means no hash can be produced. Login treats it as fatal:
// there is no anonymous fallback on these devices.
var ErrUnavailable = errors.New("auth: login hash unavailable")

// Oracle produces the LoginFlag hash for a login attempt.
type Oracle interface {
	LoginHash(ctx context.Context, nonce, username, password string) (string, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, nonce, username, password string) (string, error)

// LoginHash implements Oracle.
func (f OracleFunc) LoginHash(ctx context.Context, nonce, username, password string) (string, error) {
	return f(ctx, nonce, username, password)
}
