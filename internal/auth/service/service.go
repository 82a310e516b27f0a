// Package service implements operator authentication. The board is a
// single-operator internal tool: credentials live in configuration, not a
// user table.
package service

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"serenata_backend/platform/apperr"
	"serenata_backend/platform/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Service authenticates the operator and issues access tokens.
type Service struct {
	cfg config.AuthConfig
}

// New creates a new auth service.
func New(cfg config.AuthConfig) *Service {
	return &Service{cfg: cfg}
}

// Login verifies the operator credentials and returns a signed access token
// with its expiry. The same generic error covers wrong email and wrong
// password.
func (s *Service) Login(_ context.Context, email, password string) (string, time.Time, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	expected := strings.ToLower(s.cfg.GetOperatorEmail())
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(expected)) == 1

	// Always run the bcrypt comparison so timing does not reveal whether
	// the email matched.
	passErr := bcrypt.CompareHashAndPassword([]byte(s.cfg.GetOperatorPasswordHash()), []byte(password))

	if !emailOK || passErr != nil {
		return "", time.Time{}, apperr.Unauthorized("invalid credentials")
	}

	expiresAt := time.Now().Add(s.cfg.GetAccessTokenTTL())
	claims := jwt.MapClaims{
		"sub": email,
		"exp": expiresAt.Unix(),
		"iat": time.Now().Unix(),
	}

	tokenObj := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tokenObj.SignedString([]byte(s.cfg.GetJWTAccessSecret()))
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.KindInternal, "token signing failed", err)
	}

	return signed, expiresAt, nil
}
