// Package transport defines the auth HTTP request and response shapes.
package transport

import "time"

// LoginRequest is the operator login body.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=200"`
}

// LoginResponse carries the signed access token.
type LoginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
