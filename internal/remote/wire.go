package remote

import (
	"time"

	"github.com/wesm/mailsaver/internal/model"
)

// Wire types shared by the client and the development server.

// CredentialsRequest is the body of register and login calls.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	UserID    *string    `json:"user_id"`
	Token     *string    `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateResponse is returned by item creation. ID is the storage key.
type CreateResponse struct {
	ID *string `json:"id"`
}

// ItemsResponse carries a list of items.
type ItemsResponse struct {
	Items *[]*model.Item `json:"items"`
}

// CountResponse carries a count.
type CountResponse struct {
	Count *int `json:"count"`
}

// DeleteResponse carries the delete status.
type DeleteResponse struct {
	Status *string `json:"status"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Error codes with client-visible meaning.
const (
	CodeEmailTaken         = "email_taken"
	CodeInvalidCredentials = "invalid_credentials"
	CodeUnauthorized       = "unauthorized"
	CodeNotFound           = "not_found"
)
