package models

// Roles carried in access tokens.
const (
	RoleAdmin    = "admin"
	RoleProvider = "provider"
	RoleClient   = "client"
)

// Account is a login identity.
type Account struct {
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	PasswordHash string  `json:"-"`
	Role         string  `json:"role"`
	ProviderID   *string `json:"provider_id,omitempty"`
}

// LoginRequest is the credentials payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	Role      string `json:"role"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID         string
	Role       string
	ProviderID *string
}

// IsProvider reports whether the actor is the given provider.
func (a Actor) IsProvider(providerID *string) bool {
	return a.Role == RoleProvider && a.ProviderID != nil && providerID != nil && *a.ProviderID == *providerID
}
