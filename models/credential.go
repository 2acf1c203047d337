package models

import "time"

import "github.com/google/uuid"

// Scope is one capability an API credential can be granted (§3).
type Scope string

const (
	ScopeEmailSend          Scope = "email:send"
	ScopeEmailRead          Scope = "email:read"
	ScopeQueueManage        Scope = "queue:manage"
	ScopeSMTPManage         Scope = "smtp:manage"
	ScopeSuppressionManage  Scope = "suppression:manage"
	ScopeAnalyticsRead      Scope = "analytics:read"
	ScopeAdmin              Scope = "admin"
)

// APICredential is a revocable, scoped secret belonging to an app.
type APICredential struct {
	ID           uuid.UUID  `json:"id"`
	AppID        uuid.UUID  `json:"appId"`
	Name         string     `json:"name"`
	Prefix       string     `json:"prefix"`
	SecretHash   string     `json:"-"`
	Scopes       []Scope    `json:"scopes"`
	RateLimit    *int       `json:"rateLimit,omitempty"`
	IPAllowlist  []string   `json:"ipAllowlist,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	Active       bool       `json:"active"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// IsValid reports whether this credential may currently authenticate a
// request (active, not revoked, not expired).
func (c *APICredential) IsValid() bool {
	if !c.Active || c.RevokedAt != nil {
		return false
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(time.Now()) {
		return false
	}
	return true
}

// HasScope reports whether the credential carries scope s, with admin
// implicitly granting every scope (§3 invariant).
func (c *APICredential) HasScope(s Scope) bool {
	for _, have := range c.Scopes {
		if have == ScopeAdmin || have == s {
			return true
		}
	}
	return false
}

// HasAnyScope reports whether the credential satisfies at least one of the
// given scopes.
func (c *APICredential) HasAnyScope(scopes ...Scope) bool {
	for _, s := range scopes {
		if c.HasScope(s) {
			return true
		}
	}
	return len(scopes) == 0
}

// CreateCredentialRequest is the body of POST /apps/{appId}/api-keys.
type CreateCredentialRequest struct {
	Name      string   `json:"name" validate:"required"`
	Scopes    []Scope  `json:"scopes" validate:"required,min=1"`
	RateLimit *int     `json:"rateLimit,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// CreatedCredential is returned exactly once, at creation or rotation: it
// carries the plaintext key alongside the stored metadata.
type CreatedCredential struct {
	APICredential
	Key string `json:"key"`
}
