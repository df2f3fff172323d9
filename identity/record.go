package identity

import (
	"time"
)

// State is the derived lifecycle state of a Record.
type State int

const (
	// StateUnauthorized: placeholder created at login, provider tokens not yet saved.
	StateUnauthorized State = iota
	// StateValid: provider access token usable until ExpiresAt.
	StateValid
	// StateExpired: provider access token must be refreshed before use.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateUnauthorized:
		return "unauthorized"
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Record is one end-user's link to the provider. It is created empty when a
// login starts and filled when the provider returns tokens. AccessToken,
// RefreshToken and ExpiresAt are either all nil or all set.
type Record struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AccessToken  *string    `gorm:"type:text" json:"access_token,omitempty"`
	RefreshToken *string    `gorm:"type:text" json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Name         *string    `gorm:"size:255" json:"name,omitempty"`
	Email        *string    `gorm:"size:255" json:"email,omitempty"`
	PhoneNumber  *string    `gorm:"size:64" json:"phone_number,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (Record) TableName() string {
	return "user_oauth_tokens"
}

// State derives the lifecycle state at now. A record whose expiry equals now
// is already expired.
func (r *Record) State(now time.Time) State {
	if r.AccessToken == nil || r.RefreshToken == nil || r.ExpiresAt == nil {
		return StateUnauthorized
	}
	if r.ExpiresAt.After(now) {
		return StateValid
	}
	return StateExpired
}

// Profile is the public projection of a Record. It never carries tokens.
type Profile struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	PhoneNumber *string `json:"phone_number"`
	Email       *string `json:"email"`
}

func (r *Record) Profile() Profile {
	return Profile{
		ID:          r.ID,
		Name:        r.Name,
		PhoneNumber: r.PhoneNumber,
		Email:       r.Email,
	}
}
