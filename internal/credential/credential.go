// Package credential defines the persisted token bundle kept per
// environment and its validation rules.
//
// Persisted JSON is never trusted blindly: every load goes through Decode,
// and anything that fails validation is reported as ErrInvalid so callers
// can treat it as absent rather than crash.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultTokenType is assumed when a stored record omits token_type.
const DefaultTokenType = "Bearer"

// ErrInvalid reports a stored blob that does not decode into a usable
// record. Callers treat it as "no credential", not as a failure.
var ErrInvalid = errors.New("invalid credential record")

var validate = validator.New()

// Record is the credential bundle persisted per environment.
type Record struct {
	AccessToken string `json:"access_token" validate:"required"`

	// RefreshToken is absent when the session cannot be silently renewed.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is the absolute expiry instant. A nil value means the
	// token is treated as non-expiring.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	TokenType string `json:"token_type"`
	Scope     string `json:"scope,omitempty"`

	// StoredAt is set by the manager at write time, never by callers.
	StoredAt time.Time `json:"stored_at"`
}

// Valid reports whether the record's access token is usable at now:
// either no expiry is recorded, or now is strictly before it.
func (r *Record) Valid(now time.Time) bool {
	return r.ExpiresAt == nil || now.Before(*r.ExpiresAt)
}

// Expired reports the inverse of Valid for records that carry an expiry.
func (r *Record) Expired(now time.Time) bool {
	return !r.Valid(now)
}

// Encode serializes the record for storage, stamping StoredAt with now.
func (r *Record) Encode(now time.Time) ([]byte, error) {
	r.StoredAt = now
	if r.TokenType == "" {
		r.TokenType = DefaultTokenType
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding credential record: %w", err)
	}
	return data, nil
}

// Decode parses and validates a stored blob. Malformed JSON and records
// failing schema validation both return errors wrapping ErrInvalid.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := validate.Struct(&r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if r.TokenType == "" {
		r.TokenType = DefaultTokenType
	}
	return &r, nil
}
