package session

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Participant is a remote actor able to join sessions. Identity is supplied by
// the transport and trusted as-is.
type Participant struct {
	ID          string `json:"id" validate:"required,max=128"`
	DisplayName string `json:"displayName" validate:"max=128"`
}

// Name returns the display name, falling back to the id.
func (p Participant) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

// Validate checks the participant fields.
//
// Postcondition: Returns nil when ID is non-empty and both fields are at most 128 bytes.
func (p Participant) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid participant: %w", err)
	}
	return nil
}
