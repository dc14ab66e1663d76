package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator"
)

// ErrInvalidMessage marks payloads that can never succeed. They skip the
// retry queue and go straight to the DLQ.
var ErrInvalidMessage = errors.New("invalid message")

// RecomputeSignalsMsg asks for one contact's signals to be recomputed.
type RecomputeSignalsMsg struct {
	TenantID  string `json:"tenant_id" validate:"required"`
	ContactID string `json:"contact_id" validate:"required"`
}

var validate = validator.New()

// decode unmarshals and validates a message body.
func decode[T any](body []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := validate.Struct(msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return msg, nil
}
