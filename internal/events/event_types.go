package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ats-auth/internal/domain"
)

// EventType names a message on the user-events topic.
type EventType string

const (
	EventUserCreated EventType = "USER_CREATED"
)

// Event is the envelope consumers decode. Only Type and Payload form the
// message value; ID, Key and Timestamp travel as message metadata.
type Event struct {
	ID        string    `json:"-"`
	Key       string    `json:"-"`
	Timestamp time.Time `json:"-"`
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
}

// UserCreatedPayload is announced once per registration.
type UserCreatedPayload struct {
	UserID string      `json:"userId"`
	Email  string      `json:"email"`
	Role   domain.Role `json:"role"`
}

// stamped fills in an id and timestamp when the producer left them empty.
func (e Event) stamped() Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}
