package domain

import (
	"fmt"
	"time"
)

// HistoryRecord is one immutable snapshot of a single tracked field's value.
type HistoryRecord struct {
	ID              int64     `json:"id"`
	EntityID        string    `json:"entity_id"`
	EntityType      string    `json:"entity_type"`
	FieldName       string    `json:"field_name"`
	SerializedValue string    `json:"serialized_value"`
	CreatedAt       time.Time `json:"created_at"`
	User            *string   `json:"user,omitempty"`
}

func (r HistoryRecord) String() string {
	return fmt.Sprintf("%s field history for %s %s", r.FieldName, r.EntityType, r.EntityID)
}

// Validate checks the fields every store requires.
func (r HistoryRecord) Validate() error {
	switch {
	case r.EntityID == "":
		return fmt.Errorf("%w: entity id is required", ErrInvalidRecord)
	case r.EntityType == "":
		return fmt.Errorf("%w: entity type is required", ErrInvalidRecord)
	case r.FieldName == "":
		return fmt.Errorf("%w: field name is required", ErrInvalidRecord)
	}
	return nil
}

// UserID returns the acting user, if one was recorded.
func (r HistoryRecord) UserID() (string, bool) {
	if r.User == nil {
		return "", false
	}
	return *r.User, true
}

// HistoryUserProvider is implemented by entities that carry their own acting
// user. When present it takes precedence over any ambient user.
type HistoryUserProvider interface {
	HistoryUser() (string, bool)
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
