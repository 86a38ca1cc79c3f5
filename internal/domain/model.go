package domain

import (
	"errors"
	"time"
)

// Order errors
var (
	ErrInvalidStatus = errors.New("invalid order status")
)

type CreateOrderRequest struct {
	Status string `json:"status"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

// HistoryEntry is a history record together with the value it decodes to.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	EntityID   string    `json:"entity_id"`
	EntityType string    `json:"entity_type"`
	FieldName  string    `json:"field_name"`
	Value      any       `json:"value"`
	CreatedAt  time.Time `json:"created_at"`
	User       *string   `json:"user,omitempty"`
}

func NewHistoryEntry(r HistoryRecord, value any) HistoryEntry {
	return HistoryEntry{
		ID:         r.ID,
		EntityID:   r.EntityID,
		EntityType: r.EntityType,
		FieldName:  r.FieldName,
		Value:      value,
		CreatedAt:  r.CreatedAt,
		User:       r.User,
	}
}
