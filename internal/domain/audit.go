package domain

import "time"

const EventFieldHistoryRecorded = "field_history_recorded"

// HistoryEvent is the message published for each committed history record.
type HistoryEvent struct {
	Service         string    `json:"service"`
	EventType       string    `json:"event_type"`
	RecordID        int64     `json:"record_id"`
	EntityType      string    `json:"entity_type"`
	EntityID        string    `json:"entity_id"`
	FieldName       string    `json:"field_name"`
	SerializedValue string    `json:"serialized_value"`
	Actor           string    `json:"actor,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func NewHistoryEvent(service string, r HistoryRecord) HistoryEvent {
	e := HistoryEvent{
		Service:         service,
		EventType:       EventFieldHistoryRecorded,
		RecordID:        r.ID,
		EntityType:      r.EntityType,
		EntityID:        r.EntityID,
		FieldName:       r.FieldName,
		SerializedValue: r.SerializedValue,
		OccurredAt:      r.CreatedAt,
	}
	if user, ok := r.UserID(); ok {
		e.Actor = user
	}
	return e
}
