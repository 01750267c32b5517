package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/indent-flow/internal/domain/workflow"
)

// Event represents a domain event raised after a unit of work commits
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	EntityKind    EntityKind             `json:"entity_kind"`
	EntityID      string                 `json:"entity_id"`
	Stage         workflow.Stage         `json:"stage"`
	Actor         string                 `json:"actor,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, kind EntityKind, entityID string, stage workflow.Stage, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, kind, entityID, stage, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, kind EntityKind, entityID string, stage workflow.Stage, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		EntityKind:    kind,
		EntityID:      entityID,
		Stage:         stage,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithActor returns a copy of the event attributed to the actor
func (e *Event) WithActor(actor string) *Event {
	c := e.clone()
	c.Actor = actor
	return c
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	c := e.clone()
	c.Payload[key] = value
	return c
}

func (e *Event) clone() *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	c := *e
	c.Payload = newPayload
	return &c
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadStrings retrieves a string slice from the payload
func (e *Event) GetPayloadStrings(key string) []string {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case []string:
			return v
		case []interface{}:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return nil
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
