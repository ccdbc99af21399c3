package amqp

import (
	"encoding/json"
	"time"
)

// EventType identifies what happened to a user's expenses.
type EventType string

const (
	EventCreated  EventType = "expense.created"
	EventImported EventType = "expense.imported"
	EventUpdated  EventType = "expense.updated"
	EventDeleted  EventType = "expense.deleted"
)

// ExpenseEvent is a lightweight notification about a write. Consumers fetch
// full records through the API if they need them.
type ExpenseEvent struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"userId"`
	IDs       []string  `json:"ids,omitempty"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExpenseEvent creates an event stamped with the current time.
func NewExpenseEvent(t EventType, userID string, ids []string, count int) *ExpenseEvent {
	return &ExpenseEvent{
		Type:      t,
		UserID:    userID,
		IDs:       ids,
		Count:     count,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
