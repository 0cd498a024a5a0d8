package amqp

import (
	"encoding/json"
	"time"

	"spendly/internal/core"
)

// Routing keys on the topic exchange.
const (
	EventExpenseCreated = "expense.created"
	EventExpenseDeleted = "expense.deleted"
)

// ExpenseEvent notifies listeners that the local collection changed. Deleted
// events carry only the id.
type ExpenseEvent struct {
	Type      string      `json:"type"`
	ID        string      `json:"id"`
	Amount    *core.Money `json:"amount,omitempty"`
	Category  string      `json:"category,omitempty"`
	Date      string      `json:"date,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewExpenseCreated(e core.Expense) *ExpenseEvent {
	amount := e.Amount
	return &ExpenseEvent{
		Type:      EventExpenseCreated,
		ID:        e.ID,
		Amount:    &amount,
		Category:  e.Category,
		Date:      e.Date.String(),
		Timestamp: time.Now(),
	}
}

func NewExpenseDeleted(id string) *ExpenseEvent {
	return &ExpenseEvent{
		Type:      EventExpenseDeleted,
		ID:        id,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON creates a message from JSON bytes
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
