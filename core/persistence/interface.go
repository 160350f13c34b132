package persistence

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a document looked up by id does not exist
	// and the configuration asks for a typed failure.
	ErrNotFound = errors.New("tapestry: document not found")

	// ErrUndeclaredField is returned by Save when dynamic fields are disabled
	// and a document carries attributes its type does not declare.
	ErrUndeclaredField = errors.New("tapestry: undeclared field")

	// ErrTransactionsUnsupported is returned by Transact when the driver
	// cannot run transactions.
	ErrTransactionsUnsupported = errors.New("tapestry: driver does not support transactions")

	// ErrEmbeddedReload is returned by Reload for documents attached to a
	// parent. Their payload is stored inside the root document, which is
	// reloaded instead.
	ErrEmbeddedReload = errors.New("tapestry: embedded documents reload through their root")
)

// EventType defines the possible event types for persistence operations.
type EventType string

const (
	DocumentSaveStart      EventType = "document:save:start"
	DocumentSaveSuccess    EventType = "document:save:success"
	DocumentSaveFailed     EventType = "document:save:failed"
	DocumentDeleteStart    EventType = "document:delete:start"
	DocumentDeleteSuccess  EventType = "document:delete:success"
	DocumentDeleteFailed   EventType = "document:delete:failed"
	DocumentReloadStart    EventType = "document:reload:start"
	DocumentReloadSuccess  EventType = "document:reload:success"
	DocumentReloadFailed   EventType = "document:reload:failed"
	TransactionStart       EventType = "transaction:start"
	TransactionSuccess     EventType = "transaction:success"
	TransactionFailed      EventType = "transaction:failed"
	SubscriptionRegister   EventType = "subscription:register"
	SubscriptionUnregister EventType = "subscription:unregister"
)

// Event is emitted on the persistence event bus around every write and
// reload.
type Event struct {
	Type         EventType `json:"type"`
	Timestamp    int64     `json:"timestamp"` // Unix milliseconds
	Operation    string    `json:"operation"`
	Collection   string    `json:"collection,omitempty"`
	DocumentType string    `json:"documentType,omitempty"`
	DocumentID   string    `json:"documentId,omitempty"`
	Input        any       `json:"input,omitempty"`
	Output       any       `json:"output,omitempty"`
	Error        *string   `json:"error,omitempty"`
	Duration     *int64    `json:"duration,omitempty"` // milliseconds
}

// EventCallbackFunction handles a persistence event.
type EventCallbackFunction func(ctx context.Context, event Event) error

// RegisterSubscriptionOptions defines options for registering a subscription.
type RegisterSubscriptionOptions struct {
	Event       EventType `json:"event"`
	Label       *string   `json:"label,omitempty"`
	Description *string   `json:"description,omitempty"`
	Callback    EventCallbackFunction
}

// SubscriptionInfo describes an active subscription.
type SubscriptionInfo struct {
	Id          *string   `json:"id"`
	Event       EventType `json:"event"`
	Label       *string   `json:"label,omitempty"`
	Description *string   `json:"description,omitempty"`
	Unsubscribe func()    `json:"-"`
}
