// Package history defines the protection history Entry entity and the
// write-once Event wrapper used to persist it in the background.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xraph/bastion/id"
)

// ErrNoStore is returned when saving an event without a store.
var ErrNoStore = errors.New("history: no store attached")

// Action is what happened to a protection.
type Action string

// Recorded actions.
const (
	ActionCreated     Action = "created"
	ActionRemoved     Action = "removed"
	ActionGranted     Action = "granted"
	ActionRevoked     Action = "revoked"
	ActionTransferred Action = "transferred"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionCreated, ActionRemoved, ActionGranted, ActionRevoked, ActionTransferred:
		return a, nil
	}
	return "", fmt.Errorf("history: unknown action %q", s)
}

// Entry is a single protection history record. ID is generated by the
// store on insert.
type Entry struct {
	ID           int64           `json:"id" db:"id"`
	ProtectionID id.ProtectionID `json:"protection_id" db:"protection_id"`
	Principal    string          `json:"principal" db:"principal"`
	Action       Action          `json:"action" db:"action"`
	Detail       string          `json:"detail,omitempty" db:"detail"`
	CreatedAt    time.Time       `json:"created_at" db:"created"`
}

// QueryFilter contains filters for listing history.
type QueryFilter struct {
	ProtectionID id.ProtectionID `json:"protection_id,omitempty"`
	Principal    string          `json:"principal,omitempty"`
	Action       Action          `json:"action,omitempty"`
	After        *time.Time      `json:"after,omitempty"`
	Before       *time.Time      `json:"before,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Match reports whether e passes the filter. Stores without a query
// language use it directly.
func (f *QueryFilter) Match(e *Entry) bool {
	if f == nil {
		return true
	}
	if !f.ProtectionID.IsNil() && f.ProtectionID.String() != e.ProtectionID.String() {
		return false
	}
	if f.Principal != "" && !strings.EqualFold(f.Principal, e.Principal) {
		return false
	}
	if f.Action != "" && f.Action != e.Action {
		return false
	}
	if f.After != nil && !e.CreatedAt.After(*f.After) {
		return false
	}
	if f.Before != nil && !e.CreatedAt.Before(*f.Before) {
		return false
	}
	return true
}

// Event is an Entry waiting to be written. It is saved at most once.
type Event struct {
	store Store

	mu    sync.Mutex
	entry Entry
	saved bool
}

// NewEvent creates an unsaved event for e. A zero CreatedAt is set to now.
func NewEvent(s Store, e Entry) *Event {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	return &Event{store: s, entry: e}
}

// Entry returns a copy of the entry, including the generated ID once saved.
func (e *Event) Entry() Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entry
}

// IsSaveNeeded reports whether the event has not been written yet.
func (e *Event) IsSaveNeeded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.saved
}

// SaveImmediately inserts the entry and records its generated ID. Calls
// after a successful save do nothing.
func (e *Event) SaveImmediately(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.saved {
		return nil
	}
	if e.store == nil {
		return ErrNoStore
	}
	entry := e.entry
	if err := e.store.AppendHistory(ctx, &entry); err != nil {
		return fmt.Errorf("history: append %s for %s: %w", entry.Action, entry.ProtectionID, err)
	}
	e.entry = entry
	e.saved = true
	return nil
}

func (e *Event) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fmt.Sprintf("history(%s %s by %s)", e.entry.ProtectionID, e.entry.Action, e.entry.Principal)
}
