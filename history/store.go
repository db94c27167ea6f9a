package history

import (
	"context"
	"time"
)

// Store defines persistence operations for protection history.
type Store interface {
	// AppendHistory inserts e and sets e.ID to the generated key.
	AppendHistory(ctx context.Context, e *Entry) error

	// ListHistory returns entries matching the filter, newest first.
	ListHistory(ctx context.Context, filter *QueryFilter) ([]*Entry, error)

	// PurgeHistory removes entries created before the given time.
	PurgeHistory(ctx context.Context, before time.Time) (int64, error)
}
