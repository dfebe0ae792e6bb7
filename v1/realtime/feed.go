// Package realtime turns backend change notifications into change bus
// invalidations.
package realtime

import (
	"context"
	"fmt"
	"time"

	tiderrors "github.com/gracefellowship/tidings/v1/errors"
)

// ChangeType is the kind of row change reported by a Feed.
type ChangeType string

const (
	Insert ChangeType = "INSERT"
	Update ChangeType = "UPDATE"
	Delete ChangeType = "DELETE"
)

// Change describes one row change on a backend table.
type Change struct {
	Type     ChangeType `json:"type"`
	Table    string     `json:"table"`
	RecordID string     `json:"record_id,omitempty"`
	At       time.Time  `json:"at"`
}

// ErrFeedClosed is returned when watching a closed feed.
var ErrFeedClosed = fmt.Errorf("realtime: feed %w", tiderrors.ErrClosed)

// Feed is the backend change stream. Stores publish a Change after every
// write; the Bridge watches the resources it is configured with.
type Feed interface {
	// Publish reports a change on c.Table to every watcher of that table.
	Publish(ctx context.Context, c Change) error
	// Watch returns a channel receiving the changes of resource until ctx is
	// canceled or Unwatch is called, after which the channel is closed.
	Watch(ctx context.Context, resource string) (<-chan Change, error)
	// Unwatch stops delivery to ch.
	Unwatch(ctx context.Context, resource string, ch <-chan Change) error
	// Close ends every watch. Later calls fail with ErrFeedClosed.
	Close() error
}
