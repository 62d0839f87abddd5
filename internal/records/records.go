// Package records persists rendered page snapshots.
package records

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by stores that have no backing database.
var ErrUnavailable = errors.New("records store unavailable")

// Snapshot is one rendered page.
type Snapshot struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	FinalURL    string    `json:"final_url"`
	StatusCode  int       `json:"status_code"`
	Title       string    `json:"title,omitempty"`
	ContentHash string    `json:"content_hash"`
	Bytes       int       `json:"bytes"`
	RenderedAt  time.Time `json:"rendered_at"`
	Sample      bool      `json:"sample,omitempty"`
}

// Store saves and lists snapshots.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Recent(ctx context.Context, limit int) ([]Snapshot, error)
}

// DefaultLimit applies when Recent is called with a non-positive limit.
const DefaultLimit = 20

// MaxLimit caps Recent.
const MaxLimit = 200

// ClampLimit normalizes a caller-provided limit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
