package order

import (
	"context"
	"fmt"
	"time"
)

// FormatReference builds the human readable order reference
// {orgCode}-{year}-{sequence}, e.g. 6666-2019-0000000012.
func FormatReference(orgCode string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%010d", orgCode, year, seq)
}

// Filter narrows List results. Zero values are ignored.
type Filter struct {
	Reference          string
	TargetOrganization string
	Customer           string
	Organization       string
	CreatedAfter       time.Time
	CreatedBefore      time.Time
	// NewestFirst orders by creation time descending; the default is ascending.
	NewestFirst bool
	Limit       int
	Offset      int
}

// Repository persists orders together with their items and tax lines.
//
// Create and Update must call BeforeSave on the order immediately before
// writing it, so the stored price and tax summary always match the items.
//
// Update loads the order, applies fn and writes the result as one atomic
// step: no other write to the order may land between the load and the write.
// An error from fn aborts the update and is returned as is.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByItem(ctx context.Context, itemID string) (*Order, error)
	List(ctx context.Context, f Filter) ([]*Order, error)
	Update(ctx context.Context, id string, fn func(o *Order) error) (*Order, error)
	Delete(ctx context.Context, id string) error
	// NextReferenceID returns the next sequence number for references of the
	// organization in the given year, starting at 1.
	NextReferenceID(ctx context.Context, orgCode string, year int) (int64, error)
}
