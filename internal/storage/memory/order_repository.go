// Package memory provides in-memory implementations of the storage ports for
// local development and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/order-registry/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

type sequenceKey struct {
	org  string
	year int
}

// OrderRepository keeps orders in a map. Stored orders are deep copies, so
// callers never share state with the repository.
type OrderRepository struct {
	mu        sync.RWMutex
	orders    map[string]*order.Order
	owners    map[string]string
	sequences map[sequenceKey]int64
	now       func() time.Time
}

// NewOrderRepository returns an empty OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:    make(map[string]*order.Order),
		owners:    make(map[string]string),
		sequences: make(map[sequenceKey]int64),
		now:       time.Now,
	}
}

// Create runs the pre-save hook on o and stores a copy.
func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.ID]; exists {
		return errors.Errorf("order %q already exists", o.ID)
	}
	for _, stored := range r.orders {
		if o.Reference != "" && stored.Reference == o.Reference {
			return errors.Wrapf(order.ErrReferenceConflict, "reference %s", o.Reference)
		}
	}

	if err := o.BeforeSave(r.now()); err != nil {
		return err
	}
	r.store(o)
	return nil
}

// Get returns a copy of the order.
func (r *OrderRepository) Get(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

// GetByItem returns a copy of the order holding the item.
func (r *OrderRepository) GetByItem(ctx context.Context, itemID string) (*order.Order, error) {
	r.mu.RLock()
	id, ok := r.owners[itemID]
	r.mu.RUnlock()
	if !ok {
		return nil, order.ErrNotFound
	}
	return r.Get(ctx, id)
}

// List returns copies of the orders matching f ordered by creation time.
func (r *OrderRepository) List(_ context.Context, f order.Filter) ([]*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*order.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if matches(o, f) {
			result = append(result, o.Clone())
		}
	}

	slices.SortFunc(result, func(a, b *order.Order) int {
		c := a.CreatedAt.Compare(b.CreatedAt)
		if c == 0 {
			c = cmp.Compare(a.ReferenceID, b.ReferenceID)
		}
		if f.NewestFirst {
			return -c
		}
		return c
	})

	if f.Offset > 0 {
		if f.Offset >= len(result) {
			return []*order.Order{}, nil
		}
		result = result[f.Offset:]
	}
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

// Update applies fn to a copy of the stored order under the write lock, runs
// the pre-save hook and replaces the stored copy.
func (r *OrderRepository) Update(_ context.Context, id string, fn func(o *order.Order) error) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o := stored.Clone()
	if err := fn(o); err != nil {
		return nil, err
	}
	if err := o.BeforeSave(r.now()); err != nil {
		return nil, err
	}
	r.drop(id)
	r.store(o)
	return o, nil
}

// Delete removes the order and its items.
func (r *OrderRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return order.ErrNotFound
	}
	r.drop(id)
	return nil
}

// NextReferenceID increments the organization's sequence for year.
func (r *OrderRepository) NextReferenceID(_ context.Context, orgCode string, year int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sequenceKey{org: orgCode, year: year}
	r.sequences[key]++
	return r.sequences[key], nil
}

func (r *OrderRepository) store(o *order.Order) {
	c := o.Clone()
	r.orders[c.ID] = c
	for _, item := range c.Items() {
		r.owners[item.ID] = c.ID
	}
}

func (r *OrderRepository) drop(id string) {
	o, ok := r.orders[id]
	if !ok {
		return
	}
	for _, item := range o.Items() {
		delete(r.owners, item.ID)
	}
	delete(r.orders, id)
}

func matches(o *order.Order, f order.Filter) bool {
	switch {
	case f.Reference != "" && o.Reference != f.Reference:
		return false
	case f.TargetOrganization != "" && o.TargetOrganization != f.TargetOrganization:
		return false
	case f.Customer != "" && o.Customer != f.Customer:
		return false
	case f.Organization != "" && o.Organization.ID != f.Organization && o.Organization.Code != f.Organization:
		return false
	case !f.CreatedAfter.IsZero() && o.CreatedAt.Before(f.CreatedAfter):
		return false
	case !f.CreatedBefore.IsZero() && o.CreatedAt.After(f.CreatedBefore):
		return false
	}
	return true
}
