package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/xenking/order-registry/internal/domain/audit"
)

var (
	_ audit.ChangeLogRepository = (*ChangeLogRepository)(nil)
	_ audit.TrailRepository     = (*TrailRepository)(nil)
)

type objectKey struct {
	class string
	id    string
}

// ChangeLogRepository keeps change log entries per object.
type ChangeLogRepository struct {
	mu      sync.RWMutex
	entries map[objectKey][]audit.ChangeLog
}

// NewChangeLogRepository returns an empty ChangeLogRepository.
func NewChangeLogRepository() *ChangeLogRepository {
	return &ChangeLogRepository{entries: make(map[objectKey][]audit.ChangeLog)}
}

// Append stores entries.
func (r *ChangeLogRepository) Append(_ context.Context, entries []audit.ChangeLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		e.Data = maps.Clone(e.Data)
		key := objectKey{class: e.ObjectClass, id: e.ObjectID}
		r.entries[key] = append(r.entries[key], e)
	}
	return nil
}

// LatestVersion returns the highest stored version of the object.
func (r *ChangeLogRepository) LatestVersion(_ context.Context, class, id string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	latest := 0
	for _, e := range r.entries[objectKey{class: class, id: id}] {
		latest = max(latest, e.Version)
	}
	return latest, nil
}

// List returns the object's entries ordered by version.
func (r *ChangeLogRepository) List(_ context.Context, class, id string) ([]audit.ChangeLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := slices.Clone(r.entries[objectKey{class: class, id: id}])
	slices.SortStableFunc(result, func(a, b audit.ChangeLog) int { return a.Version - b.Version })
	return result, nil
}

// TrailRepository keeps audit trail records per resource.
type TrailRepository struct {
	mu      sync.RWMutex
	records map[objectKey][]audit.Trail
}

// NewTrailRepository returns an empty TrailRepository.
func NewTrailRepository() *TrailRepository {
	return &TrailRepository{records: make(map[objectKey][]audit.Trail)}
}

// Record appends t.
func (r *TrailRepository) Record(_ context.Context, t audit.Trail) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := objectKey{class: t.Resource, id: t.ResourceID}
	r.records[key] = append(r.records[key], t)
	return nil
}

// List returns the resource's records in insertion order.
func (r *TrailRepository) List(_ context.Context, resource, id string) ([]audit.Trail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.records[objectKey{class: resource, id: id}]), nil
}
