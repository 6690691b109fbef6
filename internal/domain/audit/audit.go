// Package audit keeps the field-level change history of orders and order
// items and the request-level audit trail of the API.
package audit

import (
	"context"
	"time"

	"github.com/xenking/order-registry/internal/domain/order"
)

// Object classes recorded in the change log and audit trail.
const (
	ObjectOrder     = "Order"
	ObjectOrderItem = "OrderItem"
)

// ChangeLog is one version of an object. Data holds the versioned fields that
// changed in this version, keyed by their API name.
type ChangeLog struct {
	ID          string
	ObjectClass string
	ObjectID    string
	Action      order.Action
	Version     int
	Data        map[string]string
	Username    string
	LoggedAt    time.Time
}

// Trail records a single API request that touched a resource.
type Trail struct {
	ID          string
	Application string
	Resource    string
	ResourceID  string
	Method      string
	Route       string
	StatusCode  int
	RequestID   string
	UserAgent   string
	Username    string
	CreatedAt   time.Time
}

// ChangeLogRepository stores change log entries.
type ChangeLogRepository interface {
	// Append stores entries atomically.
	Append(ctx context.Context, entries []ChangeLog) error
	// LatestVersion returns the highest version of the object, or 0.
	LatestVersion(ctx context.Context, objectClass, objectID string) (int, error)
	// List returns the object's entries ordered by version.
	List(ctx context.Context, objectClass, objectID string) ([]ChangeLog, error)
}

// TrailRepository stores audit trail records.
type TrailRepository interface {
	Record(ctx context.Context, t Trail) error
	// List returns the resource's records, oldest first.
	List(ctx context.Context, resource, resourceID string) ([]Trail, error)
}
