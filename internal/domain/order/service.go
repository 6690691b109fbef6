package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/xenking/order-registry/internal/domain/order"

// Action names a kind of write reported to an Observer.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
)

// Change describes a committed write. Before is nil on create and After is
// nil on remove.
type Change struct {
	Action Action
	Before *Order
	After  *Order
}

// Observer is notified after every successful write, e.g. to keep a change
// log. Observer errors are logged and do not fail the write.
type Observer interface {
	Observe(ctx context.Context, change Change) error
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	Name               string
	Description        string
	Organization       Organization
	TargetOrganization string
	Customer           string
	Remark             string
	Items              []ItemParams
}

// UpdateRequest holds optional replacements for order fields. A non-nil Items
// replaces the whole item collection.
type UpdateRequest struct {
	Name               *string
	Description        *string
	TargetOrganization *string
	Customer           *string
	Remark             *string
	Items              *[]ItemParams
}

// Service implements order use cases. Every read-modify-write of one order
// runs under that order's lock.
type Service struct {
	orders    Repository
	observers []Observer
	locks     *keyedMutex
	now       func() time.Time
	newID     func() string

	tracer       trace.Tracer
	recalculated metric.Int64Counter
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithObserver registers an observer for committed writes.
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) { s.observers = append(s.observers, o) }
}

// WithTracerProvider sets the tracer provider; the global one is the default.
func WithTracerProvider(tp trace.TracerProvider) ServiceOption {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithClock overrides the time source used for reference years.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates an order Service. The meter provider is used for the
// orders.totals.recalculated counter.
func NewService(orders Repository, mp metric.MeterProvider, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		orders: orders,
		locks:  newKeyedMutex(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		tracer: otel.GetTracerProvider().Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	counter, err := mp.Meter(instrumentationName).Int64Counter("orders.totals.recalculated",
		metric.WithDescription("Number of persisted order total recalculations"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create recalculation counter")
	}
	s.recalculated = counter

	return s, nil
}

// Create validates and persists a new order with its items. The reference is
// allocated from the organization's sequence for the current year.
func (s *Service) Create(ctx context.Context, req CreateRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer endSpan(span, &rerr)

	o := New()
	o.ID = s.newID()
	o.Name = req.Name
	o.Description = req.Description
	o.Organization = req.Organization
	o.TargetOrganization = req.TargetOrganization
	o.Customer = req.Customer
	o.Remark = req.Remark

	for _, p := range req.Items {
		item, err := NewItem(s.newID(), p)
		if err != nil {
			return nil, err
		}
		o.AddItem(item)
	}

	if err := Validate(o); err != nil {
		return nil, err
	}

	year := s.now().Year()
	seq, err := s.orders.NextReferenceID(ctx, o.Organization.Code, year)
	if err != nil {
		return nil, errors.Wrap(err, "allocate reference")
	}
	o.ReferenceID = seq
	o.Reference = FormatReference(o.Organization.Code, year, seq)

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	span.SetAttributes(attribute.String("order.id", o.ID))

	s.committed(ctx, Change{Action: ActionCreate, After: o})
	return o, nil
}

// Get returns an order with its items.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Get", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	return s.orders.Get(ctx, id)
}

// List returns orders matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.List")
	defer span.End()

	return s.orders.List(ctx, f)
}

// Update applies req to the order and persists it.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Order, error) {
	return s.modify(ctx, "order.Update", id, func(o *Order) error {
		if req.Name != nil {
			o.Name = *req.Name
		}
		if req.Description != nil {
			o.Description = *req.Description
		}
		if req.TargetOrganization != nil {
			o.TargetOrganization = *req.TargetOrganization
		}
		if req.Customer != nil {
			o.Customer = *req.Customer
		}
		if req.Remark != nil {
			o.Remark = *req.Remark
		}
		if req.Items == nil {
			return nil
		}

		items := make([]*OrderItem, 0, len(*req.Items))
		for _, p := range *req.Items {
			item, err := NewItem(s.newID(), p)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		for _, item := range o.Items() {
			o.RemoveItem(item)
		}
		for _, item := range items {
			o.AddItem(item)
		}
		return nil
	})
}

// Delete removes an order together with its items.
func (s *Service) Delete(ctx context.Context, id string) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Delete", trace.WithAttributes(attribute.String("order.id", id)))
	defer endSpan(span, &rerr)

	unlock := s.locks.Lock(id)
	defer unlock()

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete order")
	}

	s.committed(ctx, Change{Action: ActionRemove, Before: o})
	return nil
}

// AddItem attaches a new item to the order and returns both.
func (s *Service) AddItem(ctx context.Context, orderID string, p ItemParams) (*Order, *OrderItem, error) {
	var added *OrderItem
	o, err := s.modify(ctx, "order.AddItem", orderID, func(o *Order) error {
		item, err := NewItem(s.newID(), p)
		if err != nil {
			return err
		}
		o.AddItem(item)
		added = item
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return o, added, nil
}

// RemoveItem detaches an item from the order. The item is deleted with it.
func (s *Service) RemoveItem(ctx context.Context, orderID, itemID string) (*Order, error) {
	return s.modify(ctx, "order.RemoveItem", orderID, func(o *Order) error {
		item := o.ItemByID(itemID)
		if item == nil {
			return ErrItemNotFound
		}
		o.RemoveItem(item)
		return nil
	})
}

// GetItem returns an item; its Order() is the owning order.
func (s *Service) GetItem(ctx context.Context, itemID string) (*OrderItem, error) {
	ctx, span := s.tracer.Start(ctx, "order.GetItem", trace.WithAttributes(attribute.String("item.id", itemID)))
	defer span.End()

	o, err := s.orders.GetByItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	item := o.ItemByID(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}
	return item, nil
}

// UpdateItem applies a patch to an item and recomputes its order.
func (s *Service) UpdateItem(ctx context.Context, itemID string, p ItemPatch) (*OrderItem, error) {
	orderID, err := s.owner(ctx, itemID)
	if err != nil {
		return nil, err
	}

	var updated *OrderItem
	_, err = s.modify(ctx, "order.UpdateItem", orderID, func(o *Order) error {
		item := o.ItemByID(itemID)
		if item == nil {
			return ErrItemNotFound
		}
		if err := item.Apply(p); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteItem removes an item from whichever order holds it.
func (s *Service) DeleteItem(ctx context.Context, itemID string) (*Order, error) {
	orderID, err := s.owner(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return s.RemoveItem(ctx, orderID, itemID)
}

func (s *Service) owner(ctx context.Context, itemID string) (string, error) {
	o, err := s.orders.GetByItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrItemNotFound
		}
		return "", err
	}
	return o.ID, nil
}

// modify applies fn to the order and validates the result inside the
// repository's atomic update, which also recomputes totals. The local lock
// keeps writers of one order queued in process instead of in the database.
func (s *Service) modify(ctx context.Context, name, id string, fn func(o *Order) error) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("order.id", id)))
	defer endSpan(span, &rerr)

	unlock := s.locks.Lock(id)
	defer unlock()

	var before *Order
	o, err := s.orders.Update(ctx, id, func(o *Order) error {
		before = o.Clone()
		if err := fn(o); err != nil {
			return err
		}
		return Validate(o)
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, Change{Action: ActionUpdate, Before: before, After: o})
	return o, nil
}

func (s *Service) committed(ctx context.Context, c Change) {
	if c.After != nil {
		s.recalculated.Add(ctx, 1, metric.WithAttributes(attribute.String("action", string(c.Action))))
	}
	for _, obs := range s.observers {
		if err := obs.Observe(ctx, c); err != nil {
			zctx.From(ctx).Warn("Change observer failed",
				zap.String("action", string(c.Action)),
				zap.Error(err),
			)
		}
	}
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}
