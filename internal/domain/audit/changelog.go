package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/order-registry/internal/domain/auth"
	"github.com/xenking/order-registry/internal/domain/order"
)

var _ order.Observer = (*Recorder)(nil)

// Recorder turns committed order changes into change log entries. It is
// registered as an order.Observer; the service holds the order lock while
// observers run, so versions of one object are assigned sequentially.
type Recorder struct {
	changes ChangeLogRepository
	now     func() time.Time
}

// NewRecorder creates a Recorder that appends to changes.
func NewRecorder(changes ChangeLogRepository) *Recorder {
	return &Recorder{changes: changes, now: time.Now}
}

type pending struct {
	class  string
	id     string
	action order.Action
	data   map[string]string
}

// Observe records one entry per order or item whose versioned fields changed.
func (r *Recorder) Observe(ctx context.Context, c order.Change) error {
	var changes []pending

	if p, ok := diffObject(ObjectOrder, c.Action, orderID(c), snapshotOrder(c.Before), snapshotOrder(c.After)); ok {
		changes = append(changes, p)
	}

	before := itemsByID(c.Before)
	if c.After != nil {
		for _, item := range c.After.Items() {
			prev, existed := before[item.ID]
			action := order.ActionCreate
			if existed {
				action = order.ActionUpdate
			}
			if p, ok := diffObject(ObjectOrderItem, action, item.ID, snapshotItem(prev), snapshotItem(item)); ok {
				changes = append(changes, p)
			}
		}
	}
	after := itemsByID(c.After)
	if c.Before != nil {
		for _, item := range c.Before.Items() {
			if _, ok := after[item.ID]; ok {
				continue
			}
			changes = append(changes, pending{class: ObjectOrderItem, id: item.ID, action: order.ActionRemove})
		}
	}

	if len(changes) == 0 {
		return nil
	}

	username := auth.Username(ctx)
	now := r.now()
	entries := make([]ChangeLog, 0, len(changes))
	for _, p := range changes {
		version, err := r.changes.LatestVersion(ctx, p.class, p.id)
		if err != nil {
			return errors.Wrapf(err, "latest version of %s %s", p.class, p.id)
		}
		entries = append(entries, ChangeLog{
			ID:          uuid.New().String(),
			ObjectClass: p.class,
			ObjectID:    p.id,
			Action:      p.action,
			Version:     version + 1,
			Data:        p.data,
			Username:    username,
			LoggedAt:    now,
		})
	}

	if err := r.changes.Append(ctx, entries); err != nil {
		return errors.Wrap(err, "append change log")
	}
	return nil
}

func diffObject(class string, action order.Action, id string, before, after map[string]string) (pending, bool) {
	switch {
	case after == nil:
		return pending{class: class, id: id, action: order.ActionRemove}, true
	case before == nil:
		return pending{class: class, id: id, action: order.ActionCreate, data: after}, true
	}

	changed := make(map[string]string)
	for field, value := range after {
		if before[field] != value {
			changed[field] = value
		}
	}
	if len(changed) == 0 {
		return pending{}, false
	}
	return pending{class: class, id: id, action: action, data: changed}, true
}

func orderID(c order.Change) string {
	if c.After != nil {
		return c.After.ID
	}
	return c.Before.ID
}

func itemsByID(o *order.Order) map[string]*order.OrderItem {
	if o == nil {
		return nil
	}
	items := o.Items()
	m := make(map[string]*order.OrderItem, len(items))
	for _, item := range items {
		m[item.ID] = item
	}
	return m
}

func snapshotOrder(o *order.Order) map[string]string {
	if o == nil {
		return nil
	}
	price := o.Price()
	return map[string]string{
		"name":               o.Name,
		"description":        o.Description,
		"reference":          o.Reference,
		"referenceId":        strconv.FormatInt(o.ReferenceID, 10),
		"targetOrganization": o.TargetOrganization,
		"price":              price.Format(),
		"priceCurrency":      price.Currency(),
		"taxes":              encodeTaxes(o.Taxes()),
		"customer":           o.Customer,
		"remark":             o.Remark,
	}
}

func snapshotItem(i *order.OrderItem) map[string]string {
	if i == nil {
		return nil
	}
	return map[string]string{
		"name":          i.Name,
		"description":   i.Description,
		"offer":         i.Offer,
		"product":       i.Product,
		"quantity":      strconv.FormatInt(i.Quantity, 10),
		"price":         i.UnitPrice().Format(),
		"priceCurrency": i.Currency,
	}
}

// encodeTaxes renders a summary as a JSON object with keys in ascending
// percentage order, so equal summaries always encode identically.
func encodeTaxes(s order.TaxSummary) string {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	for _, key := range s.Keys() {
		e.FieldStart(key)
		e.Str(s[key].Format())
	}
	e.ObjEnd()
	return e.String()
}
