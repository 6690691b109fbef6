package handler

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/order-registry/internal/domain/audit"
	"github.com/xenking/order-registry/internal/domain/order"
)

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("name")
	e.Str(o.Name)
	e.FieldStart("description")
	e.Str(o.Description)
	e.FieldStart("reference")
	e.Str(o.Reference)
	e.FieldStart("referenceId")
	e.Int64(o.ReferenceID)

	e.FieldStart("organization")
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.Organization.ID)
	e.FieldStart("code")
	e.Str(o.Organization.Code)
	e.FieldStart("name")
	e.Str(o.Organization.Name)
	e.ObjEnd()

	e.FieldStart("targetOrganization")
	e.Str(o.TargetOrganization)
	e.FieldStart("customer")
	e.Str(o.Customer)
	e.FieldStart("remark")
	e.Str(o.Remark)

	price := o.Price()
	e.FieldStart("price")
	e.Str(price.Format())
	e.FieldStart("priceCurrency")
	e.Str(price.Currency())

	taxes := o.Taxes()
	e.FieldStart("taxes")
	e.ObjStart()
	for _, key := range taxes.Keys() {
		e.FieldStart(key)
		e.Str(taxes[key].Format())
	}
	e.ObjEnd()

	e.FieldStart("items")
	e.ArrStart()
	for _, item := range o.Items() {
		encodeItem(e, item)
	}
	e.ArrEnd()

	encodeTimestamps(e, o.CreatedAt, o.ModifiedAt)
	e.ObjEnd()
}

func encodeItem(e *jx.Encoder, i *order.OrderItem) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(i.ID)
	if o := i.Order(); o != nil {
		e.FieldStart("order")
		e.Str(o.ID)
	}
	e.FieldStart("name")
	e.Str(i.Name)
	e.FieldStart("description")
	e.Str(i.Description)
	e.FieldStart("offer")
	e.Str(i.Offer)
	e.FieldStart("product")
	e.Str(i.ProductOrOffer())
	e.FieldStart("quantity")
	e.Int64(i.Quantity)
	e.FieldStart("price")
	e.Str(i.UnitPrice().Format())
	e.FieldStart("priceCurrency")
	e.Str(i.Currency)

	e.FieldStart("taxes")
	e.ArrStart()
	for _, t := range i.Taxes {
		e.ObjStart()
		if t.ID != "" {
			e.FieldStart("id")
			e.Str(t.ID)
		}
		e.FieldStart("name")
		e.Str(t.Name)
		e.FieldStart("percentage")
		e.Str(order.TaxKey(t.Percentage))
		e.ObjEnd()
	}
	e.ArrEnd()

	encodeTimestamps(e, i.CreatedAt, i.ModifiedAt)
	e.ObjEnd()
}

func encodeTimestamps(e *jx.Encoder, created, modified time.Time) {
	if !created.IsZero() {
		e.FieldStart("dateCreated")
		e.Str(created.UTC().Format(time.RFC3339))
	}
	if !modified.IsZero() {
		e.FieldStart("dateModified")
		e.Str(modified.UTC().Format(time.RFC3339))
	}
}

func encodeChangeLog(e *jx.Encoder, entries []audit.ChangeLog) {
	e.ArrStart()
	for _, c := range entries {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(c.ID)
		e.FieldStart("objectClass")
		e.Str(c.ObjectClass)
		e.FieldStart("objectId")
		e.Str(c.ObjectID)
		e.FieldStart("action")
		e.Str(string(c.Action))
		e.FieldStart("version")
		e.Int(c.Version)
		e.FieldStart("data")
		e.ObjStart()
		for _, key := range sortedKeys(c.Data) {
			e.FieldStart(key)
			e.Str(c.Data[key])
		}
		e.ObjEnd()
		e.FieldStart("username")
		e.Str(c.Username)
		e.FieldStart("loggedAt")
		e.Str(c.LoggedAt.UTC().Format(time.RFC3339))
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeTrail(e *jx.Encoder, trails []audit.Trail) {
	e.ArrStart()
	for _, t := range trails {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(t.ID)
		e.FieldStart("application")
		e.Str(t.Application)
		e.FieldStart("resource")
		e.Str(t.Resource)
		e.FieldStart("resourceId")
		e.Str(t.ResourceID)
		e.FieldStart("method")
		e.Str(t.Method)
		e.FieldStart("route")
		e.Str(t.Route)
		e.FieldStart("statusCode")
		e.Int(t.StatusCode)
		e.FieldStart("requestId")
		e.Str(t.RequestID)
		e.FieldStart("userAgent")
		e.Str(t.UserAgent)
		e.FieldStart("username")
		e.Str(t.Username)
		e.FieldStart("dateCreated")
		e.Str(t.CreatedAt.UTC().Format(time.RFC3339))
		e.ObjEnd()
	}
	e.ArrEnd()
}
