package order

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/order-registry/internal/domain/money"
)

// SettlementCurrency is the currency every order total is expressed in.
const SettlementCurrency = money.EUR

// Organization owns orders. Code is the four character municipality number
// or abbreviation used as the first segment of order references.
type Organization struct {
	ID   string `json:"id"`
	Code string `json:"code" validate:"required,alphanum,len=4"`
	Name string `json:"name" validate:"max=255"`
}

// Tax is a percentage based surcharge on an order item.
type Tax struct {
	ID         string          `json:"id"`
	Name       string          `json:"name" validate:"max=255"`
	Percentage decimal.Decimal `json:"percentage"`
}

// OrderItem is a single line on an order. Price is the unit price in minor
// units of Currency.
type OrderItem struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"max=255"`
	Description string `json:"description" validate:"max=2550"`
	Offer       string `json:"offer" validate:"required,url,max=255"`
	// Deprecated: replaced by Offer, see ProductOrOffer.
	Product    string `json:"product" validate:"max=255"`
	Quantity   int64  `json:"quantity" validate:"gte=0,lte=1000000"`
	Price      int64  `json:"price" validate:"gte=0,lte=1000000000000"`
	Currency   string `json:"priceCurrency" validate:"required,iso4217"`
	Taxes      []Tax  `json:"taxes"`
	CreatedAt  time.Time
	ModifiedAt time.Time

	order *Order
}

// Order returns the order this item is attached to, or nil.
func (i *OrderItem) Order() *Order {
	return i.order
}

// UnitPrice returns the unit price as Money.
func (i *OrderItem) UnitPrice() money.Money {
	return money.New(i.Price, i.Currency)
}

// LineAmount returns unit price times quantity.
func (i *OrderItem) LineAmount() (money.Money, error) {
	return i.UnitPrice().MultiplyInt(i.Quantity)
}

// ProductOrOffer returns the deprecated product reference, falling back to
// the offer when no product was set.
func (i *OrderItem) ProductOrOffer() string {
	if i.Product != "" {
		return i.Product
	}
	return i.Offer
}

func (i *OrderItem) clone() *OrderItem {
	c := *i
	c.Taxes = slices.Clone(i.Taxes)
	c.order = nil
	return &c
}

// Order is a sales order. Price and Taxes are derived from the items and
// only change through CalculateTotals.
type Order struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name" validate:"required,max=255"`
	Description        string       `json:"description" validate:"max=2550"`
	Reference          string       `json:"reference" validate:"max=255"`
	ReferenceID        int64        `json:"referenceId" validate:"gte=0"`
	Organization       Organization `json:"organization" validate:"-"`
	TargetOrganization string       `json:"targetOrganization" validate:"required,max=255"`
	Customer           string       `json:"customer" validate:"required,url,max=255"`
	Remark             string       `json:"remark"`
	CreatedAt          time.Time
	ModifiedAt         time.Time

	items []*OrderItem
	price money.Money
	taxes TaxSummary
}

// New returns an empty order with a zero total in the settlement currency.
func New() *Order {
	return &Order{
		price: money.Zero(SettlementCurrency),
		taxes: TaxSummary{},
	}
}

// Items returns the order items in collection order. The slice is a copy;
// use AddItem and RemoveItem to change the collection.
func (o *Order) Items() []*OrderItem {
	return slices.Clone(o.items)
}

// ItemByID returns the attached item with the given identifier, or nil.
func (o *Order) ItemByID(id string) *OrderItem {
	for _, item := range o.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// AddItem appends item and points its back-reference at o. Adding an item
// that is already attached to o is a no-op.
func (o *Order) AddItem(item *OrderItem) {
	if slices.Contains(o.items, item) {
		return
	}
	o.items = append(o.items, item)
	item.order = o
}

// RemoveItem detaches item. The back-reference is cleared only if it still
// points at o, so a reassigned item keeps its new owner.
func (o *Order) RemoveItem(item *OrderItem) {
	idx := slices.Index(o.items, item)
	if idx < 0 {
		return
	}
	o.items = slices.Delete(o.items, idx, idx+1)
	if item.order == o {
		item.order = nil
	}
}

// Price returns the aggregate price computed by the last CalculateTotals.
func (o *Order) Price() money.Money {
	if o.price.Currency() == "" {
		return money.Zero(SettlementCurrency)
	}
	return o.price
}

// Taxes returns a copy of the tax summary computed by the last CalculateTotals.
func (o *Order) Taxes() TaxSummary {
	return o.taxes.Clone()
}

// LoadTotals restores a persisted price and tax snapshot. Storage adapters use
// it when hydrating an order; everything else goes through CalculateTotals.
func (o *Order) LoadTotals(price money.Money, taxes TaxSummary) {
	o.price = price
	o.taxes = taxes.Clone()
}

// Clone returns a deep copy of o whose items point back at the copy.
func (o *Order) Clone() *Order {
	c := *o
	c.items = make([]*OrderItem, 0, len(o.items))
	for _, item := range o.items {
		ci := item.clone()
		ci.order = &c
		c.items = append(c.items, ci)
	}
	c.taxes = o.taxes.Clone()
	return &c
}
