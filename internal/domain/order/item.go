package order

import (
	"github.com/go-faster/errors"

	"github.com/xenking/order-registry/internal/domain/money"
)

// Item bounds. Their product stays well inside int64 minor units.
const (
	MaxQuantity = 1_000_000
	// MaxUnitPrice is in minor units, i.e. 10 billion EUR.
	MaxUnitPrice = 1_000_000_000_000
)

// ItemParams holds the caller-supplied fields of a new order item. Price is a
// decimal string in major units of Currency, e.g. "50.00".
type ItemParams struct {
	Name        string
	Description string
	Offer       string
	Product     string
	Quantity    int64
	Price       string
	Currency    string
	Taxes       []Tax
}

// ItemPatch holds optional replacements for an existing item's fields.
type ItemPatch struct {
	Name        *string
	Description *string
	Offer       *string
	Product     *string
	Quantity    *int64
	Price       *string
	Currency    *string
	Taxes       *[]Tax
}

// NewItem builds an unattached item, converting the price to minor units.
// It fails with an *InvalidQuantityError for quantities outside
// [0, MaxQuantity] and with money.ErrInvalidPrice for unparsable, negative or
// too large prices.
func NewItem(id string, p ItemParams) (*OrderItem, error) {
	price, err := parsePrice(p.Price, p.Currency)
	if err != nil {
		return nil, err
	}
	if err := checkQuantity(p.Quantity); err != nil {
		return nil, err
	}
	return &OrderItem{
		ID:          id,
		Name:        p.Name,
		Description: p.Description,
		Offer:       p.Offer,
		Product:     p.Product,
		Quantity:    p.Quantity,
		Price:       price.Amount(),
		Currency:    p.Currency,
		Taxes:       p.Taxes,
	}, nil
}

// Apply updates the item in place. Quantity and price are checked before any
// field is written, so a rejected patch leaves the item unchanged. A currency
// change must come with a price in that currency.
func (i *OrderItem) Apply(p ItemPatch) error {
	currency := i.Currency
	if p.Currency != nil {
		currency = *p.Currency
	}

	price := i.Price
	switch {
	case p.Price != nil:
		m, err := parsePrice(*p.Price, currency)
		if err != nil {
			return err
		}
		price = m.Amount()
	case currency != i.Currency:
		return errors.Wrapf(money.ErrInvalidPrice, "changing currency to %s requires a price", currency)
	}
	if p.Quantity != nil {
		if err := checkQuantity(*p.Quantity); err != nil {
			return err
		}
	}

	i.Currency = currency
	i.Price = price
	if p.Quantity != nil {
		i.Quantity = *p.Quantity
	}
	if p.Name != nil {
		i.Name = *p.Name
	}
	if p.Description != nil {
		i.Description = *p.Description
	}
	if p.Offer != nil {
		i.Offer = *p.Offer
	}
	if p.Product != nil {
		i.Product = *p.Product
	}
	if p.Taxes != nil {
		i.Taxes = *p.Taxes
	}
	return nil
}

func parsePrice(price, currency string) (money.Money, error) {
	m, err := money.Parse(price, currency)
	if err != nil {
		return money.Money{}, err
	}
	if m.Amount() < 0 {
		return money.Money{}, errors.Wrapf(money.ErrInvalidPrice, "price %s is negative", price)
	}
	if m.Amount() > MaxUnitPrice {
		return money.Money{}, errors.Wrapf(money.ErrInvalidPrice, "price %s is too large", price)
	}
	return m, nil
}

func checkQuantity(q int64) error {
	if q < 0 || q > MaxQuantity {
		return &InvalidQuantityError{Quantity: q}
	}
	return nil
}
