package order

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-registry/internal/domain/money"
)

// TaxSummary maps a canonical tax percentage (see TaxKey) to the tax charged
// at that percentage across all items of an order.
type TaxSummary map[string]money.Money

// TaxKey returns the canonical summary key of a percentage, so 21, 21.0 and
// 21.00 share the key "21".
func TaxKey(percentage decimal.Decimal) string {
	return percentage.String()
}

// Get returns the accumulated tax for percentage.
func (s TaxSummary) Get(percentage decimal.Decimal) (money.Money, bool) {
	m, ok := s[TaxKey(percentage)]
	return m, ok
}

// Keys returns the percentages in ascending numeric order.
func (s TaxSummary) Keys() []string {
	keys := slices.Collect(maps.Keys(s))
	slices.SortFunc(keys, func(a, b string) int {
		da, errA := decimal.NewFromString(a)
		db, errB := decimal.NewFromString(b)
		if errA != nil || errB != nil {
			return cmp.Compare(a, b)
		}
		return da.Cmp(db)
	})
	return keys
}

// Equal reports whether both summaries hold the same entries.
func (s TaxSummary) Equal(other TaxSummary) bool {
	return maps.EqualFunc(s, other, money.Money.Equal)
}

// Clone returns a copy of s. Cloning nil yields an empty summary.
func (s TaxSummary) Clone() TaxSummary {
	c := make(TaxSummary, len(s))
	maps.Copy(c, s)
	return c
}

// CalculateTotals recomputes the aggregate price and tax summary from the
// current items. Each line amount is unit price times quantity; each tax is
// the line amount times percentage/100, rounded half-to-even to the minor unit
// and accumulated per percentage.
//
// Items in a currency other than SettlementCurrency fail with
// money.ErrCurrencyMismatch and amounts beyond the int64 range with
// money.ErrOverflow; in both cases the previous totals are kept.
// The calculation is idempotent.
func (o *Order) CalculateTotals() error {
	total := money.Zero(SettlementCurrency)
	taxes := TaxSummary{}

	for _, item := range o.items {
		line, err := item.LineAmount()
		if err != nil {
			return errors.Wrapf(err, "line amount of item %q", item.ID)
		}
		if total, err = total.Add(line); err != nil {
			return errors.Wrapf(err, "add item %q", item.ID)
		}

		for _, tax := range item.Taxes {
			key := TaxKey(tax.Percentage)
			amount, err := line.Multiply(tax.Percentage.Shift(-2))
			if err != nil {
				return errors.Wrapf(err, "%s%% tax of item %q", key, item.ID)
			}

			acc, ok := taxes[key]
			if !ok {
				taxes[key] = amount
				continue
			}
			if acc, err = acc.Add(amount); err != nil {
				return errors.Wrapf(err, "add %s%% tax of item %q", key, item.ID)
			}
			taxes[key] = acc
		}
	}

	o.price = total
	o.taxes = taxes
	return nil
}

// BeforeSave is the pre-persist hook. Repositories call it immediately before
// every create and update: it recomputes the totals and stamps timestamps on
// the order and its items.
func (o *Order) BeforeSave(now time.Time) error {
	if err := o.CalculateTotals(); err != nil {
		return errors.Wrap(err, "calculate totals")
	}

	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.ModifiedAt = now
	for _, item := range o.items {
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.ModifiedAt = now
	}
	return nil
}
