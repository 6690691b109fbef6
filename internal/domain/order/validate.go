package order

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks o and its items and returns a *ValidationError listing every
// invalid field, or nil. Items must be priced in SettlementCurrency.
func Validate(o *Order) error {
	var verr ValidationError

	collect(&verr, "", validate.Struct(o))
	collect(&verr, "organization.", validate.Struct(o.Organization))

	for i, item := range o.items {
		prefix := fmt.Sprintf("items[%d].", i)
		validateItem(&verr, prefix, item)
		if item.Currency != "" && item.Currency != SettlementCurrency {
			verr.add(prefix+"priceCurrency", "must be "+SettlementCurrency)
		}
	}

	return verr.orNil()
}

// ValidateItem checks a single item.
func ValidateItem(item *OrderItem) error {
	var verr ValidationError
	validateItem(&verr, "", item)
	return verr.orNil()
}

func validateItem(verr *ValidationError, prefix string, item *OrderItem) {
	collect(verr, prefix, validate.Struct(item))
	for j, tax := range item.Taxes {
		taxPrefix := fmt.Sprintf("%staxes[%d].", prefix, j)
		collect(verr, taxPrefix, validate.Struct(tax))
		if msg := checkPercentage(tax.Percentage); msg != "" {
			verr.add(taxPrefix+"percentage", msg)
		}
	}
}

// Tax percentages are stored as NUMERIC(9, 4).
const (
	maxPercentageScale = 4
	maxPercentage      = 1000
)

func checkPercentage(p decimal.Decimal) string {
	switch {
	case p.IsNegative():
		return "must be greater than or equal to 0"
	case p.GreaterThan(decimal.NewFromInt(maxPercentage)):
		return fmt.Sprintf("must be at most %d", maxPercentage)
	case !p.Equal(p.Truncate(maxPercentageScale)):
		return fmt.Sprintf("must have at most %d decimal places", maxPercentageScale)
	}
	return ""
}

func collect(verr *ValidationError, prefix string, err error) {
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.add(strings.TrimSuffix(prefix, "."), err.Error())
		return
	}
	for _, fe := range fieldErrs {
		verr.add(prefix+fe.Field(), message(fe))
	}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "url":
		return "must be a valid URL"
	case "iso4217":
		return "must be an ISO 4217 currency code"
	case "alphanum":
		return "must contain only letters and digits"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
