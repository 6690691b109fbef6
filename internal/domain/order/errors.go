package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrNotFound          = errors.New("order not found")
	ErrItemNotFound      = errors.New("order item not found")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrReferenceConflict = errors.New("order reference already exists")
)

// InvalidQuantityError indicates an item quantity outside [0, MaxQuantity].
// It matches ErrInvalidQuantity with errors.Is.
type InvalidQuantityError struct {
	Quantity int64
}

func (e *InvalidQuantityError) Error() string {
	if e.Quantity < 0 {
		return fmt.Sprintf("quantity must be greater than or equal to 0, got %d", e.Quantity)
	}
	return fmt.Sprintf("quantity must be at most %d, got %d", MaxQuantity, e.Quantity)
}

func (e *InvalidQuantityError) Unwrap() error {
	return ErrInvalidQuantity
}

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every invalid field of an order or item.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
