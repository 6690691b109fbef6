package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-registry/internal/domain/auth"
	"github.com/xenking/order-registry/internal/domain/money"
	"github.com/xenking/order-registry/internal/domain/order"
)

// BadRequestError reports a request that could not be decoded.
type BadRequestError struct {
	Err error
}

func (e *BadRequestError) Error() string {
	return "bad request: " + e.Err.Error()
}

func (e *BadRequestError) Unwrap() error {
	return e.Err
}

func badRequest(err error, msg string) error {
	return &BadRequestError{Err: errors.Wrap(err, msg)}
}

// writeError maps err to a status code and writes
// {"code": status, "message": ..., "fields": [...]}. Unexpected errors are
// logged and reported without detail.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"
	var fields []order.FieldError

	var (
		badReq     *BadRequestError
		validation *order.ValidationError
		quantity   *order.InvalidQuantityError
		mismatch   *money.CurrencyMismatchError
	)
	switch {
	case errors.As(err, &badReq):
		status, msg = http.StatusBadRequest, badReq.Error()
	case errors.Is(err, auth.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, order.ErrNotFound), errors.Is(err, order.ErrItemNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, order.ErrReferenceConflict):
		status, msg = http.StatusConflict, err.Error()
	case errors.As(err, &validation):
		status, msg = http.StatusUnprocessableEntity, "validation failed"
		fields = validation.Fields
	case errors.As(err, &quantity):
		status, msg = http.StatusUnprocessableEntity, quantity.Error()
		fields = []order.FieldError{{Field: "quantity", Message: quantity.Error()}}
	case errors.Is(err, money.ErrInvalidPrice):
		status, msg = http.StatusUnprocessableEntity, err.Error()
		fields = []order.FieldError{{Field: "price", Message: err.Error()}}
	case errors.As(err, &mismatch):
		status, msg = http.StatusUnprocessableEntity, mismatch.Error()
		fields = []order.FieldError{{Field: "priceCurrency", Message: mismatch.Error()}}
	case errors.Is(err, money.ErrInvalidCurrency):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, money.ErrOverflow):
		status, msg = http.StatusUnprocessableEntity, err.Error()
		fields = []order.FieldError{{Field: "price", Message: err.Error()}}
	default:
		zctx.From(ctx).Error("Request failed", zap.Error(err))
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	if len(fields) > 0 {
		e.FieldStart("fields")
		e.ArrStart()
		for _, f := range fields {
			e.ObjStart()
			e.FieldStart("field")
			e.Str(f.Field)
			e.FieldStart("message")
			e.Str(f.Message)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjEnd()

	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
