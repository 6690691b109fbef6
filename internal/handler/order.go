package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/order-registry/internal/domain/order"
)

const (
	defaultPageSize = 30
	maxPageSize     = 100
)

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) error {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		return err
	}
	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		return errors.Wrap(err, "list orders")
	}

	var e jx.Encoder
	e.ArrStart()
	for _, o := range orders {
		encodeOrder(&e, o)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, e.Bytes())
	return nil
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) error {
	data, err := readBody(w, r)
	if err != nil {
		return err
	}
	req, err := DecodeCreateRequest(data)
	if err != nil {
		return err
	}
	o, err := h.orders.Create(r.Context(), req)
	if err != nil {
		return err
	}
	setResourceID(r.Context(), o.ID)

	w.Header().Set("Location", "/api/orders/"+o.ID)
	writeOrder(w, http.StatusCreated, o)
	return nil
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) error {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	writeOrder(w, http.StatusOK, o)
	return nil
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) error {
	data, err := readBody(w, r)
	if err != nil {
		return err
	}
	req, err := decodeUpdateRequest(data)
	if err != nil {
		return err
	}
	o, err := h.orders.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		return err
	}
	writeOrder(w, http.StatusOK, o)
	return nil
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) error {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) error {
	data, err := readBody(w, r)
	if err != nil {
		return err
	}
	p, err := decodeItemParams(data)
	if err != nil {
		return err
	}
	o, item, err := h.orders.AddItem(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		return err
	}
	w.Header().Set("Location", "/api/order_items/"+item.ID)
	writeOrder(w, http.StatusCreated, o)
	return nil
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) error {
	o, err := h.orders.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	if err != nil {
		return err
	}
	writeOrder(w, http.StatusOK, o)
	return nil
}

func writeOrder(w http.ResponseWriter, status int, o *order.Order) {
	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, status, e.Bytes())
}

// parseFilter reads the collection filters. Dates accept RFC 3339 timestamps
// or plain dates.
func parseFilter(q url.Values) (order.Filter, error) {
	f := order.Filter{
		Reference:          q.Get("reference"),
		TargetOrganization: q.Get("targetOrganization"),
		Customer:           q.Get("customer"),
		Organization:       q.Get("organization"),
		Limit:              defaultPageSize,
	}
	if f.TargetOrganization == "" {
		f.TargetOrganization = q.Get("rsin")
	}

	var err error
	if f.CreatedAfter, err = parseTime(q.Get("createdAfter")); err != nil {
		return order.Filter{}, badRequest(err, "createdAfter")
	}
	if f.CreatedBefore, err = parseTime(q.Get("createdBefore")); err != nil {
		return order.Filter{}, badRequest(err, "createdBefore")
	}

	switch dir := q.Get("order[dateCreated]"); dir {
	case "", "asc":
	case "desc":
		f.NewestFirst = true
	default:
		return order.Filter{}, badRequest(errors.Errorf("unknown direction %q", dir), "order[dateCreated]")
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return order.Filter{}, badRequest(errors.Errorf("invalid value %q", v), "limit")
		}
		f.Limit = min(n, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return order.Filter{}, badRequest(errors.Errorf("invalid value %q", v), "offset")
		}
		f.Offset = n
	}
	return f, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}
