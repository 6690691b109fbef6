package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// changeLog lists the versions of an order or item. History outlives the
// object, so deleted objects still answer.
func (h *Handler) changeLog(class string) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		entries, err := h.changes.List(r.Context(), class, chi.URLParam(r, "id"))
		if err != nil {
			return errors.Wrap(err, "list change log")
		}
		var e jx.Encoder
		encodeChangeLog(&e, entries)
		writeJSON(w, http.StatusOK, e.Bytes())
		return nil
	}
}

func (h *Handler) auditTrail(resource string) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		trails, err := h.trails.List(r.Context(), resource, chi.URLParam(r, "id"))
		if err != nil {
			return errors.Wrap(err, "list audit trail")
		}
		var e jx.Encoder
		encodeTrail(&e, trails)
		writeJSON(w, http.StatusOK, e.Bytes())
		return nil
	}
}
