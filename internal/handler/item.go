package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) error {
	item, err := h.orders.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	var e jx.Encoder
	encodeItem(&e, item)
	writeJSON(w, http.StatusOK, e.Bytes())
	return nil
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) error {
	data, err := readBody(w, r)
	if err != nil {
		return err
	}
	p, err := decodeItemPatch(data)
	if err != nil {
		return err
	}
	item, err := h.orders.UpdateItem(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		return err
	}
	var e jx.Encoder
	encodeItem(&e, item)
	writeJSON(w, http.StatusOK, e.Bytes())
	return nil
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) error {
	if _, err := h.orders.DeleteItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
