// Package handler serves the order registry JSON API.
package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/order-registry/internal/domain/audit"
	"github.com/xenking/order-registry/internal/domain/auth"
	"github.com/xenking/order-registry/internal/domain/order"
	"github.com/xenking/order-registry/pkg/httpmiddleware"
)

// APIKeyHeader carries the key that authorizes write requests.
const APIKeyHeader = "api_key"

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// Application is stored on every audit trail record.
	Application string
}

// Handler exposes orders, order items and their history over HTTP.
type Handler struct {
	orders      *order.Service
	changes     audit.ChangeLogRepository
	trails      audit.TrailRepository
	auth        *auth.Authenticator
	application string
	now         func() time.Time
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	orders *order.Service,
	changes audit.ChangeLogRepository,
	trails audit.TrailRepository,
	authenticator *auth.Authenticator,
) *Handler {
	return &Handler{
		orders:      orders,
		changes:     changes,
		trails:      trails,
		auth:        authenticator,
		application: cfg.Application,
		now:         time.Now,
	}
}

// Routes returns a router with every API route registered under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api/orders", func(r chi.Router) {
		r.Method(http.MethodGet, "/", h.handle(h.listOrders))
		r.Method(http.MethodPost, "/", h.secured(h.audited(audit.ObjectOrder, "", h.createOrder)))

		r.Route("/{id}", func(r chi.Router) {
			r.Method(http.MethodGet, "/", h.audited(audit.ObjectOrder, "id", h.getOrder))
			r.Method(http.MethodPut, "/", h.secured(h.audited(audit.ObjectOrder, "id", h.updateOrder)))
			r.Method(http.MethodDelete, "/", h.secured(h.audited(audit.ObjectOrder, "id", h.deleteOrder)))
			r.Method(http.MethodPost, "/items", h.secured(h.audited(audit.ObjectOrder, "id", h.addItem)))
			r.Method(http.MethodDelete, "/items/{itemId}", h.secured(h.audited(audit.ObjectOrder, "id", h.removeItem)))
			r.Method(http.MethodGet, "/change_log", h.handle(h.changeLog(audit.ObjectOrder)))
			r.Method(http.MethodGet, "/audit_trail", h.handle(h.auditTrail(audit.ObjectOrder)))
		})
	})

	r.Route("/api/order_items/{id}", func(r chi.Router) {
		r.Method(http.MethodGet, "/", h.audited(audit.ObjectOrderItem, "id", h.getItem))
		r.Method(http.MethodPut, "/", h.secured(h.audited(audit.ObjectOrderItem, "id", h.updateItem)))
		r.Method(http.MethodDelete, "/", h.secured(h.audited(audit.ObjectOrderItem, "id", h.deleteItem)))
		r.Method(http.MethodGet, "/change_log", h.handle(h.changeLog(audit.ObjectOrderItem)))
		r.Method(http.MethodGet, "/audit_trail", h.handle(h.auditTrail(audit.ObjectOrderItem)))
	})

	return r
}

// route returns the matched route as "METHOD /pattern", without the trailing
// slash chi leaves on mounted roots.
func route(r *http.Request) string {
	pattern := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		pattern = rctx.RoutePattern()
	}
	if len(pattern) > 1 {
		pattern = strings.TrimSuffix(pattern, "/")
	}
	return r.Method + " " + pattern
}

// handlerFunc is an endpoint that reports failures as errors; handle maps them
// to JSON error responses.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (h *Handler) handle(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			writeError(r.Context(), w, err)
		}
	})
}

// secured rejects requests without a valid API key and stores the key on the
// request context for the change log and audit trail.
func (h *Handler) secured(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := h.auth.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
		if err != nil {
			zctx.From(r.Context()).Debug("Authentication failed", zap.Error(err))
			writeError(r.Context(), w, auth.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithKey(r.Context(), info)))
	})
}

type resourceKey struct{}

// setResourceID names the resource of a request whose path carries no
// identifier yet, e.g. a create.
func setResourceID(ctx context.Context, id string) {
	if p, ok := ctx.Value(resourceKey{}).(*string); ok {
		*p = id
	}
}

// audited records an audit trail entry for the resource identified by the
// path value idParam once fn has responded.
func (h *Handler) audited(resource, idParam string, fn handlerFunc) http.Handler {
	inner := h.handle(fn)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resourceID string
		if idParam != "" {
			resourceID = chi.URLParam(r, idParam)
		}
		ctx := context.WithValue(r.Context(), resourceKey{}, &resourceID)

		rec, status := httpmiddleware.RecordStatus(w)
		inner.ServeHTTP(rec, r.WithContext(ctx))

		if resourceID == "" {
			return
		}
		t := audit.Trail{
			ID:          uuid.New().String(),
			Application: h.application,
			Resource:    resource,
			ResourceID:  resourceID,
			Method:      r.Method,
			Route:       route(r),
			StatusCode:  status(),
			RequestID:   httpmiddleware.RequestIDFromContext(ctx),
			UserAgent:   r.UserAgent(),
			Username:    auth.Username(ctx),
			CreatedAt:   h.now().UTC(),
		}
		if err := h.trails.Record(ctx, t); err != nil {
			zctx.From(ctx).Warn("Record audit trail",
				zap.String("resource", resource),
				zap.String("resource_id", resourceID),
				zap.Error(err),
			)
		}
	})
}
