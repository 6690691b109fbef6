package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/order-registry/internal/domain/audit"
	"github.com/xenking/order-registry/internal/domain/auth"
	"github.com/xenking/order-registry/internal/domain/order"
	"github.com/xenking/order-registry/internal/storage/memory"
	"github.com/xenking/order-registry/pkg/httpmiddleware"
)

const testKey = "test-api-key"

var testPepper = []byte("pepper")

type orderResponse struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Reference          string            `json:"reference"`
	ReferenceID        int64             `json:"referenceId"`
	TargetOrganization string            `json:"targetOrganization"`
	Customer           string            `json:"customer"`
	Remark             string            `json:"remark"`
	Price              string            `json:"price"`
	PriceCurrency      string            `json:"priceCurrency"`
	Taxes              map[string]string `json:"taxes"`
	Items              []itemResponse    `json:"items"`
	DateCreated        string            `json:"dateCreated"`
}

type itemResponse struct {
	ID            string `json:"id"`
	Order         string `json:"order"`
	Offer         string `json:"offer"`
	Product       string `json:"product"`
	Quantity      int64  `json:"quantity"`
	Price         string `json:"price"`
	PriceCurrency string `json:"priceCurrency"`
	Taxes         []struct {
		Name       string `json:"name"`
		Percentage string `json:"percentage"`
	} `json:"taxes"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Fields  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"fields"`
}

type changeLogResponse struct {
	ObjectClass string            `json:"objectClass"`
	ObjectID    string            `json:"objectId"`
	Action      string            `json:"action"`
	Version     int               `json:"version"`
	Data        map[string]string `json:"data"`
	Username    string            `json:"username"`
}

type trailResponse struct {
	Application string `json:"application"`
	Resource    string `json:"resource"`
	ResourceID  string `json:"resourceId"`
	Method      string `json:"method"`
	Route       string `json:"route"`
	StatusCode  int    `json:"statusCode"`
	RequestID   string `json:"requestId"`
	UserAgent   string `json:"userAgent"`
	Username    string `json:"username"`
}

const createBody = `{
	"name": "Paspoort aanvraag",
	"organization": {"code": "6666", "name": "Gemeente Utrecht"},
	"rsin": "002220647",
	"customer": "https://example.org/people/1",
	"price": "999.99",
	"items": [
		{"name": "Paspoort", "offer": "https://example.org/offers/1", "quantity": 1, "price": "10.00",
		 "priceCurrency": "EUR", "taxes": [{"name": "BTW", "percentage": 21}]},
		{"offer": "https://example.org/offers/2", "quantity": 3, "price": 5,
		 "taxes": [{"name": "BTW", "percentage": "21.00"}]}
	]
}`

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	orders := memory.NewOrderRepository()
	changes := memory.NewChangeLogRepository()
	trails := memory.NewTrailRepository()
	keys := memory.NewAPIKeyRepository(auth.APIKeyInfo{
		ID:      "key-1",
		KeyHash: auth.HashKey(testPepper, testKey),
		Name:    "loket",
	})

	svc, err := order.NewService(orders, metricnoop.NewMeterProvider(),
		order.WithTracerProvider(tracenoop.NewTracerProvider()),
		order.WithObserver(audit.NewRecorder(changes)),
	)
	require.NoError(t, err)

	h := NewHandler(HandlerConfig{Application: "orders-test"}, svc, changes, trails,
		auth.NewAuthenticator(keys, testPepper))
	return httpmiddleware.Wrap(h.Routes(), httpmiddleware.RequestID())
}

func do(t *testing.T, srv http.Handler, method, target, body string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "handler-test")
	if authorized {
		req.Header.Set(APIKeyHeader, testKey)
	}

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func create(t *testing.T, srv http.Handler) orderResponse {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/api/orders", createBody, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[orderResponse](t, w)
}

func TestCreateOrder(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/orders", createBody, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	o := decode[orderResponse](t, w)
	assert.Equal(t, "/api/orders/"+o.ID, w.Header().Get("Location"))
	assert.Regexp(t, `^6666-\d{4}-0000000001$`, o.Reference)
	assert.Equal(t, int64(1), o.ReferenceID)
	assert.Equal(t, "002220647", o.TargetOrganization)
	assert.Equal(t, "25.00", o.Price)
	assert.Equal(t, "EUR", o.PriceCurrency)
	assert.Equal(t, map[string]string{"21": "5.25"}, o.Taxes)
	assert.NotEmpty(t, o.DateCreated)

	require.Len(t, o.Items, 2)
	assert.Equal(t, "10.00", o.Items[0].Price)
	assert.Equal(t, o.ID, o.Items[0].Order)
	assert.Equal(t, "5.00", o.Items[1].Price)
	assert.Equal(t, "EUR", o.Items[1].PriceCurrency)
	assert.Equal(t, "https://example.org/offers/2", o.Items[1].Product, "product falls back to offer")
	assert.Equal(t, "21", o.Items[1].Taxes[0].Percentage)

	w = do(t, srv, http.MethodGet, "/api/orders/"+o.ID, "", false)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[orderResponse](t, w)
	assert.Equal(t, "25.00", got.Price)
	assert.Equal(t, o.Reference, got.Reference)
}

func TestCreateOrder_Unauthorized(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/orders", createBody, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"code":401,"message":"unauthorized"}`, w.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(createBody))
	req.Header.Set(APIKeyHeader, "wrong")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{
			name:   "MalformedJSON",
			body:   `{"name":`,
			status: http.StatusBadRequest,
		},
		{
			name:   "MissingCustomer",
			body:   `{"name":"x","organization":{"code":"6666"},"targetOrganization":"002220647"}`,
			status: http.StatusUnprocessableEntity,
			field:  "customer",
		},
		{
			name: "NegativeQuantity",
			body: `{"name":"x","organization":{"code":"6666"},"targetOrganization":"002220647",
				"customer":"https://example.org/people/1",
				"items":[{"offer":"https://example.org/offers/1","quantity":-1,"price":"1.00"}]}`,
			status: http.StatusUnprocessableEntity,
			field:  "quantity",
		},
		{
			name: "SubCentPrice",
			body: `{"name":"x","organization":{"code":"6666"},"targetOrganization":"002220647",
				"customer":"https://example.org/people/1",
				"items":[{"offer":"https://example.org/offers/1","quantity":1,"price":"10.001"}]}`,
			status: http.StatusUnprocessableEntity,
			field:  "price",
		},
		{
			name: "QuantityTooLarge",
			body: `{"name":"x","organization":{"code":"6666"},"targetOrganization":"002220647",
				"customer":"https://example.org/people/1",
				"items":[{"offer":"https://example.org/offers/1","quantity":92233720368547758,"price":"2.00"}]}`,
			status: http.StatusUnprocessableEntity,
			field:  "quantity",
		},
		{
			name: "PercentageScale",
			body: `{"name":"x","organization":{"code":"6666"},"targetOrganization":"002220647",
				"customer":"https://example.org/people/1",
				"items":[{"offer":"https://example.org/offers/1","quantity":1,"price":"1.00","taxes":[{"percentage":"7.12345"}]}]}`,
			status: http.StatusUnprocessableEntity,
			field:  "items[0].taxes[0].percentage",
		},
		{
			name: "PercentageTooLarge",
			body: `{"name":"x","organization":{"code":"6666"},"targetOrganization":"002220647",
				"customer":"https://example.org/people/1",
				"items":[{"offer":"https://example.org/offers/1","quantity":1,"price":"1.00","taxes":[{"percentage":"1e30"}]}]}`,
			status: http.StatusUnprocessableEntity,
			field:  "items[0].taxes[0].percentage",
		},
		{
			name: "TotalOutOfRange",
			body: `{"name":"x","organization":{"code":"6666"},"targetOrganization":"002220647",
				"customer":"https://example.org/people/1","items":[` +
				strings.TrimSuffix(strings.Repeat(`{"offer":"https://example.org/offers/1","quantity":1000000,"price":"10000000000.00"},`, 10), ",") +
				`]}`,
			status: http.StatusUnprocessableEntity,
			field:  "price",
		},
		{
			name: "PriceNotANumber",
			body: `{"name":"x","organization":{"code":"6666"},"targetOrganization":"002220647",
				"customer":"https://example.org/people/1",
				"items":[{"offer":"https://example.org/offers/1","quantity":1,"price":true}]}`,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)

			w := do(t, srv, http.MethodPost, "/api/orders", tt.body, true)
			require.Equal(t, tt.status, w.Code, w.Body.String())

			resp := decode[errorResponse](t, w)
			assert.Equal(t, tt.status, resp.Code)
			assert.NotEmpty(t, resp.Message)
			if tt.field != "" {
				var fields []string
				for _, f := range resp.Fields {
					fields = append(fields, f.Field)
				}
				assert.Contains(t, fields, tt.field)
			}
		})
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/orders/missing", "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"code":404,"message":"order not found"}`, w.Body.String())
}

func TestUpdateOrder(t *testing.T) {
	srv := newTestServer(t)
	o := create(t, srv)

	w := do(t, srv, http.MethodPut, "/api/orders/"+o.ID, `{"remark":"spoed","price":"1.00"}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode[orderResponse](t, w)
	assert.Equal(t, "spoed", got.Remark)
	assert.Equal(t, "25.00", got.Price)
	assert.Len(t, got.Items, 2)

	w = do(t, srv, http.MethodPut, "/api/orders/"+o.ID, `{"items":[]}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got = decode[orderResponse](t, w)
	assert.Equal(t, "0.00", got.Price)
	assert.Empty(t, got.Taxes)
	assert.Empty(t, got.Items)
}

func TestDeleteOrder(t *testing.T) {
	srv := newTestServer(t)
	o := create(t, srv)

	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodDelete, "/api/orders/"+o.ID, "", false).Code)

	w := do(t, srv, http.MethodDelete, "/api/orders/"+o.ID, "", true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/orders/"+o.ID, "", false).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/order_items/"+o.Items[0].ID, "", false).Code)
}

func TestAddAndRemoveItem(t *testing.T) {
	srv := newTestServer(t)
	o := create(t, srv)

	w := do(t, srv, http.MethodPost, "/api/orders/"+o.ID+"/items",
		`{"offer":"https://example.org/offers/3","quantity":2,"price":"2.50","taxes":[{"name":"BTW laag","percentage":"9"}]}`, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	got := decode[orderResponse](t, w)
	assert.Equal(t, "30.00", got.Price)
	assert.Equal(t, map[string]string{"9": "0.45", "21": "5.25"}, got.Taxes)
	require.Len(t, got.Items, 3)
	added := got.Items[2]
	assert.Equal(t, "/api/order_items/"+added.ID, w.Header().Get("Location"))

	w = do(t, srv, http.MethodDelete, "/api/orders/"+o.ID+"/items/"+added.ID, "", true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got = decode[orderResponse](t, w)
	assert.Equal(t, "25.00", got.Price)
	assert.Equal(t, map[string]string{"21": "5.25"}, got.Taxes)

	w = do(t, srv, http.MethodDelete, "/api/orders/"+o.ID+"/items/"+added.ID, "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"code":404,"message":"order item not found"}`, w.Body.String())
}

func TestOrderItem(t *testing.T) {
	srv := newTestServer(t)
	o := create(t, srv)
	itemID := o.Items[0].ID

	w := do(t, srv, http.MethodGet, "/api/order_items/"+itemID, "", false)
	require.Equal(t, http.StatusOK, w.Code)
	item := decode[itemResponse](t, w)
	assert.Equal(t, o.ID, item.Order)
	assert.Equal(t, "10.00", item.Price)

	w = do(t, srv, http.MethodPut, "/api/order_items/"+itemID, `{"quantity":10}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	item = decode[itemResponse](t, w)
	assert.Equal(t, int64(10), item.Quantity)

	got := decode[orderResponse](t, do(t, srv, http.MethodGet, "/api/orders/"+o.ID, "", false))
	assert.Equal(t, "115.00", got.Price)
	assert.Equal(t, map[string]string{"21": "24.15"}, got.Taxes)

	w = do(t, srv, http.MethodPut, "/api/order_items/"+itemID, `{"quantity":-2}`, true)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = do(t, srv, http.MethodPut, "/api/order_items/"+itemID, `{"priceCurrency":"USD"}`, true)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, srv, http.MethodDelete, "/api/order_items/"+itemID, "", true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/order_items/"+itemID, "", false).Code)

	got = decode[orderResponse](t, do(t, srv, http.MethodGet, "/api/orders/"+o.ID, "", false))
	assert.Equal(t, "15.00", got.Price)
	assert.Equal(t, map[string]string{"21": "3.15"}, got.Taxes)
}

func TestListOrders(t *testing.T) {
	srv := newTestServer(t)
	first := create(t, srv)
	second := create(t, srv)

	w := do(t, srv, http.MethodGet, "/api/orders", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[[]orderResponse](t, w)
	require.Len(t, all, 2)

	w = do(t, srv, http.MethodGet, "/api/orders?reference="+second.Reference, "", false)
	require.Equal(t, http.StatusOK, w.Code)
	byRef := decode[[]orderResponse](t, w)
	require.Len(t, byRef, 1)
	assert.Equal(t, second.ID, byRef[0].ID)

	w = do(t, srv, http.MethodGet, "/api/orders?order%5BdateCreated%5D=desc&limit=1", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	newest := decode[[]orderResponse](t, w)
	require.Len(t, newest, 1)
	assert.Equal(t, second.ID, newest[0].ID)

	w = do(t, srv, http.MethodGet, "/api/orders?offset=1", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	rest := decode[[]orderResponse](t, w)
	require.Len(t, rest, 1)
	assert.Equal(t, second.ID, rest[0].ID)

	w = do(t, srv, http.MethodGet, "/api/orders?limit=1", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	oldest := decode[[]orderResponse](t, w)
	require.Len(t, oldest, 1)
	assert.Equal(t, first.ID, oldest[0].ID)

	w = do(t, srv, http.MethodGet, "/api/orders?customer=https://example.org/people/2", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/orders?limit=0", "", false).Code)
}

func TestChangeLog(t *testing.T) {
	srv := newTestServer(t)
	o := create(t, srv)
	itemID := o.Items[0].ID

	require.Equal(t, http.StatusOK,
		do(t, srv, http.MethodPut, "/api/order_items/"+itemID, `{"quantity":10}`, true).Code)

	w := do(t, srv, http.MethodGet, "/api/orders/"+o.ID+"/change_log", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	orderLog := decode[[]changeLogResponse](t, w)
	require.Len(t, orderLog, 2)
	assert.Equal(t, "create", orderLog[0].Action)
	assert.Equal(t, 1, orderLog[0].Version)
	assert.Equal(t, "loket", orderLog[0].Username)
	assert.Equal(t, "update", orderLog[1].Action)
	assert.Equal(t, 2, orderLog[1].Version)
	assert.Equal(t, "115.00", orderLog[1].Data["price"])

	w = do(t, srv, http.MethodGet, "/api/order_items/"+itemID+"/change_log", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	itemLog := decode[[]changeLogResponse](t, w)
	require.Len(t, itemLog, 2)
	assert.Equal(t, "OrderItem", itemLog[1].ObjectClass)
	assert.Equal(t, itemID, itemLog[1].ObjectID)
	assert.Equal(t, map[string]string{"quantity": "10"}, itemLog[1].Data)
}

func TestAuditTrail(t *testing.T) {
	srv := newTestServer(t)
	o := create(t, srv)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/orders/"+o.ID, "", false).Code)
	require.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodDelete, "/api/orders/"+o.ID, "", false).Code)

	w := do(t, srv, http.MethodGet, "/api/orders/"+o.ID+"/audit_trail", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	trail := decode[[]trailResponse](t, w)
	require.Len(t, trail, 2, "unauthorized requests are not recorded")

	assert.Equal(t, trailResponse{
		Application: "orders-test",
		Resource:    "Order",
		ResourceID:  o.ID,
		Method:      http.MethodPost,
		Route:       "POST /api/orders",
		StatusCode:  http.StatusCreated,
		RequestID:   trail[0].RequestID,
		UserAgent:   "handler-test",
		Username:    "loket",
	}, trail[0])
	assert.NotEmpty(t, trail[0].RequestID)

	assert.Equal(t, "GET /api/orders/{id}", trail[1].Route)
	assert.Equal(t, http.StatusOK, trail[1].StatusCode)
	assert.Equal(t, "anonymous", trail[1].Username)

	itemID := o.Items[0].ID
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/order_items/"+itemID, "", false).Code)
	w = do(t, srv, http.MethodGet, "/api/order_items/"+itemID+"/audit_trail", "", false)
	itemTrail := decode[[]trailResponse](t, w)
	require.Len(t, itemTrail, 1)
	assert.Equal(t, "OrderItem", itemTrail[0].Resource)
	assert.Equal(t, "GET /api/order_items/{id}", itemTrail[0].Route)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPatch, "/api/orders", "", true)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = do(t, srv, http.MethodGet, "/api/unknown", "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestParseFilter(t *testing.T) {
	f, err := parseFilter(map[string][]string{
		"rsin":          {"002220647"},
		"organization":  {"6666"},
		"createdAfter":  {"2019-01-01"},
		"createdBefore": {"2019-12-31T23:59:59Z"},
		"limit":         {"500"},
		"offset":        {"10"},
	})
	require.NoError(t, err)
	assert.Equal(t, "002220647", f.TargetOrganization)
	assert.Equal(t, "6666", f.Organization)
	assert.Equal(t, 2019, f.CreatedAfter.Year())
	assert.Equal(t, 23, f.CreatedBefore.Hour())
	assert.Equal(t, maxPageSize, f.Limit)
	assert.Equal(t, 10, f.Offset)
	assert.False(t, f.NewestFirst)

	f, err = parseFilter(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultPageSize, f.Limit)

	for _, q := range []map[string][]string{
		{"createdAfter": {"yesterday"}},
		{"order[dateCreated]": {"sideways"}},
		{"offset": {"-1"}},
	} {
		_, err := parseFilter(q)
		require.Error(t, err)
		var bad *BadRequestError
		assert.ErrorAs(t, err, &bad)
	}
}
