//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"testing"
)

const testAPIKey = "integration-test-key"

var referencePattern = regexp.MustCompile(`^6666-\d{4}-\d{10}$`)

func sampleOrder() orderRequest {
	return orderRequest{
		Name:               "Rijbewijs aanvraag",
		Organization:       organization{Code: "6666", Name: "Gemeente Utrecht"},
		TargetOrganization: "002220647",
		Customer:           "https://example.org/people/42",
		Items: []itemRequest{
			{Name: "Rijbewijs", Offer: "https://example.org/offers/rijbewijs", Quantity: 1, Price: "10.00", Taxes: []tax{{Name: "BTW", Percentage: "21"}}},
			{Name: "Pasfoto", Offer: "https://example.org/offers/pasfoto", Quantity: 3, Price: "5.00", Taxes: []tax{{Name: "BTW", Percentage: "21.00"}}},
		},
	}
}

func createOrder(t *testing.T) orderResponse {
	t.Helper()

	resp := doJSON(t, http.MethodPost, "/api/orders", sampleOrder(), testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	return decodeJSON[orderResponse](t, resp)
}

func TestCreateOrder_NoAuth(t *testing.T) {
	resp := doJSON(t, http.MethodPost, "/api/orders", sampleOrder(), "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_InvalidKey(t *testing.T) {
	resp := doJSON(t, http.MethodPost, "/api/orders", sampleOrder(), "wrong-key")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_ValidationError(t *testing.T) {
	req := sampleOrder()
	req.Customer = ""
	resp := doJSON(t, http.MethodPost, "/api/orders", req, testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	body := decodeJSON[errorResponse](t, resp)
	if len(body.Fields) == 0 || body.Fields[0].Field != "customer" {
		t.Errorf("fields: got %+v, want customer", body.Fields)
	}
}

func TestCreateOrder_SubCentPrice(t *testing.T) {
	req := sampleOrder()
	req.Items[0].Price = "10.005"
	resp := doJSON(t, http.MethodPost, "/api/orders", req, testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_PercentageScale(t *testing.T) {
	req := sampleOrder()
	req.Items[0].Taxes = []tax{{Name: "BTW", Percentage: "7.12345"}}
	resp := doJSON(t, http.MethodPost, "/api/orders", req, testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	body := decodeJSON[errorResponse](t, resp)
	if len(body.Fields) == 0 || body.Fields[0].Field != "items[0].taxes[0].percentage" {
		t.Errorf("fields: got %+v, want items[0].taxes[0].percentage", body.Fields)
	}
}

func TestCreateOrder_Totals(t *testing.T) {
	order := createOrder(t)

	if !referencePattern.MatchString(order.Reference) {
		t.Errorf("reference: got %q", order.Reference)
	}
	if order.Price != "25.00" || order.PriceCurrency != "EUR" {
		t.Errorf("price: got %s %s, want 25.00 EUR", order.Price, order.PriceCurrency)
	}
	if len(order.Taxes) != 1 || order.Taxes["21"] != "5.25" {
		t.Errorf("taxes: got %v, want {21: 5.25}", order.Taxes)
	}

	resp := doGet(t, "/api/orders/"+order.ID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	stored := decodeJSON[orderResponse](t, resp)
	if stored.Price != "25.00" || stored.Taxes["21"] != "5.25" {
		t.Errorf("stored totals: got %s %v", stored.Price, stored.Taxes)
	}
	if len(stored.Items) != 2 {
		t.Errorf("items: got %d, want 2", len(stored.Items))
	}
}

func TestCreateOrder_SequentialReferences(t *testing.T) {
	first := createOrder(t)
	second := createOrder(t)

	if second.ReferenceID <= first.ReferenceID {
		t.Errorf("reference ids: got %d then %d", first.ReferenceID, second.ReferenceID)
	}
}

func TestOrderItems(t *testing.T) {
	order := createOrder(t)

	resp := doJSON(t, http.MethodPost, "/api/orders/"+order.ID+"/items",
		itemRequest{Offer: "https://example.org/offers/leges", Quantity: 2, Price: "2.50", Taxes: []tax{{Percentage: "9"}}},
		testAPIKey)
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("add item: expected 201, got %d", resp.StatusCode)
	}
	withItem := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if withItem.Price != "30.00" || withItem.Taxes["9"] != "0.45" {
		t.Errorf("after add: got %s %v", withItem.Price, withItem.Taxes)
	}

	itemID := order.Items[0].ID
	resp = doJSON(t, http.MethodPut, "/api/order_items/"+itemID, map[string]any{"quantity": 10}, testAPIKey)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("update item: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doGet(t, "/api/orders/"+order.ID)
	updated := decodeJSON[orderResponse](t, resp)
	resp.Body.Close()
	if updated.Price != "120.00" || updated.Taxes["21"] != "24.15" {
		t.Errorf("after update: got %s %v", updated.Price, updated.Taxes)
	}

	resp = doJSON(t, http.MethodDelete, "/api/order_items/"+itemID, nil, testAPIKey)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete item: expected 204, got %d", resp.StatusCode)
	}

	resp = doGet(t, "/api/order_items/"+itemID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted item: expected 404, got %d", resp.StatusCode)
	}
}

func TestDeleteOrder(t *testing.T) {
	order := createOrder(t)

	resp := doJSON(t, http.MethodDelete, "/api/orders/"+order.ID, nil, testAPIKey)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp = doGet(t, "/api/orders/"+order.ID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHistory(t *testing.T) {
	order := createOrder(t)

	resp := doJSON(t, http.MethodPut, "/api/orders/"+order.ID, map[string]any{"remark": "spoed"}, testAPIKey)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}

	resp = doGet(t, "/api/orders/"+order.ID+"/change_log")
	changes := decodeJSON[[]changeLogResponse](t, resp)
	resp.Body.Close()
	if len(changes) != 2 {
		t.Fatalf("change log: got %d entries, want 2", len(changes))
	}
	if changes[1].Version != 2 || changes[1].Data["remark"] != "spoed" || len(changes[1].Data) != 1 {
		t.Errorf("second version: got %+v", changes[1])
	}

	resp = doGet(t, "/api/orders/"+order.ID+"/audit_trail")
	trail := decodeJSON[[]trailResponse](t, resp)
	resp.Body.Close()
	if len(trail) != 2 {
		t.Fatalf("audit trail: got %d records, want 2", len(trail))
	}
	if trail[0].Route != "POST /api/orders" || trail[0].StatusCode != http.StatusCreated || trail[0].RequestID == "" {
		t.Errorf("create record: got %+v", trail[0])
	}
	if trail[1].Method != http.MethodPut || trail[1].Username != "Default test key" {
		t.Errorf("update record: got %+v", trail[1])
	}
}

func TestListOrders_Filter(t *testing.T) {
	order := createOrder(t)

	resp := doGet(t, "/api/orders?reference="+order.Reference)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	orders := decodeJSON[[]orderResponse](t, resp)
	if len(orders) != 1 || orders[0].ID != order.ID {
		t.Errorf("got %d orders, want only %s", len(orders), order.ID)
	}
}
