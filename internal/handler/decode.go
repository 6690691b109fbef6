package handler

import (
	"io"
	"maps"
	"net/http"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/order-registry/internal/domain/order"
)

// readBody returns the request body, rejecting empty and oversized bodies.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, badRequest(err, "read body")
	}
	if len(data) == 0 {
		return nil, badRequest(errors.New("empty body"), "read body")
	}
	return data, nil
}

// DecodeCreateRequest reads an order as accepted by POST /api/orders. Read-only
// fields such as price, taxes and reference are skipped; they are derived by
// the order.
func DecodeCreateRequest(data []byte) (order.CreateRequest, error) {
	var req order.CreateRequest
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "name":
			req.Name, err = decodeString(d)
		case "description":
			req.Description, err = decodeString(d)
		case "organization":
			req.Organization, err = decodeOrganization(d)
		case "targetOrganization", "rsin":
			req.TargetOrganization, err = decodeString(d)
		case "customer":
			req.Customer, err = decodeString(d)
		case "remark":
			req.Remark, err = decodeString(d)
		case "items":
			req.Items, err = decodeItemList(d)
		default:
			return d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
	if err != nil {
		return order.CreateRequest{}, badRequest(err, "decode order")
	}
	return req, nil
}

func decodeUpdateRequest(data []byte) (order.UpdateRequest, error) {
	var req order.UpdateRequest
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "name":
			return decodeStringPtr(d, &req.Name)
		case "description":
			return decodeStringPtr(d, &req.Description)
		case "targetOrganization", "rsin":
			return decodeStringPtr(d, &req.TargetOrganization)
		case "customer":
			return decodeStringPtr(d, &req.Customer)
		case "remark":
			return decodeStringPtr(d, &req.Remark)
		case "items":
			items, err := decodeItemList(d)
			if err != nil {
				return errors.Wrap(err, "decode items")
			}
			req.Items = &items
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return order.UpdateRequest{}, badRequest(err, "decode order")
	}
	return req, nil
}

func decodeItemParams(data []byte) (order.ItemParams, error) {
	p, err := decodeItem(jx.DecodeBytes(data))
	if err != nil {
		return order.ItemParams{}, badRequest(err, "decode order item")
	}
	return p, nil
}

func decodeItemPatch(data []byte) (order.ItemPatch, error) {
	var p order.ItemPatch
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "name":
			return decodeStringPtr(d, &p.Name)
		case "description":
			return decodeStringPtr(d, &p.Description)
		case "offer":
			return decodeStringPtr(d, &p.Offer)
		case "product":
			return decodeStringPtr(d, &p.Product)
		case "priceCurrency":
			return decodeStringPtr(d, &p.Currency)
		case "quantity":
			n, err := d.Int64()
			if err != nil {
				return errors.Wrap(err, "decode quantity")
			}
			p.Quantity = &n
			return nil
		case "price":
			price, err := decodeDecimalString(d)
			if err != nil {
				return errors.Wrap(err, "decode price")
			}
			p.Price = &price
			return nil
		case "taxes":
			taxes, err := decodeTaxes(d)
			if err != nil {
				return errors.Wrap(err, "decode taxes")
			}
			p.Taxes = &taxes
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return order.ItemPatch{}, badRequest(err, "decode order item")
	}
	return p, nil
}

func decodeItemList(d *jx.Decoder) ([]order.ItemParams, error) {
	items := []order.ItemParams{}
	err := d.Arr(func(d *jx.Decoder) error {
		p, err := decodeItem(d)
		if err != nil {
			return errors.Wrapf(err, "item %d", len(items))
		}
		items = append(items, p)
		return nil
	})
	return items, err
}

// decodeItem reads a new item. The currency defaults to the settlement
// currency when omitted.
func decodeItem(d *jx.Decoder) (order.ItemParams, error) {
	p := order.ItemParams{Currency: order.SettlementCurrency}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "name":
			p.Name, err = decodeString(d)
		case "description":
			p.Description, err = decodeString(d)
		case "offer":
			p.Offer, err = decodeString(d)
		case "product":
			p.Product, err = decodeString(d)
		case "quantity":
			p.Quantity, err = d.Int64()
		case "price":
			p.Price, err = decodeDecimalString(d)
		case "priceCurrency":
			p.Currency, err = decodeString(d)
		case "taxes":
			p.Taxes, err = decodeTaxes(d)
		default:
			return d.Skip()
		}
		return errors.Wrapf(err, "decode %q", key)
	})
	return p, err
}

func decodeTaxes(d *jx.Decoder) ([]order.Tax, error) {
	taxes := []order.Tax{}
	err := d.Arr(func(d *jx.Decoder) error {
		var t order.Tax
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "id":
				t.ID, err = decodeString(d)
			case "name":
				t.Name, err = decodeString(d)
			case "percentage":
				var s string
				if s, err = decodeDecimalString(d); err == nil {
					t.Percentage, err = decimal.NewFromString(s)
				}
			default:
				return d.Skip()
			}
			return errors.Wrapf(err, "decode %q", key)
		}); err != nil {
			return errors.Wrapf(err, "tax %d", len(taxes))
		}
		taxes = append(taxes, t)
		return nil
	})
	return taxes, err
}

func decodeOrganization(d *jx.Decoder) (order.Organization, error) {
	var org order.Organization
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			org.ID, err = decodeString(d)
		case "code":
			org.Code, err = decodeString(d)
		case "name":
			org.Name, err = decodeString(d)
		default:
			return d.Skip()
		}
		return err
	})
	return org, err
}

// decodeString reads a string; null reads as "".
func decodeString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeStringPtr(d *jx.Decoder, dst **string) error {
	s, err := decodeString(d)
	if err != nil {
		return err
	}
	*dst = &s
	return nil
}

// decodeDecimalString reads a decimal given either as a string ("50.00") or
// as a JSON number (50), returning its textual form.
func decodeDecimalString(d *jx.Decoder) (string, error) {
	switch tt := d.Next(); tt {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", errors.Errorf("expected string or number, got %s", tt)
	}
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
