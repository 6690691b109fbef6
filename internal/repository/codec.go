package repository

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/order-registry/internal/domain/money"
	"github.com/xenking/order-registry/internal/domain/order"
)

// encodeTaxSummary stores the summary as {"21": 525}, amounts in minor units.
func encodeTaxSummary(s order.TaxSummary) []byte {
	var e jx.Encoder
	e.ObjStart()
	for _, key := range s.Keys() {
		e.FieldStart(key)
		e.Int64(s[key].Amount())
	}
	e.ObjEnd()
	return e.Bytes()
}

func decodeTaxSummary(data []byte, currency string) (order.TaxSummary, error) {
	s := order.TaxSummary{}
	if len(data) == 0 {
		return s, nil
	}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		amount, err := d.Int64()
		if err != nil {
			return err
		}
		s[key] = money.New(amount, currency)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode tax summary")
	}
	return s, nil
}

func encodeStringMap(m map[string]string) []byte {
	var e jx.Encoder
	e.ObjStart()
	for k, v := range m {
		e.FieldStart(k)
		e.Str(v)
	}
	e.ObjEnd()
	return e.Bytes()
}

func decodeStringMap(data []byte) (map[string]string, error) {
	m := make(map[string]string)
	if len(data) == 0 {
		return m, nil
	}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if d.Next() == jx.Null {
			m[key] = ""
			return d.Null()
		}
		v, err := d.Str()
		if err != nil {
			return err
		}
		m[key] = v
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode change data")
	}
	return m, nil
}
