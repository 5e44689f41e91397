package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, code int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func (h *Handler) imageURL(image string) string {
	if image == "" || h.imageBaseURL == "" || strings.Contains(image, "://") {
		return image
	}
	return strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(image, "/")
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, p.Price) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(p.Quantity) })
		e.Field("ownerId", func(e *jx.Encoder) { e.Str(p.OwnerID) })
		e.Field("image", func(e *jx.Encoder) { e.Str(h.imageURL(p.Image)) })
	})
}

func (h *Handler) encodeProducts(e *jx.Encoder, products []product.Product) {
	e.Arr(func(e *jx.Encoder) {
		for _, p := range products {
			h.encodeProduct(e, p)
		}
	})
}

func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("date", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("state", func(e *jx.Encoder) { e.Str(string(o.State)) })
		e.Field("totalPrice", func(e *jx.Encoder) { encodeMoney(e, o.Total) })
		e.Field("version", func(e *jx.Encoder) { e.Int(o.Version) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					h.encodeLineItem(e, it)
				}
			})
		})
	})
}

func (h *Handler) encodeLineItem(e *jx.Encoder, it order.LineItem) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("productId", func(e *jx.Encoder) { e.Int64(it.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, it.UnitPrice) })
		if it.Product != nil {
			e.Field("productName", func(e *jx.Encoder) { e.Str(it.Product.Name) })
			e.Field("product", func(e *jx.Encoder) { h.encodeProduct(e, *it.Product) })
		}
	})
}

func (h *Handler) encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range orders {
			h.encodeOrder(e, &orders[i])
		}
	})
}

func encodeInvoice(e *jx.Encoder, inv *order.Invoice) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Int64(inv.OrderID) })
		e.Field("userName", func(e *jx.Encoder) { e.Str(inv.UserName) })
		e.Field("orderDate", func(e *jx.Encoder) { encodeTime(e, inv.OrderDate) })
		e.Field("totalPrice", func(e *jx.Encoder) { encodeMoney(e, inv.TotalPrice) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range inv.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productName", func(e *jx.Encoder) { e.Str(it.ProductName) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("price", func(e *jx.Encoder) { encodeMoney(e, it.Price) })
						e.Field("total", func(e *jx.Encoder) { encodeMoney(e, it.Total) })
					})
				}
			})
		})
	})
}

func (h *Handler) encodeCart(e *jx.Encoder, lines []cart.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("count", func(e *jx.Encoder) { e.Int(cart.Count(lines)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Int64(l.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, l.Subtotal()) })
						e.Field("product", func(e *jx.Encoder) { h.encodeProduct(e, l.Product) })
					})
				}
			})
		})
	})
}

// decodeOrder reads an order payload as sent to POST and PUT /api/orders.
// Unknown fields are ignored.
func decodeOrder(r io.Reader) (*order.Order, error) {
	o := &order.Order{}
	d := jx.Decode(io.LimitReader(r, maxBodyBytes), 4096)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			o.ID, err = d.Int64()
		case "userId":
			o.UserID, err = d.Str()
		case "date":
			o.CreatedAt, err = decodeTime(d)
		case "state":
			var s string
			s, err = d.Str()
			o.State = order.State(s)
		case "totalPrice":
			o.Total, err = decodeMoney(d)
		case "version":
			o.Version, err = d.Int()
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				it, err := decodeLineItem(d)
				if err != nil {
					return err
				}
				o.Items = append(o.Items, it)
				return nil
			})
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err != nil {
		return nil, badRequest("invalid order body: %s", err)
	}
	return o, nil
}

func decodeLineItem(d *jx.Decoder) (order.LineItem, error) {
	var it order.LineItem
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "productId":
			it.ProductID, err = d.Int64()
		case "quantity":
			it.Quantity, err = d.Int()
		case "price":
			it.UnitPrice, err = decodeMoney(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err != nil {
		return it, err
	}
	if it.Quantity <= 0 {
		return it, errors.Errorf("product %d: quantity must be positive", it.ProductID)
	}
	return it, nil
}

// decodeMoney accepts both 12.5 and "12.50".
func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = string(n)
	}
	return decimal.NewFromString(raw)
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	if d.Next() == jx.Null {
		return time.Time{}, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}
