package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
)

// InvoiceItem is one printed invoice line.
type InvoiceItem struct {
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	Total       decimal.Decimal
}

// Invoice is the printable summary of an order.
type Invoice struct {
	OrderID    int64
	UserName   string
	OrderDate  time.Time
	TotalPrice decimal.Decimal
	Items      []InvoiceItem
}

// NewInvoice renders o for user. Lines are priced at their checkout unit price.
func NewInvoice(o *Order, user auth.User) Invoice {
	name := user.UserName
	if name == "" {
		name = o.UserID
	}

	items := make([]InvoiceItem, len(o.Items))
	for i, it := range o.Items {
		productName := ""
		if it.Product != nil {
			productName = it.Product.Name
		}
		items[i] = InvoiceItem{
			ProductName: productName,
			Quantity:    it.Quantity,
			Price:       it.UnitPrice,
			Total:       it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2),
		}
	}

	return Invoice{
		OrderID:    o.ID,
		UserName:   name,
		OrderDate:  o.CreatedAt,
		TotalPrice: o.Total,
		Items:      items,
	}
}
