// Package pricing computes order totals from requested lines and a catalog snapshot.
package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopdash/internal/domain"
)

// MaxQuantity bounds a single line and the merged quantity of one product.
const MaxQuantity = math.MaxInt32

// Line is a requested product and quantity, as submitted from a cart.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Quote is the result of pricing a set of lines.
type Quote struct {
	Items      []domain.OrderItem
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal
}

type Engine struct {
	taxRate decimal.Decimal
}

func NewEngine() *Engine {
	return &Engine{taxRate: domain.TaxRate}
}

// Validate checks the shape of lines before any catalog lookup.
func Validate(lines []Line) error {
	verr := &domain.ValidationError{}
	if len(lines) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for i, l := range lines {
		if l.ProductID == "" {
			verr.Add(fmt.Sprintf("items[%d].product_id", i), "is required")
		}
		if l.Quantity < 1 {
			verr.Add(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		} else if l.Quantity > MaxQuantity {
			verr.Add(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("must be at most %d", MaxQuantity))
		}
	}
	return verr.OrNil()
}

// ProductIDs returns the distinct product ids in request order.
func ProductIDs(lines []Line) []string {
	seen := make(map[string]bool, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if seen[l.ProductID] {
			continue
		}
		seen[l.ProductID] = true
		ids = append(ids, l.ProductID)
	}
	return ids
}

// Price resolves every line against products and computes the totals.
// Repeated product ids are merged into one item. A product id missing
// from products fails validation instead of being dropped.
func (e *Engine) Price(lines []Line, products map[string]domain.Product) (*Quote, error) {
	if err := Validate(lines); err != nil {
		return nil, err
	}

	verr := &domain.ValidationError{}
	index := make(map[string]int, len(lines))
	items := make([]domain.OrderItem, 0, len(lines))

	for i, l := range lines {
		product, ok := products[l.ProductID]
		if !ok {
			verr.Add(fmt.Sprintf("items[%d].product_id", i), "unknown product "+l.ProductID)
			continue
		}
		if product.Price.IsNegative() {
			verr.Add(fmt.Sprintf("items[%d].product_id", i), "product has a negative price")
			continue
		}

		if pos, ok := index[l.ProductID]; ok {
			if items[pos].Quantity > MaxQuantity-l.Quantity {
				verr.Add(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("total for %s must be at most %d", l.ProductID, MaxQuantity))
				continue
			}
			items[pos].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(items)
		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  l.Quantity,
			Price:     product.Price,
		})
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Subtotal())
	}
	tax := subtotal.Mul(e.taxRate)

	return &Quote{
		Items:      items,
		Subtotal:   subtotal,
		Tax:        tax,
		GrandTotal: subtotal.Add(tax),
	}, nil
}
