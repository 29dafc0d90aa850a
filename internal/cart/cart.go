// Package cart holds the single-consumer cart aggregate that feeds order creation.
package cart

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopdash/internal/pricing"
)

type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	ImageURL  string          `json:"image_url"`
}

type Cart struct {
	items []Item
}

func New() *Cart {
	return &Cart{}
}

// AddOrIncrement appends item with quantity 1, or bumps the quantity of the
// existing entry for the same product. The quantity on item is ignored.
func (c *Cart) AddOrIncrement(item Item) {
	if i, ok := c.indexOf(item.ProductID); ok {
		c.items[i].Quantity++
		return
	}
	item.Quantity = 1
	c.items = append(c.items, item)
}

func (c *Cart) Find(productID string) (Item, bool) {
	i, ok := c.indexOf(productID)
	if !ok {
		return Item{}, false
	}
	return c.items[i], true
}

func (c *Cart) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) Len() int {
	return len(c.items)
}

// Lines converts the cart into order-creation input. Prices are not carried;
// the order service re-reads them from the catalog.
func (c *Cart) Lines() []pricing.Line {
	lines := make([]pricing.Line, len(c.items))
	for i, item := range c.items {
		lines[i] = pricing.Line{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return lines
}

// Total is the display total using the prices captured when items were added.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

func (c *Cart) indexOf(productID string) (int, bool) {
	for i, item := range c.items {
		if item.ProductID == productID {
			return i, true
		}
	}
	return -1, false
}
