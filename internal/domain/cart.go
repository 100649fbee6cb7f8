package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// LineItem is a product snapshot plus the quantity in the cart. It encodes
// flat: the ProductRef fields and "quantity" share one JSON object.
type LineItem struct {
	ProductRef
	Quantity int `json:"quantity"`
}

// Subtotal returns price × quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// NoticeKind classifies a Notice.
type NoticeKind string

const (
	// NoticeStockCeiling means the requested quantity was above stock; the
	// cart kept or clamped to the stock ceiling.
	NoticeStockCeiling NoticeKind = "stock_ceiling"
	// NoticeOutOfStock means a product with no stock was not added.
	NoticeOutOfStock NoticeKind = "out_of_stock"
)

// Notice reports a request the cart could not honor in full. Notices are
// for the shopper and never abort an operation.
type Notice struct {
	Kind        NoticeKind `json:"kind"`
	ProductID   int64      `json:"product_id"`
	ProductName string     `json:"product_name"`
	Requested   int        `json:"requested"`
	Limit       int        `json:"limit"`
	Message     string     `json:"message"`
}

func ceilingNotice(p ProductRef, requested int) *Notice {
	return &Notice{
		Kind:        NoticeStockCeiling,
		ProductID:   p.ID,
		ProductName: p.Name,
		Requested:   requested,
		Limit:       p.StockQuantity,
		Message:     fmt.Sprintf("only %d units of %s are available", p.StockQuantity, p.Name),
	}
}

func outOfStockNotice(p ProductRef) *Notice {
	return &Notice{
		Kind:        NoticeOutOfStock,
		ProductID:   p.ID,
		ProductName: p.Name,
		Requested:   1,
		Limit:       0,
		Message:     fmt.Sprintf("%s is out of stock", p.Name),
	}
}

// Cart is the shopping cart aggregate. Items keep insertion order and every
// item satisfies 1 <= Quantity <= StockQuantity. A Cart is not safe for
// concurrent use; stores serialize access per session.
type Cart struct {
	items []LineItem
	index map[int64]int
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{index: make(map[int64]int)}
}

// Add puts one unit of p in the cart. A new product starts at quantity 1
// when it has stock. An existing item is incremented and its snapshot
// refreshed from p, unless that would exceed p's stock, in which case
// nothing changes and a notice is returned.
func (c *Cart) Add(p ProductRef) *Notice {
	c.ensureIndex()

	i, ok := c.index[p.ID]
	if !ok {
		if p.StockQuantity <= 0 {
			return outOfStockNotice(p)
		}
		c.index[p.ID] = len(c.items)
		c.items = append(c.items, LineItem{ProductRef: p, Quantity: 1})
		return nil
	}

	want := c.items[i].Quantity + 1
	if p.StockQuantity <= 0 {
		return outOfStockNotice(p)
	}
	if want > p.StockQuantity {
		return ceilingNotice(p, want)
	}
	c.items[i] = LineItem{ProductRef: p, Quantity: want}
	return nil
}

// Remove deletes the item for id and reports whether one existed.
func (c *Cart) Remove(id int64) bool {
	c.ensureIndex()

	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.reindex()
	return true
}

// UpdateQuantity sets the quantity of an existing item. q <= 0 removes the
// item; q above the snapshot's stock is clamped to it and a notice is
// returned. Unknown ids are ignored.
func (c *Cart) UpdateQuantity(id int64, q int) *Notice {
	c.ensureIndex()

	i, ok := c.index[id]
	if !ok {
		return nil
	}
	if q <= 0 {
		c.Remove(id)
		return nil
	}

	item := &c.items[i]
	if q > item.StockQuantity {
		item.Quantity = item.StockQuantity
		return ceilingNotice(item.ProductRef, q)
	}
	item.Quantity = q
	return nil
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.items = nil
	c.index = make(map[int64]int)
}

// Total returns the sum of all subtotals.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// ItemCount returns the sum of quantities.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// Items returns a copy of the line items in insertion order.
func (c *Cart) Items() []LineItem {
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

// Item returns the line item for id.
func (c *Cart) Item(id int64) (LineItem, bool) {
	c.ensureIndex()
	i, ok := c.index[id]
	if !ok {
		return LineItem{}, false
	}
	return c.items[i], true
}

// Len returns the number of distinct products.
func (c *Cart) Len() int { return len(c.items) }

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool { return len(c.items) == 0 }

// Clone returns an independent copy.
func (c *Cart) Clone() *Cart {
	cp := &Cart{items: c.Items()}
	cp.reindex()
	return cp
}

// MarshalJSON encodes the cart as an ordered array of line items.
func (c *Cart) MarshalJSON() ([]byte, error) {
	if c == nil || c.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.items)
}

// UnmarshalJSON replaces c with the decoded cart. See DecodeCart.
func (c *Cart) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeCart(data)
	if err != nil {
		return err
	}
	*c = *decoded
	return nil
}

// DecodeCart reads a cart written by MarshalJSON. A blank payload or JSON
// null yields an empty cart. Stored entries are normalized: entries with a
// non-positive id or a negative price are dropped, quantities below 1 are
// dropped, quantities above stock are clamped, and for a repeated product
// id the first entry wins. Price may be a JSON number or a string.
func DecodeCart(data []byte) (*Cart, error) {
	c := NewCart()
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return c, nil
	}

	var stored []LineItem
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}

	for _, it := range stored {
		if it.ID <= 0 || it.Price.IsNegative() {
			continue
		}
		if _, dup := c.index[it.ID]; dup {
			continue
		}
		if it.Quantity > it.StockQuantity {
			it.Quantity = it.StockQuantity
		}
		if it.Quantity < 1 {
			continue
		}
		c.index[it.ID] = len(c.items)
		c.items = append(c.items, it)
	}
	return c, nil
}

func (c *Cart) ensureIndex() {
	if c.index == nil {
		c.reindex()
	}
}

func (c *Cart) reindex() {
	c.index = make(map[int64]int, len(c.items))
	for i, it := range c.items {
		c.index[it.ID] = i
	}
}
