// Package cart holds the shopper's pending selection. It has no I/O; callers
// load and persist a Cart around each mutation.
package cart

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrItemNotFound = errors.New("cart item not found")

// Item is one cart line. ID is the line identity: the product id, or
// productID-size when a size was chosen.
type Item struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Size        string          `json:"size,omitempty"`
	Color       string          `json:"color,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	MinQuantity int             `json:"min_quantity,omitempty"`
	MaxQuantity int             `json:"max_quantity,omitempty"`
}

// LineTotal is price × quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Clamp bounds q to [MinQuantity (at least 1), MaxQuantity when set].
func (i Item) Clamp(q int) int {
	lo := i.MinQuantity
	if lo < 1 {
		lo = 1
	}
	if q < lo {
		q = lo
	}
	if i.MaxQuantity > 0 && q > i.MaxQuantity {
		q = i.MaxQuantity
	}
	return q
}

type Cart struct {
	Items []Item `json:"items"`
}

func New() *Cart {
	return &Cart{Items: []Item{}}
}

func (c *Cart) find(id string) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// AddItem merges into an existing line with the same id or appends a new one.
// A quantity below 1 counts as 1.
func (c *Cart) AddItem(item Item, quantity int) Item {
	if quantity < 1 {
		quantity = 1
	}
	if idx := c.find(item.ID); idx >= 0 {
		line := &c.Items[idx]
		line.Quantity = line.Clamp(line.Quantity + quantity)
		return *line
	}
	item.Quantity = item.Clamp(quantity)
	c.Items = append(c.Items, item)
	return item
}

// UpdateQuantity sets a line's quantity, clamped to the line's bounds. It
// never removes the line.
func (c *Cart) UpdateQuantity(id string, quantity int) (Item, error) {
	idx := c.find(id)
	if idx < 0 {
		return Item{}, ErrItemNotFound
	}
	line := &c.Items[idx]
	line.Quantity = line.Clamp(quantity)
	return *line, nil
}

// RemoveItem drops a line. Unknown ids are ignored.
func (c *Cart) RemoveItem(id string) bool {
	idx := c.find(id)
	if idx < 0 {
		return false
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return true
}

func (c *Cart) Clear() {
	c.Items = []Item{}
}

// Total is recomputed from the lines on every call.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Merge folds other's lines into c as if each had been added in turn.
func (c *Cart) Merge(other *Cart) {
	if other == nil {
		return
	}
	for _, item := range other.Items {
		c.AddItem(item, item.Quantity)
	}
}

// Summary is the read model returned to clients.
type Summary struct {
	Items     []Item          `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

func (c *Cart) Summary() Summary {
	items := c.Items
	if items == nil {
		items = []Item{}
	}
	return Summary{Items: items, Total: c.Total(), ItemCount: c.ItemCount()}
}
