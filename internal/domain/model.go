package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderState is the aggregator-facing lifecycle of an order.
type OrderState string

const (
	StateActive OrderState = "Active"
	StateClosed OrderState = "Closed"
)

type LineItem struct {
	ItemID    string          `json:"itemId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Notes     string          `json:"notes,omitempty"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type Order struct {
	ID string `json:"id"`
	// ClientOrderID is the optimistic id the guest created the order under;
	// the server echoes it in its snapshots.
	ClientOrderID string          `json:"clientOrderId,omitempty"`
	Items         []LineItem      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	Status        OrderState      `json:"status"`
	TableID       string          `json:"tableId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Recompute sets Total from Items. Every mutation of Items must be followed by it.
func (o *Order) Recompute() {
	o.Total = SumItems(o.Items)
}

func (o Order) Clone() Order {
	c := o
	c.Items = append([]LineItem(nil), o.Items...)
	return c
}

func SumItems(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// SessionContext identifies the guest and the room the realtime channel joins.
type SessionContext struct {
	HotelID string `json:"hotelId"`
	TableID string `json:"tableId"`
	UserID  string `json:"userId"`
}

func (s SessionContext) Valid() bool { return s.HotelID != "" && s.TableID != "" }

// SameRoom reports whether both contexts join the same hotel/table room.
func (s SessionContext) SameRoom(o SessionContext) bool {
	return s.HotelID == o.HotelID && s.TableID == o.TableID
}
