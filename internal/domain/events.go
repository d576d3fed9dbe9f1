package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Outbound intents.
const (
	EventJoinHotel  = "join_hotel"
	EventPostOrder  = "post_order"
	EventAddItem    = "add_item"
	EventCloseOrder = "close_order"
)

// Inbound authoritative events.
const (
	EventOrderCreated = "order_created"
	EventOrderUpdated = "order_updated"
	EventOrderClosed  = "order_closed"
)

// Envelope is the wire frame for every realtime message.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type JoinHotel struct {
	HotelID string `json:"hotelId"`
	TableNo string `json:"tableNo"`
}

type PostOrder struct {
	HotelID       string     `json:"hotelId"`
	TableNo       string     `json:"tableNo"`
	UserID        string     `json:"userId"`
	ClientOrderID string     `json:"clientOrderId,omitempty"`
	Items         []LineItem `json:"items"`
}

type AddItem struct {
	OrderID string          `json:"orderId"`
	ItemID  string          `json:"itemId"`
	Qty     int             `json:"qty"`
	Price   decimal.Decimal `json:"price"`
	Name    string          `json:"name,omitempty"`
	Notes   string          `json:"notes,omitempty"`
}

type CloseOrder struct {
	OrderID string `json:"orderId"`
}

// OrderEvent is an inbound lifecycle event carrying a full order snapshot.
type OrderEvent struct {
	Type  string `json:"type"`
	Order Order  `json:"order"`
}

func IsOrderEvent(name string) bool {
	switch name {
	case EventOrderCreated, EventOrderUpdated, EventOrderClosed:
		return true
	}
	return false
}
