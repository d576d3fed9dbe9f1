package domain

import "time"

// OrderStatus is the tracking-facing phase of an order, owned by the status clock.
type OrderStatus string

const (
	StatusConfirmed      OrderStatus = "Confirmed"
	StatusPreparing      OrderStatus = "Preparing"
	StatusOutForDelivery OrderStatus = "OutForDelivery"
	StatusDelivered      OrderStatus = "Delivered"
)

// StatusSequence is linear; Delivered is terminal.
var StatusSequence = []OrderStatus{StatusConfirmed, StatusPreparing, StatusOutForDelivery, StatusDelivered}

// Index returns the position in StatusSequence, or -1 for unknown values.
func (s OrderStatus) Index() int {
	for i, v := range StatusSequence {
		if v == s {
			return i
		}
	}
	return -1
}

func (s OrderStatus) Valid() bool { return s.Index() >= 0 }

func (s OrderStatus) Terminal() bool { return s == StatusDelivered }

// Next returns the following status; ok is false for Delivered and unknown values.
func (s OrderStatus) Next() (OrderStatus, bool) {
	i := s.Index()
	if i < 0 || i >= len(StatusSequence)-1 {
		return s, false
	}
	return StatusSequence[i+1], true
}

// StatusRecord is what gets persisted per order. The estimated end is never
// stored; it is always derived from StartTime and the duration table.
type StatusRecord struct {
	OrderID   string      `json:"orderId"`
	Status    OrderStatus `json:"status"`
	StartTime time.Time   `json:"startTime"`
}
