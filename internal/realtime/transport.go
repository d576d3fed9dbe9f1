package realtime

import (
	"context"
	"errors"
	"strings"
)

var ErrDisconnected = errors.New("realtime: not connected")

// Transport moves raw frames to and from the shared server. Publishing is at
// most once: a frame sent while disconnected is lost, never buffered.
type Transport interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, data []byte) error
	Subscribe(topic string, fn func([]byte)) (Subscription, error)
	// OnConnected runs after the first connect and after every reconnect.
	OnConnected(fn func())
	Close() error
}

type Subscription interface {
	Unsubscribe() error
}

// IntentTopic carries guest intents to the server for one hotel.
func IntentTopic(hotelID string) string {
	return "orders.intents." + token(hotelID)
}

// RoomTopic carries authoritative order events for one hotel table.
func RoomTopic(hotelID, tableID string) string {
	return "orders.rooms." + token(hotelID) + "." + token(tableID)
}

// token keeps ids usable as a single subject / routing-key segment.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", "#", "_", " ", "_").Replace(s)
}
