package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"guest-ordering/internal/common/logger"
	"guest-ordering/internal/domain"
)

type Handler func(domain.OrderEvent)

// Channel is the guest side of the realtime order channel: it keeps the room
// membership for the current SessionContext, emits intents and fans inbound
// order events out to handlers.
type Channel struct {
	t   Transport
	log *logger.Logger

	mu       sync.Mutex
	session  domain.SessionContext
	sub      Subscription
	handlers []Handler
}

func NewChannel(t Transport, sess domain.SessionContext, log *logger.Logger) *Channel {
	if log == nil {
		log = logger.Nop()
	}
	c := &Channel{t: t, log: log, session: sess}
	t.OnConnected(c.rejoin)
	return c
}

// OnEvent registers h for order_created, order_updated and order_closed.
func (c *Channel) OnEvent(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

func (c *Channel) Connect(ctx context.Context) error {
	if err := c.t.Connect(ctx); err != nil {
		return fmt.Errorf("realtime connect: %w", err)
	}
	return nil
}

func (c *Channel) Session() domain.SessionContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SetSession switches identity; a different hotel/table moves the channel to
// the new room.
func (c *Channel) SetSession(ctx context.Context, s domain.SessionContext) {
	if c.setIdentity(s) {
		c.join(ctx)
	}
}

// setIdentity stores s and leaves the old room if s is a different one. It
// reports whether the room changed.
func (c *Channel) setIdentity(s domain.SessionContext) bool {
	c.mu.Lock()
	moved := !c.session.SameRoom(s)
	c.session = s
	old := c.sub
	if moved {
		c.sub = nil
	}
	c.mu.Unlock()

	if moved && old != nil {
		if err := old.Unsubscribe(); err != nil {
			c.log.Error("room_leave_failed", err, nil)
		}
	}
	return moved
}

func (c *Channel) rejoin() { c.join(context.Background()) }

func (c *Channel) join(ctx context.Context) {
	c.mu.Lock()
	s := c.session
	needSub := c.sub == nil
	c.mu.Unlock()

	if !s.Valid() {
		c.log.Debug("room_join_skipped", map[string]any{"reason": "no session identity"})
		return
	}
	if needSub {
		sub, err := c.t.Subscribe(RoomTopic(s.HotelID, s.TableID), c.handle)
		if err != nil {
			c.log.Error("room_subscribe_failed", err, map[string]any{"hotel_id": s.HotelID, "table_id": s.TableID})
			return
		}
		c.mu.Lock()
		if c.sub != nil {
			c.mu.Unlock()
			_ = sub.Unsubscribe()
		} else {
			c.sub = sub
			c.mu.Unlock()
		}
	}
	_ = c.emit(ctx, s.HotelID, domain.EventJoinHotel, domain.JoinHotel{HotelID: s.HotelID, TableNo: s.TableID})
	c.log.Info("room_joined", map[string]any{"hotel_id": s.HotelID, "table_id": s.TableID})
}

// CreateOrder asks the server to open an order. The authoritative order
// arrives later as order_created.
func (c *Channel) CreateOrder(ctx context.Context, clientOrderID string, items []domain.LineItem, tableID string) error {
	s := c.Session()
	if tableID == "" {
		tableID = s.TableID
	}
	return c.emit(ctx, s.HotelID, domain.EventPostOrder, domain.PostOrder{
		HotelID:       s.HotelID,
		TableNo:       tableID,
		UserID:        s.UserID,
		ClientOrderID: clientOrderID,
		Items:         items,
	})
}

func (c *Channel) AddItem(ctx context.Context, orderID string, item domain.LineItem) error {
	return c.emit(ctx, c.Session().HotelID, domain.EventAddItem, domain.AddItem{
		OrderID: orderID,
		ItemID:  item.ItemID,
		Qty:     item.Quantity,
		Price:   item.UnitPrice,
		Name:    item.Name,
		Notes:   item.Notes,
	})
}

func (c *Channel) CloseOrder(ctx context.Context, orderID string) error {
	return c.emit(ctx, c.Session().HotelID, domain.EventCloseOrder, domain.CloseOrder{OrderID: orderID})
}

// emit is fire-and-forget: failures are logged and returned, never retried.
func (c *Channel) emit(ctx context.Context, hotelID, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	frame, err := json.Marshal(domain.Envelope{Event: event, Payload: body})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := c.t.Publish(ctx, IntentTopic(hotelID), frame); err != nil {
		c.log.Error("intent_dropped", err, map[string]any{"event": event})
		return err
	}
	c.log.Debug("intent_emitted", map[string]any{"event": event})
	return nil
}

func (c *Channel) handle(data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Error("event_decode_failed", err, nil)
		return
	}
	if !domain.IsOrderEvent(env.Event) {
		c.log.Debug("event_ignored", map[string]any{"event": env.Event})
		return
	}
	var o domain.Order
	if err := json.Unmarshal(env.Payload, &o); err != nil || o.ID == "" {
		if err == nil {
			err = fmt.Errorf("snapshot without id")
		}
		c.log.Error("event_decode_failed", err, map[string]any{"event": env.Event})
		return
	}

	c.mu.Lock()
	handlers := append([]Handler(nil), c.handlers...)
	c.mu.Unlock()

	ev := domain.OrderEvent{Type: env.Event, Order: o}
	for _, h := range handlers {
		h(ev)
	}
}

// Close leaves the room and drops the transport connection.
func (c *Channel) Close() error {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		_ = sub.Unsubscribe()
	}
	return c.t.Close()
}
