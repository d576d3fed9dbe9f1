package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"guest-ordering/internal/domain"
)

var room = domain.SessionContext{HotelID: "h1", TableID: "12", UserID: "u1"}

func TestConnectJoinsRoom(t *testing.T) {
	ft := newFakeTransport()
	ch := NewChannel(ft, room, nil)

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if _, ok := ft.subs[RoomTopic("h1", "12")]; !ok {
		t.Fatalf("room topic not subscribed, subs = %v", ft.subs)
	}
	got := ft.last()
	if got.topic != IntentTopic("h1") || got.env.Event != domain.EventJoinHotel {
		t.Fatalf("last publish = %+v, want join_hotel on %s", got, IntentTopic("h1"))
	}
	var join domain.JoinHotel
	if err := json.Unmarshal(got.env.Payload, &join); err != nil {
		t.Fatal(err)
	}
	if join.HotelID != "h1" || join.TableNo != "12" {
		t.Errorf("join payload = %+v", join)
	}
}

func TestReconnectRejoinsOnce(t *testing.T) {
	ft := newFakeTransport()
	ch := NewChannel(ft, room, nil)
	_ = ch.Connect(context.Background())

	ft.drop()
	ft.reconnect()

	want := []string{domain.EventJoinHotel, domain.EventJoinHotel}
	if got := ft.events(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if ft.subCalls != 1 {
		t.Errorf("subscribe calls = %d, want 1", ft.subCalls)
	}
}

func TestIntentsDroppedWhileDisconnected(t *testing.T) {
	ft := newFakeTransport()
	ch := NewChannel(ft, room, nil)
	ctx := context.Background()
	_ = ch.Connect(ctx)

	ft.drop()
	err := ch.CloseOrder(ctx, "o1")
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("CloseOrder err = %v, want ErrDisconnected", err)
	}

	ft.reconnect()
	for _, ev := range ft.events() {
		if ev == domain.EventCloseOrder {
			t.Fatal("dropped intent was replayed after reconnect")
		}
	}
}

func TestIntentPayloads(t *testing.T) {
	ft := newFakeTransport()
	ch := NewChannel(ft, room, nil)
	ctx := context.Background()
	_ = ch.Connect(ctx)

	item := domain.LineItem{ItemID: "soup", Name: "Soup", UnitPrice: decimal.RequireFromString("4.50"), Quantity: 2}

	t.Run("postOrderDefaultsTable", func(t *testing.T) {
		if err := ch.CreateOrder(ctx, "local-1", []domain.LineItem{item}, ""); err != nil {
			t.Fatal(err)
		}
		var p domain.PostOrder
		if err := json.Unmarshal(ft.last().env.Payload, &p); err != nil {
			t.Fatal(err)
		}
		if p.TableNo != "12" || p.UserID != "u1" || p.ClientOrderID != "local-1" || len(p.Items) != 1 {
			t.Errorf("post payload = %+v", p)
		}
	})

	t.Run("addItem", func(t *testing.T) {
		if err := ch.AddItem(ctx, "o9", item); err != nil {
			t.Fatal(err)
		}
		var p domain.AddItem
		if err := json.Unmarshal(ft.last().env.Payload, &p); err != nil {
			t.Fatal(err)
		}
		if p.OrderID != "o9" || p.ItemID != "soup" || p.Qty != 2 || !p.Price.Equal(item.UnitPrice) {
			t.Errorf("addItem payload = %+v", p)
		}
	})
}

func TestInboundDispatch(t *testing.T) {
	ft := newFakeTransport()
	ch := NewChannel(ft, room, nil)
	_ = ch.Connect(context.Background())

	var got []domain.OrderEvent
	ch.OnEvent(func(ev domain.OrderEvent) { got = append(got, ev) })

	topic := RoomTopic("h1", "12")
	ft.deliver(t, topic, domain.EventOrderUpdated, domain.Order{ID: "s1", TableID: "12"})
	ft.deliver(t, topic, "table_cleared", map[string]string{"x": "y"})
	ft.deliver(t, topic, domain.EventOrderCreated, map[string]string{"note": "no id"})
	ft.deliverRaw(topic, []byte("{not json"))

	if len(got) != 1 {
		t.Fatalf("dispatched %d events, want 1: %+v", len(got), got)
	}
	if got[0].Type != domain.EventOrderUpdated || got[0].Order.ID != "s1" {
		t.Errorf("event = %+v", got[0])
	}
}

func TestSetSessionMovesRoom(t *testing.T) {
	ft := newFakeTransport()
	ch := NewChannel(ft, room, nil)
	ctx := context.Background()
	_ = ch.Connect(ctx)

	t.Run("sameRoomKeepsSubscription", func(t *testing.T) {
		ch.SetSession(ctx, domain.SessionContext{HotelID: "h1", TableID: "12", UserID: "u2"})
		if ft.subCalls != 1 {
			t.Errorf("subscribe calls = %d, want 1", ft.subCalls)
		}
		if ch.Session().UserID != "u2" {
			t.Errorf("user not updated")
		}
	})

	t.Run("newTableMoves", func(t *testing.T) {
		ch.SetSession(ctx, domain.SessionContext{HotelID: "h1", TableID: "14", UserID: "u2"})
		if _, ok := ft.subs[RoomTopic("h1", "12")]; ok {
			t.Error("old room still subscribed")
		}
		if _, ok := ft.subs[RoomTopic("h1", "14")]; !ok {
			t.Error("new room not subscribed")
		}
		if ft.last().env.Event != domain.EventJoinHotel {
			t.Errorf("last event = %s, want join_hotel", ft.last().env.Event)
		}
	})
}

func TestJoinSkippedWithoutIdentity(t *testing.T) {
	ft := newFakeTransport()
	ch := NewChannel(ft, domain.SessionContext{}, nil)
	_ = ch.Connect(context.Background())

	if len(ft.subs) != 0 || len(ft.events()) != 0 {
		t.Errorf("joined without identity: subs=%v events=%v", ft.subs, ft.events())
	}
}

func TestTopicTokens(t *testing.T) {
	if got := RoomTopic("grand.hotel", ""); got != "orders.rooms.grand_hotel._" {
		t.Errorf("RoomTopic = %q", got)
	}
	if got := IntentTopic("a*b>c#d"); got != "orders.intents.a_b_c_d" {
		t.Errorf("IntentTopic = %q", got)
	}
}

func TestNATSPublishBeforeConnect(t *testing.T) {
	tr := NewNATSTransport("nats://127.0.0.1:1", 0, nil)
	if err := tr.Publish(context.Background(), "x", nil); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Publish err = %v, want ErrDisconnected", err)
	}
	if _, err := tr.Subscribe("x", func([]byte) {}); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Subscribe err = %v, want ErrDisconnected", err)
	}
}

func TestAMQPPublishBeforeConnect(t *testing.T) {
	tr := NewAMQPTransport(mqOptions(), 0, nil)
	if err := tr.Publish(context.Background(), "x", nil); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Publish err = %v, want ErrDisconnected", err)
	}
	sub, err := tr.Subscribe("x", func([]byte) {})
	if err != nil {
		t.Fatalf("Subscribe before connect: %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("Unsubscribe: %v", err)
	}
	if len(tr.subs) != 0 {
		t.Errorf("registry not emptied")
	}
}
