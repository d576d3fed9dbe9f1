package realtime

import (
	"context"
	"testing"

	"guest-ordering/internal/common/mq"
	"guest-ordering/internal/domain"
)

func mqOptions() mq.Options {
	return mq.Options{Host: "127.0.0.1", Port: 1, User: "guest", Pass: "guest"}
}

func TestConnRefCount(t *testing.T) {
	ft := newFakeTransport()
	conn := NewConn(NewChannel(ft, room, nil))
	ctx := context.Background()

	a, err := conn.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := conn.Acquire(ctx)
	if a != b {
		t.Fatal("Acquire returned different channels")
	}
	if ft.connects != 1 {
		t.Errorf("connects = %d, want 1", ft.connects)
	}

	conn.Release()
	if ft.closes != 0 {
		t.Error("closed while a reference is held")
	}
	conn.Release()
	if ft.closes != 1 {
		t.Errorf("closes = %d, want 1", ft.closes)
	}
	conn.Release()
	if conn.Refs() != 0 {
		t.Errorf("refs = %d after extra Release", conn.Refs())
	}

	if _, err := conn.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if ft.connects != 2 {
		t.Errorf("connects = %d after reacquire, want 2", ft.connects)
	}
}

func TestConnReset(t *testing.T) {
	ft := newFakeTransport()
	conn := NewConn(NewChannel(ft, room, nil))
	ctx := context.Background()
	_, _ = conn.Acquire(ctx)
	_, _ = conn.Acquire(ctx)

	if err := conn.Reset(); err != nil {
		t.Fatal(err)
	}
	if conn.Refs() != 0 || ft.closes != 1 {
		t.Errorf("refs=%d closes=%d after Reset", conn.Refs(), ft.closes)
	}
	if err := conn.Reset(); err != nil {
		t.Errorf("second Reset: %v", err)
	}
	if ft.closes != 1 {
		t.Errorf("second Reset closed again")
	}
}

func TestConnJoinAfterReset(t *testing.T) {
	ft := newFakeTransport()
	conn := NewConn(NewChannel(ft, room, nil))
	ctx := context.Background()
	_, _ = conn.Acquire(ctx)
	_ = conn.Reset()

	next := domain.SessionContext{HotelID: "h2", TableID: "3", UserID: "u9"}
	if err := conn.Join(ctx, next); err != nil {
		t.Fatal(err)
	}
	if ft.connects != 2 || conn.Refs() != 1 {
		t.Errorf("connects=%d refs=%d, want 2 and 1", ft.connects, conn.Refs())
	}
	if _, ok := ft.subs[RoomTopic("h2", "3")]; !ok {
		t.Errorf("new room not joined, subs = %v", ft.subs)
	}
	if _, ok := ft.subs[RoomTopic("h1", "12")]; ok {
		t.Error("old room still subscribed")
	}

	// live connection: Join only moves the room
	if err := conn.Join(ctx, room); err != nil {
		t.Fatal(err)
	}
	if ft.connects != 2 || conn.Refs() != 1 {
		t.Errorf("connects=%d refs=%d after live Join", ft.connects, conn.Refs())
	}
}
