package statusclock

import (
	"context"
	"testing"
	"time"

	"guest-ordering/internal/domain"
	"guest-ordering/internal/session"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) Now() time.Time      { return f.t }
func (f *fakeNow) Add(d time.Duration) { f.t = f.t.Add(d) }
func (f *fakeNow) Set(t time.Time)     { f.t = t }

func newClock(t *testing.T) (*Clock, *session.Store, *fakeNow) {
	t.Helper()
	store := session.NewStore(session.NewMemoryBackend(), nil)
	now := &fakeNow{t: t0}
	return New(store, DefaultDurations(), nil, WithNow(now.Now)), store, now
}

func TestClockInitialize(t *testing.T) {
	ctx := context.Background()
	c, store, now := newClock(t)

	v := c.Initialize(ctx, "o1")
	if v.Status != domain.StatusConfirmed || !v.StartTime.Equal(t0) {
		t.Fatalf("Initialize() = %+v", v)
	}
	if v.Remaining != 2*time.Minute || v.RemainingSec != 120 {
		t.Errorf("Remaining = %v (%ds), want 2m", v.Remaining, v.RemainingSec)
	}
	rec, ok := store.StatusRecord(ctx, "o1")
	if !ok || rec.Status != domain.StatusConfirmed {
		t.Errorf("stored record = %+v, %v", rec, ok)
	}

	now.Add(time.Minute)
	again := c.Initialize(ctx, "o1")
	if !again.StartTime.Equal(t0) {
		t.Errorf("second Initialize() restarted the clock: start = %v", again.StartTime)
	}
}

func TestClockResumeAfterReload(t *testing.T) {
	ctx := context.Background()
	_, store, now := newClock(t)
	_ = store.SetStatusRecord(ctx, domain.StatusRecord{
		OrderID: "o1", Status: domain.StatusPreparing, StartTime: now.Now().Add(-3 * time.Minute),
	})

	// fresh clock over the same store simulates a reload
	reloaded := New(store, DefaultDurations(), nil, WithNow(now.Now))
	reloaded.ResumeStored(ctx, []string{"o1", "missing"})

	v, ok := reloaded.View("o1")
	if !ok {
		t.Fatal("View() should find the resumed order")
	}
	if v.Status != domain.StatusPreparing {
		t.Errorf("Status = %s, want Preparing", v.Status)
	}
	if v.Remaining != 5*time.Minute {
		t.Errorf("Remaining = %v, want 5m", v.Remaining)
	}
	if _, ok := reloaded.View("missing"); ok {
		t.Error("View() should not invent records")
	}
}

func TestClockResumeDeliveredDoesNotRestart(t *testing.T) {
	ctx := context.Background()
	c, store, now := newClock(t)
	rec := domain.StatusRecord{OrderID: "o1", Status: domain.StatusDelivered, StartTime: t0.Add(-time.Hour)}
	_ = store.SetStatusRecord(ctx, rec)

	v := c.Initialize(ctx, "o1")
	if v.Status != domain.StatusDelivered || v.Progress != 100 {
		t.Errorf("Initialize() on delivered = %+v", v)
	}

	now.Add(time.Hour)
	if changed := c.Tick(ctx); len(changed) != 0 {
		t.Errorf("Tick() on delivered changed %v", changed)
	}
	if c.Pending() {
		t.Error("Pending() should be false when every order is delivered")
	}
}

func TestClockResumeSkewAdvancesImmediately(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newClock(t)

	v := c.Resume(ctx, domain.StatusRecord{OrderID: "o1", Status: domain.StatusConfirmed, StartTime: t0.Add(10 * time.Minute)})
	if v.Status != domain.StatusPreparing || !v.StartTime.Equal(t0) {
		t.Errorf("Resume() with future start = %+v", v)
	}
	rec, _ := store.StatusRecord(ctx, "o1")
	if rec.Status != domain.StatusPreparing {
		t.Errorf("stored status = %s, want Preparing", rec.Status)
	}
}

func TestClockTickOneStepPerCall(t *testing.T) {
	ctx := context.Background()
	c, store, now := newClock(t)
	c.Initialize(ctx, "o1")

	var seen []domain.OrderStatus
	c.OnAdvance(func(rec domain.StatusRecord) { seen = append(seen, rec.Status) })

	now.Add(20 * time.Minute)
	want := []domain.OrderStatus{domain.StatusPreparing, domain.StatusOutForDelivery, domain.StatusDelivered}
	for i, w := range want {
		changed := c.Tick(ctx)
		if len(changed) != 1 || changed[0].Status != w {
			t.Fatalf("tick %d changed = %+v, want %s", i, changed, w)
		}
		rec, _ := store.StatusRecord(ctx, "o1")
		if rec.Status != w {
			t.Fatalf("tick %d stored = %s, want %s", i, rec.Status, w)
		}
		if i < 2 {
			// each step restarts its own window from the tick time
			now.Add(20 * time.Minute)
		}
	}
	if len(c.Tick(ctx)) != 0 {
		t.Error("Tick() after Delivered should be a no-op")
	}
	if len(seen) != 3 {
		t.Errorf("OnAdvance hooks = %v, want 3 calls", seen)
	}

	v, _ := c.View("o1")
	if v.Progress != 100 || v.Remaining != 0 {
		t.Errorf("final view = %+v", v)
	}
	for _, s := range v.Steps {
		if !s.Done {
			t.Errorf("step %s should be done", s.Status)
		}
	}
}

func TestClockForget(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newClock(t)
	c.Initialize(ctx, "o1")
	c.Forget("o1")

	if _, ok := c.View("o1"); ok {
		t.Error("View() after Forget should be absent")
	}
	if _, ok := store.StatusRecord(ctx, "o1"); !ok {
		t.Error("Forget() must not delete the stored record")
	}
}

func TestClockRekeyKeepsTimer(t *testing.T) {
	ctx := context.Background()
	c, store, now := newClock(t)
	c.Initialize(ctx, "local-1")
	now.Add(90 * time.Second)

	c.Rekey(ctx, "local-1", "srv-1")

	if _, ok := c.View("local-1"); ok {
		t.Error("old id still tracked")
	}
	v, ok := c.View("srv-1")
	if !ok {
		t.Fatal("new id not tracked")
	}
	if !v.StartTime.Equal(t0) || v.Remaining != 30*time.Second {
		t.Errorf("View = start %v remaining %v, want start t0 remaining 30s", v.StartTime, v.Remaining)
	}
	if _, ok := store.StatusRecord(ctx, "local-1"); ok {
		t.Error("old record still stored")
	}
	if rec, ok := store.StatusRecord(ctx, "srv-1"); !ok || rec.OrderID != "srv-1" {
		t.Errorf("stored new record = %+v, %v", rec, ok)
	}
}

func TestClockResumeStored(t *testing.T) {
	ctx := context.Background()
	c, store, _ := newClock(t)
	_ = store.SetStatusRecord(ctx, domain.StatusRecord{OrderID: "a", Status: domain.StatusPreparing, StartTime: t0.Add(-time.Minute)})
	_ = store.SetStatusRecord(ctx, domain.StatusRecord{OrderID: "b", Status: domain.StatusDelivered, StartTime: t0.Add(-time.Hour)})

	c.ResumeStored(ctx, []string{"a", "b", "missing"})

	if v, ok := c.View("a"); !ok || v.Status != domain.StatusPreparing || v.Remaining != 7*time.Minute {
		t.Errorf("View(a) = %+v, %v", v, ok)
	}
	if v, ok := c.View("b"); !ok || v.Status != domain.StatusDelivered || v.Progress != 100 {
		t.Errorf("View(b) = %+v, %v", v, ok)
	}
	if _, ok := c.View("missing"); ok {
		t.Error("missing order became tracked")
	}
	if !c.Pending() {
		t.Error("Pending() = false with a Preparing order")
	}
}

func TestClockRekeyOntoTrackedOrder(t *testing.T) {
	ctx := context.Background()
	c, store, now := newClock(t)
	c.Initialize(ctx, "srv-1")
	now.Add(time.Minute)
	c.Initialize(ctx, "local-1")

	c.Rekey(ctx, "local-1", "srv-1")

	if _, ok := c.View("local-1"); ok {
		t.Error("old id still tracked")
	}
	if _, ok := store.StatusRecord(ctx, "local-1"); ok {
		t.Error("old record left in the store")
	}
	if v, ok := c.View("srv-1"); !ok || !v.StartTime.Equal(t0) {
		t.Errorf("View(srv-1) = %+v, %v; want the existing record kept", v, ok)
	}
}

func TestClockReset(t *testing.T) {
	ctx := context.Background()
	c, store, now := newClock(t)
	c.Initialize(ctx, "a")
	c.Initialize(ctx, "b")

	c.Reset(ctx)

	if c.Pending() {
		t.Error("Pending() = true after Reset")
	}
	for _, id := range []string{"a", "b"} {
		if _, ok := c.View(id); ok {
			t.Errorf("%s still tracked", id)
		}
		if _, ok := store.StatusRecord(ctx, id); ok {
			t.Errorf("%s still stored", id)
		}
	}
	now.Add(time.Hour)
	if changed := c.Tick(ctx); len(changed) != 0 {
		t.Errorf("Tick() after Reset advanced %v", changed)
	}
}
