package statusclock

import (
	"context"
	"sort"
	"sync"
	"time"

	"guest-ordering/internal/common/logger"
	"guest-ordering/internal/domain"
	"guest-ordering/internal/session"
)

type Step struct {
	Status  domain.OrderStatus `json:"status"`
	Done    bool               `json:"done"`
	Current bool               `json:"current"`
}

// View is what the tracking screen renders.
type View struct {
	OrderID      string             `json:"orderId"`
	Status       domain.OrderStatus `json:"status"`
	StartTime    time.Time          `json:"startTime"`
	EstimatedEnd time.Time          `json:"estimatedEnd"`
	Remaining    time.Duration      `json:"-"`
	RemainingSec int64              `json:"remainingSeconds"`
	Progress     float64            `json:"progress"`
	Steps        []Step             `json:"steps"`
}

type Option func(*Clock)

func WithNow(now func() time.Time) Option { return func(c *Clock) { c.now = now } }

// Clock owns every StatusRecord of the session and is the only writer of them.
type Clock struct {
	store     *session.Store
	durations Durations
	now       func() time.Time
	log       *logger.Logger

	mu        sync.Mutex
	records   map[string]domain.StatusRecord
	onAdvance []func(domain.StatusRecord)
}

func New(store *session.Store, d Durations, log *logger.Logger, opts ...Option) *Clock {
	if log == nil {
		log = logger.Nop()
	}
	if d == nil {
		d = DefaultDurations()
	}
	c := &Clock{
		store:     store,
		durations: d,
		now:       time.Now,
		log:       log,
		records:   make(map[string]domain.StatusRecord),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Clock) OnAdvance(fn func(domain.StatusRecord)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAdvance = append(c.onAdvance, fn)
}

// Initialize starts tracking orderID at Confirmed unless a record already
// exists, in which case the stored record is resumed.
func (c *Clock) Initialize(ctx context.Context, orderID string) View {
	if rec, ok := c.store.StatusRecord(ctx, orderID); ok {
		return c.Resume(ctx, rec)
	}
	rec := domain.StatusRecord{OrderID: orderID, Status: domain.StatusConfirmed, StartTime: c.now()}
	c.mu.Lock()
	c.records[orderID] = rec
	c.mu.Unlock()
	c.persist(ctx, rec)
	c.log.Info("status_initialized", map[string]any{"order_id": orderID, "status": rec.Status})
	return c.view(rec, c.now())
}

// Resume adopts a persisted record. Time elapsed while nothing was running
// counts against the current status; an overdue or skewed record advances one
// step right away.
func (c *Clock) Resume(ctx context.Context, rec domain.StatusRecord) View {
	now := c.now()
	c.mu.Lock()
	c.records[rec.OrderID] = rec
	c.mu.Unlock()
	if rec.Status.Terminal() {
		return c.view(rec, now)
	}
	if next, changed := c.step(ctx, rec.OrderID, now); changed {
		return c.view(next, now)
	}
	return c.view(rec, now)
}

// ResumeStored loads and resumes every stored record among orderIDs.
func (c *Clock) ResumeStored(ctx context.Context, orderIDs []string) {
	for _, id := range orderIDs {
		if rec, ok := c.store.StatusRecord(ctx, id); ok {
			c.Resume(ctx, rec)
		}
	}
}

// Tick advances every tracked, non-terminal order by at most one status.
func (c *Clock) Tick(ctx context.Context) []domain.StatusRecord {
	now := c.now()
	var changed []domain.StatusRecord
	for _, id := range c.trackedIDs() {
		if rec, ok := c.step(ctx, id, now); ok {
			changed = append(changed, rec)
		}
	}
	return changed
}

func (c *Clock) step(ctx context.Context, orderID string, now time.Time) (domain.StatusRecord, bool) {
	c.mu.Lock()
	rec, ok := c.records[orderID]
	if !ok || rec.Status.Terminal() {
		c.mu.Unlock()
		return rec, false
	}
	status, start := Advance(rec.Status, rec.StartTime, now, c.durations)
	if status == rec.Status {
		c.mu.Unlock()
		return rec, false
	}
	prev := rec.Status
	rec.Status, rec.StartTime = status, start
	c.records[orderID] = rec
	hooks := append([]func(domain.StatusRecord){}, c.onAdvance...)
	c.mu.Unlock()

	c.persist(ctx, rec)
	c.log.Info("status_advanced", map[string]any{"order_id": orderID, "old_status": prev, "new_status": rec.Status})
	for _, h := range hooks {
		h(rec)
	}
	return rec, true
}

func (c *Clock) persist(ctx context.Context, rec domain.StatusRecord) {
	if err := c.store.SetStatusRecord(ctx, rec); err != nil {
		c.log.Error("status_persist_failed", err, map[string]any{"order_id": rec.OrderID})
	}
}

func (c *Clock) View(orderID string) (View, bool) {
	c.mu.Lock()
	rec, ok := c.records[orderID]
	c.mu.Unlock()
	if !ok {
		return View{}, false
	}
	return c.view(rec, c.now()), true
}

// Pending reports whether any tracked order still has a deadline ahead.
func (c *Clock) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range c.records {
		if !rec.Status.Terminal() {
			return true
		}
	}
	return false
}

// Rekey moves the record of oldID to newID without restarting its timer. It
// is used when the server replaces an optimistic order id.
func (c *Clock) Rekey(ctx context.Context, oldID, newID string) {
	if oldID == newID {
		return
	}
	c.mu.Lock()
	rec, ok := c.records[oldID]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.records, oldID)
	_, taken := c.records[newID]
	if !taken {
		rec.OrderID = newID
		c.records[newID] = rec
	}
	c.mu.Unlock()

	if !taken {
		c.persist(ctx, rec)
	}
	c.remove(ctx, oldID)
	c.log.Debug("status_rekeyed", map[string]any{"old_order_id": oldID, "order_id": newID, "merged": taken})
}

// Reset stops tracking every order and deletes their stored records.
func (c *Clock) Reset(ctx context.Context) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	c.records = make(map[string]domain.StatusRecord)
	c.mu.Unlock()

	for _, id := range ids {
		c.remove(ctx, id)
	}
	c.log.Info("status_reset", map[string]any{"orders": len(ids)})
}

func (c *Clock) remove(ctx context.Context, orderID string) {
	if err := c.store.Remove(ctx, session.StatusKey(orderID)); err != nil {
		c.log.Error("status_remove_failed", err, map[string]any{"order_id": orderID})
	}
}

// Forget stops tracking orderID; the stored record is kept.
func (c *Clock) Forget(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, orderID)
}

func (c *Clock) trackedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Clock) view(rec domain.StatusRecord, now time.Time) View {
	idx := rec.Status.Index()
	steps := make([]Step, len(domain.StatusSequence))
	for i, s := range domain.StatusSequence {
		steps[i] = Step{Status: s, Done: i < idx || (rec.Status.Terminal() && i == idx), Current: i == idx}
	}
	remaining := Remaining(rec, now, c.durations)
	return View{
		OrderID:      rec.OrderID,
		Status:       rec.Status,
		StartTime:    rec.StartTime,
		EstimatedEnd: EstimatedEnd(rec, c.durations),
		Remaining:    remaining,
		RemainingSec: int64(remaining.Round(time.Second) / time.Second),
		Progress:     Progress(rec, now, c.durations),
		Steps:        steps,
	}
}
