package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"guest-ordering/internal/common/logger"
	"guest-ordering/internal/domain"
	"guest-ordering/internal/hotelapi"
	"guest-ordering/internal/session"
	"guest-ordering/internal/statusclock"
)

var (
	ErrEmptyCart    = errors.New("aggregator: no items to add")
	ErrInvalidItem  = errors.New("aggregator: invalid line item")
	ErrUnknownOrder = errors.New("aggregator: order is not the active order")
)

// Intents is the outbound half of the realtime channel.
type Intents interface {
	CreateOrder(ctx context.Context, clientOrderID string, items []domain.LineItem, tableID string) error
	AddItem(ctx context.Context, orderID string, item domain.LineItem) error
	CloseOrder(ctx context.Context, orderID string) error
}

// Tracker starts status tracking for new orders. *statusclock.Clock implements it.
type Tracker interface {
	Initialize(ctx context.Context, orderID string) statusclock.View
	Rekey(ctx context.Context, oldID, newID string)
}

// Placer creates an order over REST. It is used when the create intent
// could not be sent. *hotelapi.Client implements it.
type Placer interface {
	PlaceOrder(ctx context.Context, hotelID string, req hotelapi.PlaceOrderRequest) (domain.Order, error)
}

type Option func(*Aggregator)

func WithNow(now func() time.Time) Option { return func(a *Aggregator) { a.now = now } }

func WithIDs(next func() string) Option { return func(a *Aggregator) { a.newID = next } }

func WithTracker(t Tracker) Option { return func(a *Aggregator) { a.tracker = t } }

func WithPlacer(p Placer) Option { return func(a *Aggregator) { a.placer = p } }

// Aggregator keeps at most one active order per session. All reads and
// writes of the order lists go through mu so read-merge-write is atomic.
type Aggregator struct {
	store   *session.Store
	intents Intents
	tracker Tracker
	placer  Placer
	log     *logger.Logger
	now     func() time.Time
	newID   func() string

	mu      sync.Mutex
	session domain.SessionContext
	state   State
	closed  []domain.Order
	// unlinked holds closed orders whose server id was never learned.
	unlinked []string
}

func New(store *session.Store, intents Intents, sess domain.SessionContext, log *logger.Logger, opts ...Option) *Aggregator {
	if log == nil {
		log = logger.Nop()
	}
	a := &Aggregator{
		store:   store,
		intents: intents,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
		session: sess,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Load restores the active order and closed history from the store. Extra
// active entries left by an older session are folded into the first one.
func (a *Aggregator) Load(ctx context.Context) {
	active := a.store.ActiveOrders(ctx)
	closed := a.store.ClosedOrders(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.Clear()
	a.closed = closed
	if len(active) == 0 {
		return
	}
	o := active[0].Clone()
	for _, extra := range active[1:] {
		o.Items = MergeItems(o.Items, extra.Items)
	}
	o.Items = validLines(o.Items)
	if len(o.Items) == 0 {
		a.log.Error("active_order_discarded", fmt.Errorf("%w: no valid lines", ErrInvalidItem), map[string]any{"order_id": o.ID})
		a.persistActive(ctx)
		return
	}
	o.Status = domain.StateActive
	o.Recompute()
	a.state.Local = &o
	if len(active) > 1 || len(o.Items) != len(active[0].Items) {
		a.log.Info("active_order_repaired", map[string]any{"order_id": o.ID, "count": len(active)})
		a.persistActive(ctx)
	}
}

func (a *Aggregator) SetSession(s domain.SessionContext) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = s
}

// AddToOrder merges items into the active order, creating it when there is
// none. The merged order is persisted before any intent is emitted. total is
// only a seed for a brand-new order; the stored total is always recomputed.
func (a *Aggregator) AddToOrder(ctx context.Context, items []domain.LineItem, total decimal.Decimal, tableID string) (domain.Order, error) {
	if len(items) == 0 {
		return domain.Order{}, ErrEmptyCart
	}
	for _, li := range items {
		if err := validate(li); err != nil {
			return domain.Order{}, err
		}
	}
	incoming := MergeItems(nil, items)

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	created := a.state.Empty()
	var o domain.Order
	if created {
		if tableID == "" {
			tableID = a.session.TableID
		}
		id := a.newID()
		o = domain.Order{
			ID:            id,
			ClientOrderID: id,
			Items:         incoming,
			Total:         total,
			Status:        domain.StateActive,
			TableID:       tableID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if sum := domain.SumItems(o.Items); !sum.Equal(total) {
			a.log.Debug("total_recomputed", map[string]any{"given": total.String(), "computed": sum.String()})
		}
	} else {
		o = a.state.Local.Clone()
		o.Items = MergeItems(o.Items, incoming)
		o.UpdatedAt = now
	}
	o.Recompute()
	a.state.Local = &o
	a.persistActive(ctx)

	if created {
		a.log.Info("order_created", map[string]any{"order_id": o.ID, "items": len(o.Items), "total": o.Total.String()})
		if a.tracker != nil {
			a.tracker.Initialize(ctx, o.ID)
		}
		if err := a.intents.CreateOrder(ctx, o.ID, o.Items, o.TableID); err != nil {
			a.log.Error("create_order_intent_failed", err, map[string]any{"order_id": o.ID})
			a.placeOverREST(ctx, o)
		}
		return a.state.Local.Clone(), nil
	}

	a.log.Info("order_merged", map[string]any{"order_id": o.ID, "items": len(o.Items), "total": o.Total.String()})
	for _, li := range incoming {
		if err := a.intents.AddItem(ctx, o.ID, li); err != nil {
			a.log.Error("add_item_intent_failed", err, map[string]any{"order_id": o.ID, "item_id": li.ItemID})
		}
	}
	return o.Clone(), nil
}

// CloseOrder drops the active order right away and records it as closed. A
// missing server confirmation is not rolled back.
func (a *Aggregator) CloseOrder(ctx context.Context, orderID string) (domain.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.Empty() || a.state.Local.ID != orderID {
		return domain.Order{}, fmt.Errorf("close %s: %w", orderID, ErrUnknownOrder)
	}
	o := a.state.Local.Clone()
	o.Status = domain.StateClosed
	o.UpdatedAt = a.now()
	if a.state.Confirmed == nil {
		a.unlinked = append(a.unlinked, o.ID)
	}
	a.state.Clear()
	a.appendClosed(o)
	a.persistActive(ctx)
	a.persistClosed(ctx)
	a.log.Info("order_closed", map[string]any{"order_id": o.ID, "total": o.Total.String()})

	if err := a.intents.CloseOrder(ctx, orderID); err != nil {
		a.log.Error("close_order_intent_failed", err, map[string]any{"order_id": orderID})
	}
	return o, nil
}

// Apply reconciles an authoritative server event. Snapshots replace local
// items wholesale; a snapshot with a different id becomes the active order
// unless it belongs to an order the guest already closed.
func (a *Aggregator) Apply(ctx context.Context, ev domain.OrderEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := ev.Order
	switch ev.Type {
	case domain.EventOrderCreated, domain.EventOrderUpdated:
		if i := a.closedIndex(snap); i >= 0 {
			if a.link(ctx, i, snap.ID) {
				a.closeOnServer(ctx, snap.ID)
			}
			a.log.Debug("event_for_closed_order", map[string]any{"event": ev.Type, "order_id": snap.ID})
			return
		}
		if a.state.Empty() && snap.ClientOrderID == "" && len(a.unlinked) > 0 {
			// the reply to a create whose order was closed before the server answered
			i := a.indexOf(a.unlinked[0])
			if i >= 0 && a.link(ctx, i, snap.ID) {
				a.closeOnServer(ctx, snap.ID)
				a.log.Debug("event_for_closed_order", map[string]any{"event": ev.Type, "order_id": snap.ID})
				return
			}
		}
		a.confirm(ctx, snap)

	case domain.EventOrderClosed:
		o := snap.Clone()
		if !a.state.Empty() && (a.state.Local.ID == snap.ID || a.state.Local.ID == snap.ClientOrderID) {
			if len(o.Items) == 0 {
				o.Items = a.state.Local.Items
			}
			if o.ClientOrderID == "" {
				o.ClientOrderID = a.state.Local.ClientOrderID
			}
			a.state.Clear()
			a.persistActive(ctx)
		}
		if i := a.closedIndex(o); i >= 0 {
			a.link(ctx, i, o.ID)
			return
		}
		o.Status = domain.StateClosed
		o.Recompute()
		a.appendClosed(o)
		a.persistClosed(ctx)
		a.log.Info("order_closed_by_server", map[string]any{"order_id": o.ID})
	}
}

// confirm makes snap the active order.
func (a *Aggregator) confirm(ctx context.Context, snap domain.Order) {
	prev := ""
	if !a.state.Empty() {
		prev = a.state.Local.ID
	}
	if prev != snap.ID {
		a.state.Confirmed = nil
		a.log.Info("order_adopted", map[string]any{"order_id": snap.ID, "previous_id": prev})
	}
	a.state.Confirm(snap)
	a.persistActive(ctx)
	if a.tracker == nil {
		return
	}
	switch {
	case prev == "":
		a.tracker.Initialize(ctx, snap.ID)
	case prev != snap.ID:
		a.tracker.Rekey(ctx, prev, snap.ID)
	}
}

// placeOverREST creates o through the hotel API after the create intent was
// dropped. Failure leaves the optimistic order in place.
func (a *Aggregator) placeOverREST(ctx context.Context, o domain.Order) {
	if a.placer == nil {
		return
	}
	snap, err := a.placer.PlaceOrder(ctx, a.session.HotelID, hotelapi.PlaceOrderRequest{
		TableNo:       o.TableID,
		UserID:        a.session.UserID,
		ClientOrderID: o.ClientOrderID,
		Items:         o.Items,
	})
	if err != nil {
		a.log.Error("place_order_fallback_failed", err, map[string]any{"order_id": o.ID})
		return
	}
	if snap.ID == "" {
		snap.ID = o.ID
	}
	if snap.ClientOrderID == "" {
		snap.ClientOrderID = o.ClientOrderID
	}
	a.log.Info("order_placed_over_rest", map[string]any{"order_id": snap.ID, "client_order_id": o.ClientOrderID})
	a.confirm(ctx, snap)
}

// closedIndex finds the closed order snap refers to, by server or client id.
func (a *Aggregator) closedIndex(snap domain.Order) int {
	for i, o := range a.closed {
		if o.ID == snap.ID {
			return i
		}
		if snap.ClientOrderID != "" && (o.ID == snap.ClientOrderID || o.ClientOrderID == snap.ClientOrderID) {
			return i
		}
	}
	return -1
}

func (a *Aggregator) indexOf(id string) int {
	for i, o := range a.closed {
		if o.ID == id {
			return i
		}
	}
	return -1
}

// link records serverID as the id of closed order i. It reports whether the
// id changed, which means the server never saw the close under that id.
func (a *Aggregator) link(ctx context.Context, i int, serverID string) bool {
	o := &a.closed[i]
	oldID := o.ID
	for j, id := range a.unlinked {
		if id == oldID {
			a.unlinked = append(a.unlinked[:j], a.unlinked[j+1:]...)
			break
		}
	}
	if serverID == "" || oldID == serverID {
		return false
	}
	if o.ClientOrderID == "" {
		o.ClientOrderID = oldID
	}
	o.ID = serverID
	a.persistClosed(ctx)
	if a.tracker != nil {
		a.tracker.Rekey(ctx, oldID, serverID)
	}
	a.log.Info("closed_order_linked", map[string]any{"order_id": serverID, "client_order_id": oldID})
	return true
}

func (a *Aggregator) closeOnServer(ctx context.Context, orderID string) {
	if err := a.intents.CloseOrder(ctx, orderID); err != nil {
		a.log.Error("close_order_intent_failed", err, map[string]any{"order_id": orderID})
	}
}

func (a *Aggregator) Active() (domain.Order, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Empty() {
		return domain.Order{}, false
	}
	return a.state.Local.Clone(), true
}

// Confirmed returns the last authoritative snapshot of the active order.
func (a *Aggregator) Confirmed() (domain.Order, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Confirmed == nil {
		return domain.Order{}, false
	}
	return a.state.Confirmed.Clone(), true
}

func (a *Aggregator) Closed() []domain.Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Order, len(a.closed))
	for i, o := range a.closed {
		out[i] = o.Clone()
	}
	return out
}

// Reset forgets all orders in memory. Clearing the store is the caller's job.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.Clear()
	a.closed = nil
	a.unlinked = nil
}

func (a *Aggregator) appendClosed(o domain.Order) {
	a.closed = append(a.closed, o)
}

func (a *Aggregator) persistActive(ctx context.Context) {
	var active []domain.Order
	if !a.state.Empty() {
		active = []domain.Order{*a.state.Local}
	}
	if err := a.store.SetActiveOrders(ctx, active); err != nil {
		a.log.Error("active_orders_persist_failed", err, nil)
	}
}

func (a *Aggregator) persistClosed(ctx context.Context) {
	if err := a.store.SetClosedOrders(ctx, a.closed); err != nil {
		a.log.Error("closed_orders_persist_failed", err, nil)
	}
}

func validLines(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(items))
	for _, li := range items {
		if validate(li) == nil {
			out = append(out, li)
		}
	}
	return out
}

func validate(li domain.LineItem) error {
	switch {
	case li.ItemID == "":
		return fmt.Errorf("%w: missing itemId", ErrInvalidItem)
	case li.Quantity <= 0:
		return fmt.Errorf("%w: %s quantity %d", ErrInvalidItem, li.ItemID, li.Quantity)
	case li.UnitPrice.IsNegative():
		return fmt.Errorf("%w: %s negative price", ErrInvalidItem, li.ItemID)
	}
	return nil
}
