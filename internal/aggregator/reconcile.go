package aggregator

import (
	"guest-ordering/internal/domain"
)

// MergeItems folds incoming into existing: a line whose itemId is already
// present gets its quantity increased, anything else is appended in arrival
// order. Neither input is modified.
func MergeItems(existing, incoming []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(existing)+len(incoming))
	pos := make(map[string]int, len(existing)+len(incoming))
	for _, li := range existing {
		if i, ok := pos[li.ItemID]; ok {
			out[i].Quantity += li.Quantity
			continue
		}
		pos[li.ItemID] = len(out)
		out = append(out, li)
	}
	for _, li := range incoming {
		if i, ok := pos[li.ItemID]; ok {
			out[i].Quantity += li.Quantity
			continue
		}
		pos[li.ItemID] = len(out)
		out = append(out, li)
	}
	return out
}

// Reconcile returns the order the guest should see given the optimistic local
// order and the last authoritative snapshot. The snapshot always wins; local
// only fills in what the server left empty (client id, creation time, table).
func Reconcile(local, confirmed *domain.Order) *domain.Order {
	if confirmed == nil {
		if local == nil {
			return nil
		}
		o := local.Clone()
		return &o
	}
	o := confirmed.Clone()
	o.Items = MergeItems(nil, o.Items)
	o.Recompute()
	o.Status = domain.StateActive
	if local != nil {
		if o.ClientOrderID == "" {
			o.ClientOrderID = local.ClientOrderID
		}
		if o.TableID == "" {
			o.TableID = local.TableID
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = local.CreatedAt
		}
	}
	return &o
}

// State is the two-phase view of the active order.
type State struct {
	Local     *domain.Order
	Confirmed *domain.Order
}

func (s State) Empty() bool { return s.Local == nil }

// Confirm records snapshot as authoritative and rebuilds Local from it.
func (s *State) Confirm(snapshot domain.Order) {
	c := snapshot.Clone()
	s.Confirmed = &c
	s.Local = Reconcile(s.Local, s.Confirmed)
}

func (s *State) Clear() {
	s.Local = nil
	s.Confirmed = nil
}
