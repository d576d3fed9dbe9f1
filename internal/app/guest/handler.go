package guest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"guest-ordering/internal/aggregator"
	"guest-ordering/internal/common/httpx"
	"guest-ordering/internal/common/logger"
	"guest-ordering/internal/domain"
	"guest-ordering/internal/hotelapi"
	"guest-ordering/internal/session"
	"guest-ordering/internal/statusclock"
)

type Orders interface {
	AddToOrder(ctx context.Context, items []domain.LineItem, total decimal.Decimal, tableID string) (domain.Order, error)
	CloseOrder(ctx context.Context, orderID string) (domain.Order, error)
	Active() (domain.Order, bool)
	Closed() []domain.Order
	SetSession(s domain.SessionContext)
	Reset()
}

type Tracking interface {
	View(orderID string) (statusclock.View, bool)
	Reset(ctx context.Context)
}

type Menu interface {
	GetHotel(ctx context.Context, hotelID string) (hotelapi.Hotel, error)
	ListItems(ctx context.Context, hotelID string) ([]hotelapi.MenuItem, error)
}

// Realtime is the shared channel connection: Join follows the session
// identity into its room, Reset drops the connection.
type Realtime interface {
	Join(ctx context.Context, s domain.SessionContext) error
	Reset() error
}

type Handler struct {
	store    *session.Store
	orders   Orders
	tracking Tracking
	menu     Menu
	realtime Realtime
	log      *logger.Logger
}

type Deps struct {
	Store    *session.Store
	Orders   Orders
	Tracking Tracking
	Menu     Menu
	Realtime Realtime
	Log      *logger.Logger
}

func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return &Handler{
		store:    d.Store,
		orders:   d.Orders,
		tracking: d.Tracking,
		menu:     d.Menu,
		realtime: d.Realtime,
		log:      d.Log,
	}
}

type addItemsRequest struct {
	Items   []domain.LineItem `json:"items"`
	Total   decimal.Decimal   `json:"total"`
	TableID string            `json:"tableId,omitempty"`
}

func (h *Handler) SetSession(w http.ResponseWriter, r *http.Request) {
	var s domain.SessionContext
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	if !s.Valid() {
		httpx.WriteProblem(w, http.StatusBadRequest, "invalid_session", "hotelId and tableId are required")
		return
	}
	if h.menu != nil {
		_, err := h.menu.GetHotel(r.Context(), s.HotelID)
		if errors.Is(err, hotelapi.ErrNotFound) {
			httpx.WriteProblem(w, http.StatusNotFound, "unknown_hotel", err.Error())
			return
		}
		if err != nil {
			// hotel API being down must not block joining
			h.log.Error("hotel_lookup_failed", err, map[string]any{"hotel_id": s.HotelID})
		}
	}
	if err := h.store.SetIdentity(r.Context(), s); err != nil {
		h.log.Error("session_persist_failed", err, nil)
	}
	h.orders.SetSession(s)
	if h.realtime != nil {
		if err := h.realtime.Join(r.Context(), s); err != nil {
			h.log.Error("room_join_failed", err, map[string]any{"hotel_id": s.HotelID, "table_id": s.TableID})
		}
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.store.Identity(r.Context()))
}

// LeaveSession is the explicit leave-all: orders, their status records,
// identity and the shared connection all go.
func (h *Handler) LeaveSession(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reset(r.Context()); err != nil {
		h.log.Error("session_reset_failed", err, nil)
	}
	h.orders.Reset()
	h.tracking.Reset(r.Context())
	if h.realtime != nil {
		if err := h.realtime.Reset(); err != nil {
			h.log.Error("realtime_reset_failed", err, nil)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddItems(w http.ResponseWriter, r *http.Request) {
	var req addItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteProblem(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	o, err := h.orders.AddToOrder(r.Context(), req.Items, req.Total, req.TableID)
	switch {
	case errors.Is(err, aggregator.ErrEmptyCart), errors.Is(err, aggregator.ErrInvalidItem):
		httpx.WriteProblem(w, http.StatusBadRequest, "invalid_items", err.Error())
		return
	case err != nil:
		httpx.WriteProblem(w, http.StatusInternalServerError, "order_error", err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) GetActive(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orders.Active()
	if !ok {
		httpx.WriteProblem(w, http.StatusNotFound, "not_found", "no active order")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) GetClosed(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": h.orders.Closed()})
}

func (h *Handler) CloseOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orderID")
	o, err := h.orders.CloseOrder(r.Context(), id)
	if errors.Is(err, aggregator.ErrUnknownOrder) {
		httpx.WriteProblem(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		httpx.WriteProblem(w, http.StatusInternalServerError, "order_error", err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) GetTracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orderID")
	v, ok := h.tracking.View(id)
	if !ok {
		httpx.WriteProblem(w, http.StatusNotFound, "not_found", "order is not tracked")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	s := h.store.Identity(r.Context())
	if s.HotelID == "" {
		httpx.WriteProblem(w, http.StatusConflict, "no_session", "join a hotel first")
		return
	}
	items, err := h.menu.ListItems(r.Context(), s.HotelID)
	if errors.Is(err, hotelapi.ErrNotFound) {
		httpx.WriteProblem(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if err != nil {
		httpx.WriteProblem(w, http.StatusBadGateway, "hotel_api_error", err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"hotelId": s.HotelID, "items": items})
}
