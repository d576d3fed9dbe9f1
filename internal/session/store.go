package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"guest-ordering/internal/common/logger"
	"guest-ordering/internal/domain"
)

var ErrNotFound = errors.New("session: key not found")

// Backend is a durable byte map scoped to one guest session. It carries no
// business logic.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

const (
	KeyActiveOrders = "activeOrders"
	KeyClosedOrders = "closedOrders"
	KeyHotelID      = "hotelId"
	KeyTableID      = "tableId"
	KeyUserID       = "userId"

	statusKeyPrefix = "orderStatus:"
)

func StatusKey(orderID string) string { return statusKeyPrefix + orderID }

// Store layers JSON values over a Backend. Reads fail open: a missing,
// unreadable or corrupted entry is reported as absent and never returned as
// an error. out is only written when the whole entry decodes.
type Store struct {
	backend Backend
	log     *logger.Logger
}

func NewStore(b Backend, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{backend: b, log: log}
}

func (s *Store) Get(ctx context.Context, key string, out any) bool {
	raw, err := s.backend.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if err != nil {
		s.log.Error("session_read_failed", err, map[string]any{"key": key})
		return false
	}
	dst := reflect.ValueOf(out)
	if dst.Kind() != reflect.Pointer || dst.IsNil() {
		s.log.Error("session_read_failed", fmt.Errorf("non-pointer destination %T", out), map[string]any{"key": key})
		return false
	}
	tmp := reflect.New(dst.Elem().Type())
	if err := json.Unmarshal(raw, tmp.Interface()); err != nil {
		s.log.Error("session_entry_corrupted", err, map[string]any{"key": key})
		if derr := s.backend.Delete(ctx, key); derr != nil {
			s.log.Error("session_entry_discard_failed", derr, map[string]any{"key": key})
		}
		return false
	}
	dst.Elem().Set(tmp.Elem())
	return true
}

func (s *Store) Set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.backend.Save(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *Store) ActiveOrders(ctx context.Context) []domain.Order {
	var orders []domain.Order
	if !s.Get(ctx, KeyActiveOrders, &orders) {
		return nil
	}
	return orders
}

func (s *Store) SetActiveOrders(ctx context.Context, orders []domain.Order) error {
	if orders == nil {
		orders = []domain.Order{}
	}
	return s.Set(ctx, KeyActiveOrders, orders)
}

func (s *Store) ClosedOrders(ctx context.Context) []domain.Order {
	var orders []domain.Order
	if !s.Get(ctx, KeyClosedOrders, &orders) {
		return nil
	}
	return orders
}

func (s *Store) SetClosedOrders(ctx context.Context, orders []domain.Order) error {
	if orders == nil {
		orders = []domain.Order{}
	}
	return s.Set(ctx, KeyClosedOrders, orders)
}

func (s *Store) Identity(ctx context.Context) domain.SessionContext {
	var id domain.SessionContext
	s.Get(ctx, KeyHotelID, &id.HotelID)
	s.Get(ctx, KeyTableID, &id.TableID)
	s.Get(ctx, KeyUserID, &id.UserID)
	return id
}

func (s *Store) SetIdentity(ctx context.Context, id domain.SessionContext) error {
	if err := s.Set(ctx, KeyHotelID, id.HotelID); err != nil {
		return err
	}
	if err := s.Set(ctx, KeyTableID, id.TableID); err != nil {
		return err
	}
	return s.Set(ctx, KeyUserID, id.UserID)
}

func (s *Store) StatusRecord(ctx context.Context, orderID string) (domain.StatusRecord, bool) {
	var rec domain.StatusRecord
	if !s.Get(ctx, StatusKey(orderID), &rec) {
		return domain.StatusRecord{}, false
	}
	if !rec.Status.Valid() || rec.StartTime.IsZero() {
		s.log.Error("session_entry_corrupted", fmt.Errorf("invalid status record %q", rec.Status), map[string]any{"key": StatusKey(orderID)})
		_ = s.Remove(ctx, StatusKey(orderID))
		return domain.StatusRecord{}, false
	}
	return rec, true
}

func (s *Store) SetStatusRecord(ctx context.Context, rec domain.StatusRecord) error {
	return s.Set(ctx, StatusKey(rec.OrderID), rec)
}

// Reset drops identity and order lists; used on an explicit leave-all.
func (s *Store) Reset(ctx context.Context) error {
	for _, k := range []string{KeyActiveOrders, KeyClosedOrders, KeyHotelID, KeyTableID, KeyUserID} {
		if err := s.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
