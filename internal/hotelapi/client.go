package hotelapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"guest-ordering/internal/common/logger"
	"guest-ordering/internal/domain"
)

var ErrNotFound = errors.New("hotelapi: not found")

type Hotel struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Tables []string `json:"tables,omitempty"`
}

type MenuItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Available   bool            `json:"available"`
}

type PlaceOrderRequest struct {
	TableNo       string            `json:"tableNo"`
	UserID        string            `json:"userId"`
	ClientOrderID string            `json:"clientOrderId,omitempty"`
	Items         []domain.LineItem `json:"items"`
}

// StatusError is returned for any non-2xx answer other than 404.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hotelapi: status %d: %s", e.Code, e.Body)
}

// Client talks to the hotel REST endpoints. Calls are single-shot; retrying
// is left to the caller.
type Client struct {
	http *resty.Client
	log  *logger.Logger
}

func New(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: hc, log: log}
}

func (c *Client) GetHotel(ctx context.Context, hotelID string) (Hotel, error) {
	var h Hotel
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", hotelID).
		SetResult(&h).
		Get("/hotel/{id}")
	if err := c.check("get_hotel", resp, err); err != nil {
		return Hotel{}, fmt.Errorf("get hotel %s: %w", hotelID, err)
	}
	return h, nil
}

func (c *Client) ListItems(ctx context.Context, hotelID string) ([]MenuItem, error) {
	var items []MenuItem
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", hotelID).
		SetResult(&items).
		Get("/hotel/{id}/items")
	if err := c.check("list_items", resp, err); err != nil {
		return nil, fmt.Errorf("list items of %s: %w", hotelID, err)
	}
	return items, nil
}

func (c *Client) PlaceOrder(ctx context.Context, hotelID string, req PlaceOrderRequest) (domain.Order, error) {
	var o domain.Order
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", hotelID).
		SetBody(req).
		SetResult(&o).
		Post("/hotel/{id}/orders")
	if err := c.check("place_order", resp, err); err != nil {
		return domain.Order{}, fmt.Errorf("place order at %s: %w", hotelID, err)
	}
	return o, nil
}

func (c *Client) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("update status of %s: unknown status %q", orderID, status)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", orderID).
		SetBody(map[string]any{"status": status}).
		Patch("/orders/{id}/status")
	if err := c.check("update_status", resp, err); err != nil {
		return fmt.Errorf("update status of %s: %w", orderID, err)
	}
	return nil
}

func (c *Client) check(action string, resp *resty.Response, err error) error {
	if err != nil {
		c.log.Error("hotelapi_"+action+"_failed", err, nil)
		return err
	}
	c.log.Debug("hotelapi_"+action, map[string]any{"status": resp.StatusCode(), "duration_ms": resp.Time().Milliseconds()})
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return ErrNotFound
	case resp.IsError():
		return &StatusError{Code: resp.StatusCode(), Body: string(resp.Body())}
	}
	return nil
}
