package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"guest-ordering/internal/common/logger"
)

// NATSTransport uses core NATS subjects. The client reconnects forever and
// keeps subscriptions across reconnects. The reconnect buffer is disabled so
// publishes during an outage fail instead of queueing.
type NATSTransport struct {
	url  string
	wait time.Duration
	log  *logger.Logger

	mu        sync.Mutex
	nc        *nats.Conn
	connected []func()
	// joined is set once the hooks ran for the current connection.
	joined bool
}

func NewNATSTransport(url string, reconnectWait time.Duration, log *logger.Logger) *NATSTransport {
	if log == nil {
		log = logger.Nop()
	}
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	return &NATSTransport{url: url, wait: reconnectWait, log: log}
}

func (t *NATSTransport) OnConnected(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = append(t.connected, fn)
}

func (t *NATSTransport) fire() {
	t.mu.Lock()
	if t.joined {
		t.mu.Unlock()
		return
	}
	t.joined = true
	hooks := append([]func(){}, t.connected...)
	t.mu.Unlock()
	for _, h := range hooks {
		h()
	}
}

func (t *NATSTransport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	if t.nc != nil && !t.nc.IsClosed() {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	nc, err := nats.Connect(t.url,
		nats.Name("guest-ordering"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(t.wait),
		nats.ReconnectBufSize(-1),
		nats.RetryOnFailedConnect(true),
		nats.ConnectHandler(func(nc *nats.Conn) {
			t.adopt(nc)
			t.log.Info("realtime_connected", map[string]any{"transport": "nats", "url": nc.ConnectedUrl()})
			go t.fire()
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			t.mu.Lock()
			t.joined = false
			t.mu.Unlock()
			t.log.Error("realtime_disconnected", err, map[string]any{"transport": "nats"})
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			t.adopt(nc)
			t.log.Info("realtime_reconnected", map[string]any{"transport": "nats", "url": nc.ConnectedUrl()})
			go t.fire()
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			t.log.Debug("realtime_closed", map[string]any{"transport": "nats"})
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats %s: %w", t.url, err)
	}

	t.adopt(nc)
	if !nc.IsConnected() {
		// ConnectHandler fires once the server is reachable
		t.log.Info("realtime_connect_pending", map[string]any{"transport": "nats", "url": t.url})
		return nil
	}
	t.log.Info("realtime_connected", map[string]any{"transport": "nats", "url": nc.ConnectedUrl()})
	t.fire()
	return nil
}

// adopt records nc unless Close already ran.
func (t *NATSTransport) adopt(nc *nats.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !nc.IsClosed() {
		t.nc = nc
	}
}

func (t *NATSTransport) conn() *nats.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nc
}

func (t *NATSTransport) Publish(_ context.Context, topic string, data []byte) error {
	nc := t.conn()
	if nc == nil || !nc.IsConnected() {
		return ErrDisconnected
	}
	if err := nc.Publish(topic, data); err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

func (t *NATSTransport) Subscribe(topic string, fn func([]byte)) (Subscription, error) {
	nc := t.conn()
	if nc == nil || nc.IsClosed() {
		return nil, ErrDisconnected
	}
	sub, err := nc.Subscribe(topic, func(m *nats.Msg) { fn(m.Data) })
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return sub, nil
}

func (t *NATSTransport) Close() error {
	t.mu.Lock()
	nc := t.nc
	t.nc = nil
	t.joined = false
	t.mu.Unlock()
	if nc != nil {
		nc.Close()
	}
	return nil
}
