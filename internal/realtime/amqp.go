package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"guest-ordering/internal/common/logger"
	"guest-ordering/internal/common/mq"
)

const DefaultExchange = "orders_realtime"

// AMQPTransport maps topics onto routing keys of one topic exchange. Every
// subscription owns an exclusive auto-delete queue, so after a reconnect the
// transport binds them again before running the OnConnected hooks.
type AMQPTransport struct {
	opts     mq.Options
	exchange string
	retry    time.Duration
	log      *logger.Logger

	mu        sync.Mutex
	client    *mq.Client
	subs      map[*amqpSub]struct{}
	connected []func()
	done      chan struct{}
}

type amqpSub struct {
	t     *AMQPTransport
	key   string
	fn    func([]byte)
	queue string
}

func NewAMQPTransport(opts mq.Options, retry time.Duration, log *logger.Logger) *AMQPTransport {
	if log == nil {
		log = logger.Nop()
	}
	if retry <= 0 {
		retry = 2 * time.Second
	}
	return &AMQPTransport{
		opts:     opts,
		exchange: DefaultExchange,
		retry:    retry,
		log:      log,
		subs:     make(map[*amqpSub]struct{}),
	}
}

func (t *AMQPTransport) OnConnected(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = append(t.connected, fn)
}

func (t *AMQPTransport) fire() {
	t.mu.Lock()
	hooks := append([]func(){}, t.connected...)
	t.mu.Unlock()
	for _, h := range hooks {
		h()
	}
}

func (t *AMQPTransport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	if t.client != nil {
		t.mu.Unlock()
		return nil
	}
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	closed, err := t.dial()
	if err != nil {
		return fmt.Errorf("connect rabbitmq %s:%d: %w", t.opts.Host, t.opts.Port, err)
	}
	t.log.Info("realtime_connected", map[string]any{"transport": "amqp", "host": t.opts.Host})
	go t.watch(closed, done)
	t.fire()
	return nil
}

func (t *AMQPTransport) dial() (<-chan *amqp.Error, error) {
	client, err := mq.Dial(t.opts)
	if err != nil {
		return nil, err
	}
	closed := client.NotifyClose()
	if err := client.DeclareTopic(t.exchange); err != nil {
		client.Close()
		return nil, fmt.Errorf("declare %s: %w", t.exchange, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for s := range t.subs {
		if err := t.bind(client, s); err != nil {
			client.Close()
			return nil, err
		}
	}
	t.client = client
	return closed, nil
}

func (t *AMQPTransport) bind(client *mq.Client, s *amqpSub) error {
	msgs, queue, err := client.Bind(t.exchange, s.key)
	if err != nil {
		return err
	}
	s.queue = queue
	go func() {
		for d := range msgs {
			s.fn(d.Body)
		}
	}()
	return nil
}

// watch redials after the broker drops the connection until Close is called.
func (t *AMQPTransport) watch(closed <-chan *amqp.Error, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case e, ok := <-closed:
			if !ok {
				select {
				case <-done:
					return
				default:
				}
			}
			var cause error = ErrDisconnected
			if e != nil {
				cause = e
			}
			t.log.Error("realtime_disconnected", cause, map[string]any{"transport": "amqp"})
			t.mu.Lock()
			t.client = nil
			t.mu.Unlock()

			next, ok := t.redial(done)
			if !ok {
				return
			}
			closed = next
			t.log.Info("realtime_reconnected", map[string]any{"transport": "amqp", "host": t.opts.Host})
			t.fire()
		}
	}
}

func (t *AMQPTransport) redial(done chan struct{}) (<-chan *amqp.Error, bool) {
	for {
		select {
		case <-done:
			return nil, false
		case <-time.After(t.retry):
		}
		closed, err := t.dial()
		if err == nil {
			return closed, true
		}
		t.log.Debug("realtime_redial_failed", map[string]any{"transport": "amqp", "error": err.Error()})
	}
}

func (t *AMQPTransport) Publish(ctx context.Context, topic string, data []byte) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()
	if client == nil || client.IsClosed() {
		return ErrDisconnected
	}
	if err := client.PublishTransient(ctx, t.exchange, topic, data); err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

func (t *AMQPTransport) Subscribe(topic string, fn func([]byte)) (Subscription, error) {
	s := &amqpSub{t: t, key: topic, fn: fn}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		if err := t.bind(t.client, s); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	t.subs[s] = struct{}{}
	return s, nil
}

func (s *amqpSub) Unsubscribe() error {
	t := s.t
	t.mu.Lock()
	delete(t.subs, s)
	client := t.client
	t.mu.Unlock()
	if client == nil || s.queue == "" {
		return nil
	}
	return client.Unbind(s.queue)
}

func (t *AMQPTransport) Close() error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	t.mu.Unlock()
	if client != nil {
		client.Close()
	}
	return nil
}
