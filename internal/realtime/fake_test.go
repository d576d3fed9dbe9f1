package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"guest-ordering/internal/domain"
)

type published struct {
	topic string
	env   domain.Envelope
}

type fakeSub struct {
	t     *fakeTransport
	topic string
}

func (s *fakeSub) Unsubscribe() error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	delete(s.t.subs, s.topic)
	return nil
}

// fakeTransport delivers synchronously and drops publishes while offline.
type fakeTransport struct {
	mu        sync.Mutex
	online    bool
	connects  int
	closes    int
	subs      map[string]func([]byte)
	subCalls  int
	sent      []published
	connected []func()
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string]func([]byte))}
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	f.online = true
	f.connects++
	f.mu.Unlock()
	f.fire()
	return nil
}

func (f *fakeTransport) fire() {
	f.mu.Lock()
	hooks := append([]func(){}, f.connected...)
	f.mu.Unlock()
	for _, h := range hooks {
		h()
	}
}

func (f *fakeTransport) drop() {
	f.mu.Lock()
	f.online = false
	f.mu.Unlock()
}

func (f *fakeTransport) reconnect() {
	f.mu.Lock()
	f.online = true
	f.mu.Unlock()
	f.fire()
}

func (f *fakeTransport) Publish(_ context.Context, topic string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return ErrDisconnected
	}
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	f.sent = append(f.sent, published{topic: topic, env: env})
	return nil
}

func (f *fakeTransport) Subscribe(topic string, fn func([]byte)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[topic] = fn
	f.subCalls++
	return &fakeSub{t: f, topic: topic}, nil
}

func (f *fakeTransport) OnConnected(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, fn)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = false
	f.closes++
	return nil
}

func (f *fakeTransport) deliver(t *testing.T, topic, event string, payload any) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	frame, _ := json.Marshal(domain.Envelope{Event: event, Payload: body})
	f.deliverRaw(topic, frame)
}

func (f *fakeTransport) deliverRaw(topic string, frame []byte) {
	f.mu.Lock()
	fn := f.subs[topic]
	f.mu.Unlock()
	if fn != nil {
		fn(frame)
	}
}

func (f *fakeTransport) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		out = append(out, p.env.Event)
	}
	return out
}

func (f *fakeTransport) last() published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}
