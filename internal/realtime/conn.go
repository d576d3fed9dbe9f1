package realtime

import (
	"context"
	"sync"

	"guest-ordering/internal/domain"
)

// Conn is the single process-wide owner of a Channel. Consumers Acquire it;
// the first Acquire connects and the last Release disconnects.
type Conn struct {
	ch *Channel

	mu   sync.Mutex
	refs int
	live bool
}

func NewConn(ch *Channel) *Conn { return &Conn{ch: ch} }

func (c *Conn) Acquire(ctx context.Context) (*Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live {
		if err := c.ch.Connect(ctx); err != nil {
			return nil, err
		}
		c.live = true
	}
	c.refs++
	return c.ch, nil
}

func (c *Conn) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refs == 0 {
		return
	}
	c.refs--
	if c.refs == 0 && c.live {
		_ = c.ch.Close()
		c.live = false
	}
}

// Join points the channel at s. After a Reset it connects again and takes
// the reference Reset dropped.
func (c *Conn) Join(ctx context.Context, s domain.SessionContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live {
		c.ch.SetSession(ctx, s)
		return nil
	}
	c.ch.setIdentity(s)
	if err := c.ch.Connect(ctx); err != nil {
		return err
	}
	c.live = true
	c.refs++
	return nil
}

// Reset tears the connection down regardless of outstanding references.
func (c *Conn) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs = 0
	if !c.live {
		return nil
	}
	c.live = false
	return c.ch.Close()
}

func (c *Conn) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}
