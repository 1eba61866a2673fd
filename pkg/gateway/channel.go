package gateway

import (
	"sync"

	"github.com/google/uuid"
	"github.com/mahaj/dupahar-dm/pkg/model"
)

const DefaultQueueSize = 256

// Channel is the server side of one duplex connection. The transport drains
// Outbox and stops writing once Done is closed. The outbox itself is never
// closed, so Push cannot panic after Close.
type Channel struct {
	id   string
	send chan model.Outbound

	done      chan struct{}
	closeOnce sync.Once
}

func NewChannel(queueSize int) *Channel {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Channel{
		id:   uuid.NewString(),
		send: make(chan model.Outbound, queueSize),
		done: make(chan struct{}),
	}
}

func (c *Channel) ID() string { return c.id }

func (c *Channel) Outbox() <-chan model.Outbound { return c.send }

func (c *Channel) Done() <-chan struct{} { return c.done }

// Push enqueues ev without blocking. A full queue means the peer is not
// keeping up; the channel is closed and ErrDelivery returned.
func (c *Channel) Push(ev model.Outbound) error {
	if c.Closed() {
		return ErrChannelClosed
	}
	select {
	case c.send <- ev:
		return nil
	default:
		c.Close()
		return fail(ErrDelivery, "send queue full", nil)
	}
}

// Close marks the channel closed. Safe to call more than once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Channel) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
