package services

import (
	"sync"

	"github.com/coder/quartz"

	"FOCUS_TRACKER/go-backend/internal/protocol"
	"FOCUS_TRACKER/go-backend/internal/session"
)

const DefaultSendBuffer = 256

// Client is one registered connection. The send channel is never closed;
// done is closed instead so that a late Send cannot panic.
type Client struct {
	ID string

	send      chan protocol.Outbound
	done      chan struct{}
	closeOnce sync.Once
	machine   *session.Machine
}

func NewClient(id string, clock quartz.Clock, buffer int) *Client {
	if buffer < 1 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		ID:      id,
		send:    make(chan protocol.Outbound, buffer),
		done:    make(chan struct{}),
		machine: session.NewMachine(clock),
	}
}

// Send queues msg for the writer without blocking. It reports false when the
// buffer is full or the client is closed.
func (c *Client) Send(msg protocol.Outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Outbound is drained by the connection's writer.
func (c *Client) Outbound() <-chan protocol.Outbound {
	return c.send
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) Session() *session.Machine {
	return c.machine
}
