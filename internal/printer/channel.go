// Package printer owns the connection to the receipt printer. A Channel holds
// at most one open Link; transports for serial ports, raw TCP sockets, files
// and IPP queues register themselves by port scheme.
package printer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"agendaprint/internal/compose"
)

const (
	DefaultOpenTimeout  = 5 * time.Second
	DefaultWriteTimeout = 15 * time.Second
)

type Options struct {
	OpenTimeout  time.Duration
	WriteTimeout time.Duration
	// Probe asks the printer for a status byte after opening serial ports.
	Probe bool
	Width int
}

// Channel does not retry. Callers decide whether to reconnect after a
// failure.
type Channel struct {
	opts Options

	mu     sync.Mutex
	link   Link
	target Target
}

func NewChannel(opts Options) *Channel {
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = DefaultOpenTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Width <= 0 {
		opts.Width = compose.DefaultWidth
	}
	return &Channel{opts: opts}
}

// Connect opens t. It is a no-op when already connected to t; a connection
// to any other target is closed first.
func (c *Channel) Connect(ctx context.Context, t Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != nil && c.target == t {
		return nil
	}
	c.closeLocked()
	link, err := c.open(ctx, t)
	if err != nil {
		return err
	}
	c.link = link
	c.target = t
	return nil
}

// Transmit writes the encoded blocks and waits for them to leave the host.
// Any failure closes the connection; partial writes are never reported as
// success.
func (c *Channel) Transmit(ctx context.Context, blocks []compose.Block) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return 0, WrapTransmit("transmit", c.target.Port, ErrNotConnected)
	}
	payload := Encode(blocks, c.opts.Width)
	n, err := c.send(ctx, c.link, payload)
	if err != nil {
		port := c.target.Port
		c.closeLocked()
		return n, WrapTransmit("transmit", port, err)
	}
	return n, nil
}

// Encode renders blocks with the channel's paper width.
func (c *Channel) Encode(blocks []compose.Block) []byte {
	return Encode(blocks, c.opts.Width)
}

// Test prints a short identifying receipt on t. When the channel is already
// connected to t the open link is reused; otherwise a temporary link is
// opened and closed, leaving the main connection alone.
func (c *Channel) Test(ctx context.Context, t Target, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload := Encode(SelfTestBlocks(t, now), c.opts.Width)
	if c.link != nil && c.target == t {
		if _, err := c.send(ctx, c.link, payload); err != nil {
			c.closeLocked()
			return WrapTransmit("test", t.Port, err)
		}
		return nil
	}
	link, err := c.open(ctx, t)
	if err != nil {
		return err
	}
	defer link.Close()
	if _, err := c.send(ctx, link, payload); err != nil {
		return WrapTransmit("test", t.Port, err)
	}
	return nil
}

// Disconnect is safe to call when not connected.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Channel) Connected() (Target, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target, c.link != nil
}

// SelfTestBlocks is the short receipt printed by Test.
func SelfTestBlocks(t Target, now time.Time) []compose.Block {
	return []compose.Block{
		{Kind: compose.KindText, Style: compose.StyleEmphasis, Text: "agendaprint test page"},
		{Kind: compose.KindText, Text: "Port: " + t.String()},
		{Kind: compose.KindText, Text: now.Format("2006-01-02 15:04:05")},
		{Kind: compose.KindFeed, Lines: 3},
		{Kind: compose.KindCut},
	}
}

func (c *Channel) closeLocked() error {
	if c.link == nil {
		return nil
	}
	err := c.link.Close()
	c.link = nil
	return err
}

func (c *Channel) open(ctx context.Context, t Target) (Link, error) {
	tr := ForPort(t.Port)
	if tr == nil {
		return nil, WrapConnection("open", t.Port, ErrUnsupportedPort)
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpenTimeout)
	defer cancel()

	type result struct {
		link Link
		err  error
	}
	done := make(chan result, 1)
	go func() {
		link, err := tr.Open(ctx, t)
		done <- result{link, err}
	}()
	var link Link
	select {
	case r := <-done:
		if r.err != nil {
			return nil, WrapConnection("open", t.Port, r.err)
		}
		link = r.link
	case <-ctx.Done():
		go func() {
			if r := <-done; r.link != nil {
				_ = r.link.Close()
			}
		}()
		return nil, WrapConnection("open", t.Port, fmt.Errorf("no answer within %s: %w", c.opts.OpenTimeout, ctx.Err()))
	}

	if p, ok := link.(prober); ok && c.opts.Probe {
		if err := p.Probe(ctx); err != nil {
			_ = link.Close()
			return nil, WrapConnection("probe", t.Port, err)
		}
	}
	return link, nil
}

// send writes payload and flushes it under the write timeout. A timed out
// write keeps running until the caller closes the link.
func (c *Channel) send(ctx context.Context, link Link, payload []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := writeAll(link, payload)
		if err == nil {
			err = link.Flush(ctx)
		}
		done <- result{n, err}
	}()
	select {
	case r := <-done:
		return r.n, r.err
	case <-ctx.Done():
		return 0, fmt.Errorf("write did not complete within %s: %w", c.opts.WriteTimeout, ctx.Err())
	}
}

func writeAll(w io.Writer, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := w.Write(p[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}
