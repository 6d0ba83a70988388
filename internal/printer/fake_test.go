package printer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeDevice struct {
	mu        sync.Mutex
	opens     int
	closes    int
	openErr   error
	openDelay time.Duration
	probeErr  error
	writeErr  error
	block     chan struct{}
	data      bytes.Buffer
}

func (d *fakeDevice) counts() (opens, closes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens, d.closes
}

func (d *fakeDevice) bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.data.Bytes()...)
}

var fakeDevices sync.Map

type fakeTransport struct{}

func init() {
	Register(fakeTransport{})
}

func (fakeTransport) Schemes() []string {
	return []string{"fake"}
}

func (fakeTransport) Open(ctx context.Context, t Target) (Link, error) {
	v, ok := fakeDevices.Load(t.Port)
	if !ok {
		return nil, errors.New("no such fake device")
	}
	d := v.(*fakeDevice)
	if d.openDelay > 0 {
		select {
		case <-time.After(d.openDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opens++
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &fakeLink{d: d}, nil
}

type fakeLink struct {
	d *fakeDevice
}

func (l *fakeLink) Write(p []byte) (int, error) {
	if l.d.block != nil {
		<-l.d.block
		return 0, errors.New("link closed")
	}
	l.d.mu.Lock()
	defer l.d.mu.Unlock()
	if l.d.writeErr != nil {
		return 0, l.d.writeErr
	}
	return l.d.data.Write(p)
}

func (l *fakeLink) Flush(context.Context) error {
	return nil
}

func (l *fakeLink) Close() error {
	l.d.mu.Lock()
	defer l.d.mu.Unlock()
	l.d.closes++
	return nil
}

func (l *fakeLink) Probe(context.Context) error {
	l.d.mu.Lock()
	defer l.d.mu.Unlock()
	return l.d.probeErr
}

func newFakeDevice(t *testing.T, name string) (*fakeDevice, Target) {
	t.Helper()
	d := &fakeDevice{}
	port := "fake://" + t.Name() + "/" + name
	fakeDevices.Store(port, d)
	t.Cleanup(func() { fakeDevices.Delete(port) })
	return d, Target{Port: port, BaudRate: 9600}
}
