package printer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"agendaprint/internal/compose"
)

var sampleBlocks = []compose.Block{
	{Kind: compose.KindText, Style: compose.StyleTitle, Text: "DAILY SCHEDULE"},
	{Kind: compose.KindRule},
	{Kind: compose.KindText, Text: "No events today"},
	{Kind: compose.KindCut},
}

func TestConnectIsIdempotent(t *testing.T) {
	d, target := newFakeDevice(t, "printer")
	ch := NewChannel(Options{})
	ctx := context.Background()
	if err := ch.Connect(ctx, target); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := ch.Connect(ctx, target); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if opens, _ := d.counts(); opens != 1 {
		t.Fatalf("opens = %d, want 1", opens)
	}
	if got, ok := ch.Connected(); !ok || got != target {
		t.Fatalf("Connected() = %v %v", got, ok)
	}
}

func TestConnectToOtherTargetClosesOld(t *testing.T) {
	first, a := newFakeDevice(t, "a")
	second, b := newFakeDevice(t, "b")
	ch := NewChannel(Options{})
	ctx := context.Background()
	if err := ch.Connect(ctx, a); err != nil {
		t.Fatalf("Connect a: %v", err)
	}
	if err := ch.Connect(ctx, b); err != nil {
		t.Fatalf("Connect b: %v", err)
	}
	if _, closes := first.counts(); closes != 1 {
		t.Fatalf("old link closes = %d, want 1", closes)
	}
	if opens, _ := second.counts(); opens != 1 {
		t.Fatalf("new link opens = %d, want 1", opens)
	}

	// Same port at another speed is a different target.
	b2 := b
	b2.BaudRate = 19200
	if err := ch.Connect(ctx, b2); err != nil {
		t.Fatalf("Connect b2: %v", err)
	}
	if opens, closes := second.counts(); opens != 2 || closes != 1 {
		t.Fatalf("opens=%d closes=%d after baud change", opens, closes)
	}
}

func TestConnectErrors(t *testing.T) {
	ctx := context.Background()

	d, target := newFakeDevice(t, "refuses")
	d.openErr = errors.New("device busy")
	ch := NewChannel(Options{})
	err := ch.Connect(ctx, target)
	if !IsConnection(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if _, ok := ch.Connected(); ok {
		t.Fatalf("channel should not be connected")
	}

	err = ch.Connect(ctx, Target{Port: "nope://printer"})
	if !IsConnection(err) || !errors.Is(err, ErrUnsupportedPort) {
		t.Fatalf("expected unsupported port connection error, got %v", err)
	}

	slow, slowTarget := newFakeDevice(t, "slow")
	slow.openDelay = time.Second
	ch = NewChannel(Options{OpenTimeout: 30 * time.Millisecond})
	err = ch.Connect(ctx, slowTarget)
	if !IsConnection(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected open timeout, got %v", err)
	}
}

func TestConnectProbe(t *testing.T) {
	d, target := newFakeDevice(t, "silent")
	d.probeErr = errors.New("printer did not answer status request")

	ch := NewChannel(Options{})
	if err := ch.Connect(context.Background(), target); err != nil {
		t.Fatalf("probe disabled should connect: %v", err)
	}
	_ = ch.Disconnect()

	ch = NewChannel(Options{Probe: true})
	err := ch.Connect(context.Background(), target)
	if !IsConnection(err) {
		t.Fatalf("expected connection error from probe, got %v", err)
	}
	if opens, closes := d.counts(); opens != 2 || closes != 2 {
		t.Fatalf("opens=%d closes=%d", opens, closes)
	}
}

func TestTransmitWithoutConnection(t *testing.T) {
	ch := NewChannel(Options{})
	_, err := ch.Transmit(context.Background(), sampleBlocks)
	if !IsTransmit(err) || !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected transmit error, got %v", err)
	}
}

func TestTransmitWritesEncodedPayload(t *testing.T) {
	d, target := newFakeDevice(t, "printer")
	ch := NewChannel(Options{Width: 24})
	ctx := context.Background()
	if err := ch.Connect(ctx, target); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	n, err := ch.Transmit(ctx, sampleBlocks)
	if err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	want := Encode(sampleBlocks, 24)
	if n != len(want) {
		t.Fatalf("n = %d, want %d", n, len(want))
	}
	if !bytes.Equal(d.bytes(), want) {
		t.Fatalf("device received %q, want %q", d.bytes(), want)
	}
	if !bytes.Equal(ch.Encode(sampleBlocks), want) {
		t.Fatalf("Channel.Encode differs from Encode")
	}
}

func TestTransmitFailureDropsConnection(t *testing.T) {
	d, target := newFakeDevice(t, "printer")
	ch := NewChannel(Options{})
	ctx := context.Background()
	if err := ch.Connect(ctx, target); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	d.mu.Lock()
	d.writeErr = errors.New("input/output error")
	d.mu.Unlock()

	if _, err := ch.Transmit(ctx, sampleBlocks); !IsTransmit(err) {
		t.Fatalf("expected transmit error, got %v", err)
	}
	if _, ok := ch.Connected(); ok {
		t.Fatalf("failed transmit should drop the connection")
	}
	if _, closes := d.counts(); closes != 1 {
		t.Fatalf("closes = %d, want 1", closes)
	}
}

func TestTransmitTimeout(t *testing.T) {
	d, target := newFakeDevice(t, "stuck")
	d.block = make(chan struct{})
	t.Cleanup(func() { close(d.block) })

	ch := NewChannel(Options{WriteTimeout: 30 * time.Millisecond})
	ctx := context.Background()
	if err := ch.Connect(ctx, target); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_, err := ch.Transmit(ctx, sampleBlocks)
	if !IsTransmit(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected transmit timeout, got %v", err)
	}
	if _, ok := ch.Connected(); ok {
		t.Fatalf("timed out transmit should drop the connection")
	}
}

func TestSelfTestUsesTemporaryLink(t *testing.T) {
	main, a := newFakeDevice(t, "main")
	other, b := newFakeDevice(t, "other")
	ch := NewChannel(Options{})
	ctx := context.Background()
	if err := ch.Connect(ctx, a); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	if err := ch.Test(ctx, b, now); err != nil {
		t.Fatalf("Test: %v", err)
	}
	if opens, closes := other.counts(); opens != 1 || closes != 1 {
		t.Fatalf("test link opens=%d closes=%d", opens, closes)
	}
	if !bytes.Contains(other.bytes(), []byte("agendaprint test page")) {
		t.Fatalf("test page not written: %q", other.bytes())
	}
	if got, ok := ch.Connected(); !ok || got != a {
		t.Fatalf("main connection changed: %v %v", got, ok)
	}
	if len(main.bytes()) != 0 {
		t.Fatalf("main device should not receive the test page")
	}

	if err := ch.Test(ctx, a, now); err != nil {
		t.Fatalf("Test on connected target: %v", err)
	}
	if opens, closes := main.counts(); opens != 1 || closes != 0 {
		t.Fatalf("reused link opens=%d closes=%d", opens, closes)
	}
}

func TestSelfTestReportsConnectionError(t *testing.T) {
	d, target := newFakeDevice(t, "off")
	d.openErr = errors.New("no such device")
	ch := NewChannel(Options{})
	if err := ch.Test(context.Background(), target, time.Now()); !IsConnection(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestDisconnectWhenIdle(t *testing.T) {
	ch := NewChannel(Options{})
	if err := ch.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := ch.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
}

func TestForPort(t *testing.T) {
	cases := map[string]string{
		"/dev/rfcomm0":             "serial",
		"COM4":                     "serial",
		"serial:///dev/ttyUSB0":    "serial",
		"socket://10.0.0.5":        "socket",
		"file:///tmp/receipt.bin":  "file",
		"ipp://cups/printers/pos":  "ipp",
		"IPPS://cups/printers/pos": "ipp",
	}
	for port, want := range cases {
		tr := ForPort(port)
		if tr == nil {
			t.Fatalf("ForPort(%q) = nil", port)
		}
		if got := tr.Schemes()[0]; got != want {
			t.Fatalf("ForPort(%q) scheme = %q, want %q", port, got, want)
		}
	}
	if ForPort("") != nil || ForPort("gopher://x") != nil {
		t.Fatalf("expected nil transport")
	}
}

func TestErrorMessage(t *testing.T) {
	err := WrapConnection("open", "/dev/rfcomm0", errors.New("port busy"))
	if err.Error() != "open /dev/rfcomm0: port busy" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if IsTransmit(err) {
		t.Fatalf("connection error reported as transmit")
	}
}
