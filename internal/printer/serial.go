package printer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Real-time status request for the printer (DLE EOT 1).
var statusRequest = []byte{0x10, 0x04, 0x01}

type serialTransport struct{}

func init() {
	Register(serialTransport{})
}

func (serialTransport) Schemes() []string {
	return []string{"serial"}
}

func (serialTransport) Open(ctx context.Context, t Target) (Link, error) {
	name := pathOf(t.Port)
	if name == "" {
		return nil, errors.New("empty serial port name")
	}
	baud := t.BaudRate
	if baud <= 0 {
		baud = 9600
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, describeSerialError(err)
	}
	if ctx.Err() != nil {
		_ = port.Close()
		return nil, ctx.Err()
	}
	return &serialLink{port: port}, nil
}

func describeSerialError(err error) error {
	var pe *serial.PortError
	if !errors.As(err, &pe) {
		return err
	}
	switch pe.Code() {
	case serial.PortNotFound:
		return fmt.Errorf("port not found: %w", err)
	case serial.PortBusy:
		return fmt.Errorf("port busy: %w", err)
	case serial.PermissionDenied:
		return fmt.Errorf("permission denied: %w", err)
	default:
		return err
	}
}

type serialLink struct {
	port serial.Port
}

func (l *serialLink) Write(p []byte) (int, error) {
	return l.port.Write(p)
}

func (l *serialLink) Flush(ctx context.Context) error {
	return l.port.Drain()
}

func (l *serialLink) Close() error {
	return l.port.Close()
}

// Probe sends a status request and waits for the single status byte.
func (l *serialLink) Probe(ctx context.Context) error {
	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}
	if err := l.port.ResetInputBuffer(); err != nil {
		return err
	}
	if err := l.port.SetReadTimeout(timeout); err != nil {
		return err
	}
	if _, err := l.port.Write(statusRequest); err != nil {
		return err
	}
	buf := make([]byte, 1)
	n, err := l.port.Read(buf)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("printer did not answer status request")
	}
	return nil
}
