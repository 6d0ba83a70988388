package printer

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Target names the printer port and line speed. Port is either a bare
// serial device ("/dev/rfcomm0", "COM4") or a URI whose scheme selects a
// transport ("socket://host:9100", "file:///tmp/receipt.bin",
// "ipp://host/printers/receipt").
type Target struct {
	Port     string
	BaudRate int
}

func (t Target) String() string {
	if t.BaudRate > 0 && schemeOf(t.Port) == "serial" {
		return t.Port + "@" + strconv.Itoa(t.BaudRate)
	}
	return t.Port
}

// Link is one open connection to a printer.
type Link interface {
	io.Writer
	// Flush blocks until written bytes have left the host.
	Flush(ctx context.Context) error
	Close() error
}

// prober is implemented by links that can ask the printer for a status byte.
type prober interface {
	Probe(ctx context.Context) error
}

type Transport interface {
	Schemes() []string
	Open(ctx context.Context, t Target) (Link, error)
}

var registry struct {
	sync.RWMutex
	transports []Transport
}

func Register(tr Transport) {
	if tr == nil {
		return
	}
	registry.Lock()
	registry.transports = append(registry.transports, tr)
	registry.Unlock()
}

// ForPort returns the transport serving port, or nil.
func ForPort(port string) Transport {
	scheme := schemeOf(port)
	if scheme == "" {
		return nil
	}
	registry.RLock()
	defer registry.RUnlock()
	for _, tr := range registry.transports {
		for _, s := range tr.Schemes() {
			if strings.EqualFold(s, scheme) {
				return tr
			}
		}
	}
	return nil
}

func schemeOf(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return ""
	}
	if i := strings.Index(port, "://"); i > 0 {
		return strings.ToLower(port[:i])
	}
	return "serial"
}

// pathOf strips a "scheme://" prefix, keeping the rest untouched.
func pathOf(port string) string {
	port = strings.TrimSpace(port)
	if i := strings.Index(port, "://"); i > 0 {
		return port[i+3:]
	}
	return port
}
