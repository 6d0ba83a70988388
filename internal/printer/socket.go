package printer

import (
	"context"
	"errors"
	"net"
	"strings"
)

// socketTransport talks raw TCP to network receipt printers (port 9100).
type socketTransport struct{}

func init() {
	Register(socketTransport{})
}

func (socketTransport) Schemes() []string {
	return []string{"socket", "tcp"}
}

func (socketTransport) Open(ctx context.Context, t Target) (Link, error) {
	host := strings.TrimSuffix(pathOf(t.Port), "/")
	if host == "" {
		return nil, errors.New("invalid socket address")
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "9100")
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, err
	}
	return socketLink{conn}, nil
}

type socketLink struct {
	net.Conn
}

func (socketLink) Flush(context.Context) error {
	return nil
}
