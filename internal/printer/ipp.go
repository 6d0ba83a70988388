package printer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	goipp "github.com/OpenPrinting/goipp"
)

// ippTransport hands the ESC/POS payload to an IPP queue as a raw job, for
// receipt printers shared through CUPS. Every Flush submits one Print-Job.
type ippTransport struct{}

func init() {
	Register(ippTransport{})
}

func (ippTransport) Schemes() []string {
	return []string{"ipp", "ipps"}
}

func (ippTransport) Open(ctx context.Context, t Target) (Link, error) {
	endpoint, err := ippEndpoint(t.Port)
	if err != nil {
		return nil, err
	}
	return &ippLink{
		printerURI: strings.TrimSpace(t.Port),
		endpoint:   endpoint,
		client:     &http.Client{Transport: ippHTTPTransport(t.Port)},
	}, nil
}

// ippEndpoint maps ipp://host/path to the HTTP URL the request is posted to.
func ippEndpoint(port string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(port))
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", errors.New("invalid ipp uri")
	}
	switch strings.ToLower(u.Scheme) {
	case "ipp":
		u.Scheme = "http"
	case "ipps":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), "631")
	}
	return u.String(), nil
}

func ippHTTPTransport(uri string) *http.Transport {
	insecure := strings.ToLower(os.Getenv("AGENDA_IPP_INSECURE"))
	skipVerify := insecure == "1" || insecure == "true" || insecure == "yes" || insecure == "on"
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if strings.HasPrefix(strings.ToLower(uri), "ipps:") && skipVerify {
		tlsConfig.InsecureSkipVerify = true
	}
	return &http.Transport{TLSClientConfig: tlsConfig}
}

type ippLink struct {
	printerURI string
	endpoint   string
	client     *http.Client
	buf        bytes.Buffer
}

func (l *ippLink) Write(p []byte) (int, error) {
	return l.buf.Write(p)
}

func (l *ippLink) Flush(ctx context.Context) error {
	if l.buf.Len() == 0 {
		return nil
	}
	defer l.buf.Reset()

	req := goipp.NewRequest(goipp.DefaultVersion, goipp.OpPrintJob, uint32(time.Now().UnixNano()))
	req.Operation.Add(goipp.MakeAttribute("attributes-charset", goipp.TagCharset, goipp.String("utf-8")))
	req.Operation.Add(goipp.MakeAttribute("attributes-natural-language", goipp.TagLanguage, goipp.String("en-US")))
	req.Operation.Add(goipp.MakeAttribute("printer-uri", goipp.TagURI, goipp.String(l.printerURI)))
	req.Operation.Add(goipp.MakeAttribute("requesting-user-name", goipp.TagName, goipp.String("agendaprint")))
	req.Operation.Add(goipp.MakeAttribute("job-name", goipp.TagName, goipp.String("Daily schedule")))
	req.Operation.Add(goipp.MakeAttribute("document-format", goipp.TagMimeType, goipp.String("application/vnd.cups-raw")))

	header, err := req.EncodeBytes()
	if err != nil {
		return err
	}
	body := bytes.NewBuffer(header)
	body.Write(l.buf.Bytes())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", goipp.ContentType)
	httpReq.Header.Set("Accept", goipp.ContentType)

	resp, err := l.client.Do(httpReq)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return errors.New(resp.Status)
	}
	ippResp := &goipp.Message{}
	if err := ippResp.Decode(resp.Body); err != nil {
		return err
	}
	if status := goipp.Status(ippResp.Code); status >= goipp.StatusRedirectionOtherSite {
		return errors.New(status.String())
	}
	return nil
}

func (l *ippLink) Close() error {
	l.buf.Reset()
	l.client.CloseIdleConnections()
	return nil
}
