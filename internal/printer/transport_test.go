package printer

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goipp "github.com/OpenPrinting/goipp"
)

func TestFileTransport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "receipt.bin")
	ch := NewChannel(Options{})
	ctx := context.Background()
	if err := ch.Connect(ctx, Target{Port: "file://" + path}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := ch.Transmit(ctx, sampleBlocks); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if err := ch.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, Encode(sampleBlocks, 32)) {
		t.Fatalf("file content mismatch: %q", data)
	}
}

func TestSocketTransport(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			received <- nil
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	ch := NewChannel(Options{})
	ctx := context.Background()
	if err := ch.Connect(ctx, Target{Port: "socket://" + ln.Addr().String()}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := ch.Transmit(ctx, sampleBlocks); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if err := ch.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if got := <-received; !bytes.Equal(got, Encode(sampleBlocks, 32)) {
		t.Fatalf("socket received %q", got)
	}
}

func TestSocketTransportRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ch := NewChannel(Options{})
	if err := ch.Connect(context.Background(), Target{Port: "socket://" + addr}); !IsConnection(err) {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestIPPTransportSubmitsRawJob(t *testing.T) {
	type submission struct {
		op     goipp.Op
		format string
		doc    []byte
	}
	got := make(chan submission, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		buf := bytes.NewBuffer(body)
		var req goipp.Message
		if err := req.Decode(buf); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		format := ""
		for _, a := range req.Operation {
			if a.Name == "document-format" && len(a.Values) > 0 {
				format = a.Values[0].V.String()
			}
		}
		got <- submission{op: goipp.Op(req.Code), format: format, doc: buf.Bytes()}

		resp := goipp.NewResponse(req.Version, goipp.StatusOk, req.RequestID)
		resp.Operation.Add(goipp.MakeAttribute("attributes-charset", goipp.TagCharset, goipp.String("utf-8")))
		resp.Operation.Add(goipp.MakeAttribute("attributes-natural-language", goipp.TagLanguage, goipp.String("en-US")))
		w.Header().Set("Content-Type", goipp.ContentType)
		_ = resp.Encode(w)
	}))
	defer srv.Close()

	port := "ipp://" + strings.TrimPrefix(srv.URL, "http://") + "/printers/receipt"
	ch := NewChannel(Options{})
	ctx := context.Background()
	if err := ch.Connect(ctx, Target{Port: port}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := ch.Transmit(ctx, sampleBlocks); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	sub := <-got
	if sub.op != goipp.OpPrintJob {
		t.Fatalf("op = %v, want Print-Job", sub.op)
	}
	if sub.format != "application/vnd.cups-raw" {
		t.Fatalf("document-format = %q", sub.format)
	}
	if !bytes.Equal(sub.doc, Encode(sampleBlocks, 32)) {
		t.Fatalf("document mismatch: %q", sub.doc)
	}
}

func TestIPPTransportReportsRejectedJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "printer stopped", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	port := "ipp://" + strings.TrimPrefix(srv.URL, "http://") + "/printers/receipt"
	ch := NewChannel(Options{})
	ctx := context.Background()
	if err := ch.Connect(ctx, Target{Port: port}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := ch.Transmit(ctx, sampleBlocks); !IsTransmit(err) {
		t.Fatalf("expected transmit error, got %v", err)
	}
}

func TestIPPEndpoint(t *testing.T) {
	cases := map[string]string{
		"ipp://cups.local/printers/pos":       "http://cups.local:631/printers/pos",
		"ipps://cups.local:8443/printers/pos": "https://cups.local:8443/printers/pos",
	}
	for in, want := range cases {
		got, err := ippEndpoint(in)
		if err != nil {
			t.Fatalf("ippEndpoint(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ippEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ippEndpoint("ipp:///nohost"); err == nil {
		t.Fatalf("expected error for missing host")
	}
}
