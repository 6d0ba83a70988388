package agenda

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

const (
	propPriority     = "PRIORITY"
	propCompleted    = "COMPLETED"
	propRecurrenceID = "RECURRENCE-ID"
	propCalName      = "X-WR-CALNAME"

	statusCancelled = "CANCELLED"
	statusCompleted = "COMPLETED"
)

const maxFeedSize = 16 << 20

var defaultClient = &http.Client{Timeout: 30 * time.Second}

// loadFeed reads every VCALENDAR in an iCalendar document from an http(s)
// or webcal URL, a file:// URL or a plain path.
func loadFeed(ctx context.Context, client *http.Client, location string) ([]*ical.Calendar, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.New("empty calendar location")
	}
	body, err := readFeed(ctx, client, location)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return nil, errors.New("received HTML instead of iCalendar data")
	}
	if !bytes.HasPrefix(bytes.ToUpper(trimmed), []byte("BEGIN:VCALENDAR")) {
		return nil, errors.New("invalid iCalendar data: expected BEGIN:VCALENDAR")
	}

	dec := ical.NewDecoder(bytes.NewReader(body))
	var out []*ical.Calendar
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode calendar: %w", err)
		}
		out = append(out, cal)
	}
	return out, nil
}

func readFeed(ctx context.Context, client *http.Client, location string) ([]byte, error) {
	lower := strings.ToLower(location)
	switch {
	case strings.HasPrefix(lower, "webcal://"):
		location = "https://" + location[len("webcal://"):]
		fallthrough
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		if client == nil {
			client = defaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/calendar")
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("fetch %s: %s", location, resp.Status)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	case strings.HasPrefix(lower, "file://"):
		location = location[len("file://"):]
	}
	f, err := os.Open(location)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxFeedSize))
}

func propText(comp *ical.Component, name string) string {
	if prop := comp.Props.Get(name); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}
