package logging

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"agendaprint/internal/model"
)

func TestActivityLineFormat(t *testing.T) {
	ts := time.Date(2026, 3, 2, 8, 0, 5, 0, time.UTC)
	line := ActivityLine(model.Activity{
		Time:    ts,
		Kind:    model.ActivityJob,
		Reason:  model.Scheduled(model.ScheduleEntry{Hour: 8}),
		JobID:   "job-1",
		Outcome: model.Failed(model.FailureConnection, errors.New("open /dev/rfcomm0: no such device")),
	})
	want := "2026-03-02T08:00:05Z job scheduled(08:00) job-1 failure(connection-error) open /dev/rfcomm0: no such device"
	if line != want {
		t.Fatalf("ActivityLine = %q\nwant %q", line, want)
	}

	line = ActivityLine(model.Activity{Time: ts, Kind: model.ActivitySchedulerStart, Outcome: model.Succeeded(), Detail: "08:00,12:00"})
	if line != "2026-03-02T08:00:05Z scheduler-start - - - 08:00,12:00" {
		t.Fatalf("scheduler line = %q", line)
	}
}

func TestAccessMiddlewareWritesLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access_log")
	Configure("none", "none", path, 0)
	t.Cleanup(func() { Configure("stderr", "none", "none", 0) })

	h := HTTPAccessMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("queued"))
	}))
	req := httptest.NewRequest(http.MethodPost, "/print", nil)
	req.SetBasicAuth("admin", "secret")
	h.ServeHTTP(httptest.NewRecorder(), req)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read access log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"POST /print HTTP/1.1" 202 6`) || !strings.Contains(line, " admin [") {
		t.Fatalf("unexpected access line: %q", line)
	}
}

func TestRotatingFileKeepsOneBackup(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.Join("logs", "activity_log")
	r := newRotatingFile(fs, path, 16)
	for _, line := range []string{"first-line", "second-line", "third-line"} {
		if err := r.WriteLine(line); err != nil {
			t.Fatalf("WriteLine: %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	backup, err := afero.ReadFile(fs, path+".O")
	if err != nil {
		t.Fatalf("expected backup file: %v", err)
	}
	if string(backup) != "second-line\n" {
		t.Fatalf("backup = %q", backup)
	}
	current, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(current) != "third-line\n" {
		t.Fatalf("current log = %q", current)
	}
}

func TestRotatingFileReopensExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "error_log", []byte("0123456789\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := newRotatingFile(fs, "error_log", 16)
	if err := r.WriteLine("abcdef"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if ok, _ := afero.Exists(fs, "error_log.O"); !ok {
		t.Fatalf("existing file size was not counted")
	}
}

func TestRotatingFileTargets(t *testing.T) {
	for _, path := range []string{"", "none", "OFF"} {
		if newRotatingFile(afero.NewMemMapFs(), path, 0).Enabled() {
			t.Fatalf("%q should discard", path)
		}
	}
	if !NewRotatingFile("stderr", 0).Enabled() {
		t.Fatalf("stderr should be enabled")
	}
}
