package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"

	"agendaprint/internal/controlclient"
	"agendaprint/internal/server"
)

type recorded struct {
	method string
	path   string
	query  string
	user   string
	pass   string
	body   string
}

func testDaemon(t *testing.T, h func(w http.ResponseWriter, r *http.Request)) (string, *[]recorded) {
	t.Helper()
	t.Setenv("AGENDA_CLIENT_CONF", filepath.Join(t.TempDir(), "missing.conf"))
	t.Setenv("AGENDA_SERVER", "")
	t.Setenv("AGENDA_USER", "")
	t.Setenv("AGENDA_PASSWORD", "")
	keyring.MockInit()

	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		data, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{r.Method, r.URL.Path, r.URL.RawQuery, user, pass, string(data)})
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv.URL, &calls
}

func run(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{"agendactl", "--server", url, "--user", "admin", "--password", "secret"}, args...)
	err := Execute(full, &out)
	return out.String(), err
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestPrintWait(t *testing.T) {
	url, calls := testDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, server.JobView{ID: "j1", Reason: "manual", State: "done", Outcome: "success", Attempts: 1, Bytes: 120})
	})
	out, err := run(t, url, "print", "--wait")
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	if !strings.Contains(out, "j1 manual success attempts=1 bytes=120") {
		t.Fatalf("unexpected output %q", out)
	}
	c := (*calls)[0]
	if c.method != http.MethodPost || c.path != "/print" || c.query != "wait=1" || c.user != "admin" || c.pass != "secret" {
		t.Fatalf("unexpected request %+v", c)
	}
}

func TestPrintFailureExitsNonZero(t *testing.T) {
	url, _ := testDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, server.JobView{ID: "j2", Reason: "printer-test", State: "done", Outcome: "failure(connection-error)", Message: "no such port"})
	})
	out, err := run(t, url, "test", "-w")
	if err == nil || err.Error() != "failure(connection-error)" {
		t.Fatalf("test err = %v", err)
	}
	if !strings.Contains(out, "no such port") {
		t.Fatalf("message missing from %q", out)
	}
}

func TestStatusOutput(t *testing.T) {
	url, _ := testDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, server.StatusView{
			Running:    true,
			Schedule:   []string{"08:00", "12:00"},
			FiredToday: []string{"08:00"},
			NextFire:   "12:00",
			Printer:    "/dev/rfcomm0@9600",
			Pending:    1,
		})
	})
	out, err := run(t, url, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"scheduler: running", "schedule: 08:00, 12:00", "fired today: 08:00", "next: 12:00", "printer: /dev/rfcomm0@9600 (idle)", "pending: 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestUnauthorizedHint(t *testing.T) {
	url, _ := testDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusUnauthorized, server.ErrorView{Error: "authentication required"})
	})
	_, err := run(t, url, "reload")
	if !controlclient.IsUnauthorized(err) || !strings.Contains(err.Error(), "agendactl login") {
		t.Fatalf("reload err = %v", err)
	}
}

func TestPrioritySet(t *testing.T) {
	url, calls := testDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, server.PriorityView{TaskID: "t1", Priority: "High"})
	})
	out, err := run(t, url, "priority", "set", "t1", "high")
	if err != nil {
		t.Fatalf("priority set: %v", err)
	}
	if out != "t1\tHigh\n" {
		t.Fatalf("unexpected output %q", out)
	}
	c := (*calls)[0]
	if c.method != http.MethodPut || c.path != "/priorities/t1" || !strings.Contains(c.body, `"priority":"high"`) {
		t.Fatalf("unexpected request %+v", c)
	}

	if _, err := run(t, url, "priority", "set", "t1"); err == nil {
		t.Fatalf("priority set with one argument should fail")
	}
}

func TestTaskCommands(t *testing.T) {
	url, calls := testDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/tasks":
			reply(w, http.StatusCreated, server.TaskView{ID: "local-1", Title: "Buy milk", Priority: "Low"})
		case r.Method == http.MethodGet && r.URL.Path == "/tasks":
			reply(w, http.StatusOK, []server.TaskView{
				{ID: "local-1", Title: "Buy milk", Priority: "Low"},
				{ID: "local-2", Title: "Old", Priority: "Normal", Completed: true, List: "Home"},
			})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	out, err := run(t, url, "task", "add", "--priority", "Low", "Buy", "milk")
	if err != nil {
		t.Fatalf("task add: %v", err)
	}
	if out != "local-1\n" || !strings.Contains((*calls)[0].body, `"title":"Buy milk"`) {
		t.Fatalf("unexpected add: %q %+v", out, (*calls)[0])
	}

	out, err = run(t, url, "task", "list", "--all")
	if err != nil {
		t.Fatalf("task list: %v", err)
	}
	if !strings.Contains(out, "local-1 [ ] Buy milk (Low)") || !strings.Contains(out, "local-2 [x] Old (Normal) list=Home") {
		t.Fatalf("unexpected list:\n%s", out)
	}
	if (*calls)[1].query != "all=1" {
		t.Fatalf("list query = %q", (*calls)[1].query)
	}

	if _, err := run(t, url, "task", "done", "local-1"); err != nil {
		t.Fatalf("task done: %v", err)
	}
	if _, err := run(t, url, "task", "rm", "local-1"); err != nil {
		t.Fatalf("task rm: %v", err)
	}
	if c := (*calls)[2]; c.method != http.MethodPost || c.path != "/tasks/local-1/complete" {
		t.Fatalf("unexpected done request %+v", c)
	}
	if c := (*calls)[3]; c.method != http.MethodDelete || c.path != "/tasks/local-1" {
		t.Fatalf("unexpected rm request %+v", c)
	}
}

func TestPreviewWritesText(t *testing.T) {
	url, _ := testDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "DAILY SCHEDULE\n")
	})
	out, err := run(t, url, "preview")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if out != "DAILY SCHEDULE\n" {
		t.Fatalf("unexpected preview %q", out)
	}
}

func TestLoginStoresPassword(t *testing.T) {
	url, calls := testDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, server.StatusView{})
	})
	prev := stdin
	stdin = strings.NewReader("typed\n")
	t.Cleanup(func() { stdin = prev })

	var out bytes.Buffer
	if err := Execute([]string{"agendactl", "--server", url, "--user", "ops", "login"}, &out); err != nil {
		t.Fatalf("login: %v", err)
	}
	if c := (*calls)[0]; c.user != "ops" || c.pass != "typed" {
		t.Fatalf("login checked %+v", c)
	}
	got, err := controlclient.LoadPassword("ops")
	if err != nil || got != "typed" {
		t.Fatalf("stored password = %q, %v", got, err)
	}

	out.Reset()
	if err := Execute([]string{"agendactl", "--server", url, "--user", "ops", "logout"}, &out); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := controlclient.LoadPassword("ops"); err == nil {
		t.Fatalf("password still stored after logout")
	}
}

func TestPasswdUpdatesKeyring(t *testing.T) {
	url, calls := testDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if err := controlclient.SavePassword("admin", "secret"); err != nil {
		t.Fatalf("SavePassword: %v", err)
	}
	prev := stdin
	stdin = strings.NewReader("rotated\n")
	t.Cleanup(func() { stdin = prev })

	out, err := run(t, url, "passwd")
	if err != nil {
		t.Fatalf("passwd: %v", err)
	}
	if !strings.Contains(out, "password changed for admin") {
		t.Fatalf("unexpected output %q", out)
	}
	c := (*calls)[0]
	if c.method != http.MethodPut || c.path != "/users/admin/password" || c.body != `{"password":"rotated"}` {
		t.Fatalf("unexpected request %+v", c)
	}
	if got, _ := controlclient.LoadPassword("admin"); got != "rotated" {
		t.Fatalf("keyring password = %q", got)
	}
}
