// Package server is the local control API of the daemon: manual prints,
// status, reload, printer test, preview, priority overrides and the local
// task list. Every request needs basic auth against the store's users.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"agendaprint/internal/config"
	"agendaprint/internal/daemon"
	"agendaprint/internal/model"
	"agendaprint/internal/scheduler"
	"agendaprint/internal/spool"
	"agendaprint/internal/store"
)

// Service is the part of *daemon.Service the API drives.
type Service interface {
	PrintNow(ctx context.Context, wait bool) (model.PrintJob, error)
	TestPrinter(ctx context.Context, wait bool) (model.PrintJob, error)
	Preview(ctx context.Context) (string, error)
	Status() daemon.Status
	Reload(cfg config.Config) error
	StartScheduler(ctx context.Context) error
	StopScheduler()
}

const defaultMaxRequestSize = 64 << 10

type Server struct {
	Service Service
	Store   *store.Store
	Spool   *spool.Spool
	// LoadConfig reads the configuration for POST /reload. Defaults to
	// config.Load.
	LoadConfig func() (config.Config, error)
	// BaseContext outlives requests; the scheduler started through the API
	// runs under it.
	BaseContext    context.Context
	MaxRequestSize int64
}

func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := s.MaxRequestSize
		if limit <= 0 {
			limit = defaultMaxRequestSize
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		user, ok := s.requireAuthOr401(w, r)
		if !ok {
			return
		}
		path := strings.TrimSuffix(r.URL.Path, "/")
		switch {
		case path == "/print":
			s.handlePrint(w, r)
		case path == "/status":
			s.handleStatus(w, r)
		case path == "/jobs":
			s.handleJobs(w, r)
		case path == "/activity":
			s.handleActivity(w, r)
		case path == "/reload":
			s.handleReload(w, r)
		case path == "/printer/test":
			s.handlePrinterTest(w, r)
		case path == "/preview":
			s.handlePreview(w, r)
		case path == "/scheduler/start" || path == "/scheduler/stop":
			s.handleScheduler(w, r, strings.TrimPrefix(path, "/scheduler/"))
		case path == "/spool":
			s.handleSpool(w, r)
		case path == "/priorities":
			s.handlePriorities(w, r)
		case strings.HasPrefix(path, "/priorities/"):
			s.handlePriority(w, r, strings.TrimPrefix(path, "/priorities/"))
		case path == "/tasks":
			s.handleTasks(w, r)
		case strings.HasPrefix(path, "/tasks/"):
			s.handleTask(w, r, strings.TrimPrefix(path, "/tasks/"))
		case strings.HasPrefix(path, "/users/"):
			s.handleUser(w, r, user, strings.TrimPrefix(path, "/users/"))
		default:
			http.NotFound(w, r)
		}
	})
}

func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	wait := queryBool(r, "wait")
	job, err := s.Service.PrintNow(r.Context(), wait)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJobResult(w, job, wait)
}

func (s *Server) handlePrinterTest(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	wait := queryBool(r, "wait")
	job, err := s.Service.TestPrinter(r.Context(), wait)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJobResult(w, job, wait)
}

func writeJobResult(w http.ResponseWriter, job model.PrintJob, wait bool) {
	status := http.StatusAccepted
	if wait {
		status = http.StatusOK
	}
	writeJSON(w, status, jobView(job))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, statusView(s.Service.Status()))
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	jobs, err := s.Store.ListJobs(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobViews(jobs))
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	records, err := s.Store.ListActivity(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]ActivityView, 0, len(records))
	for _, rec := range records {
		out = append(out, activityView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	load := s.LoadConfig
	if load == nil {
		load = config.Load
	}
	cfg, err := load()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Service.Reload(cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"schedule": scheduleString(cfg), "printer": cfg.PrinterPort})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	text, err := s.Service.Preview(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, text)
}

func (s *Server) handleScheduler(w http.ResponseWriter, r *http.Request, action string) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if action == "stop" {
		s.Service.StopScheduler()
	} else {
		ctx := s.BaseContext
		if ctx == nil {
			ctx = context.Background()
		}
		if err := s.Service.StartScheduler(ctx); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, statusView(s.Service.Status()))
}

func (s *Server) handleSpool(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	out := []SpoolView{}
	if s.Spool != nil {
		entries, err := s.Spool.Entries()
		if err != nil {
			writeError(w, err)
			return
		}
		for _, e := range entries {
			out = append(out, spoolView(e))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePriorities(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	all, err := s.Store.Priorities(r.Context(), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make(map[string]string, len(all))
	for id, p := range all {
		out[id] = string(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePriority(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		p, err := s.Store.Priority(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, PriorityView{TaskID: id, Priority: string(p)})
	case http.MethodPut:
		var req PriorityView
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorView{Error: "invalid body: " + err.Error()})
			return
		}
		p, ok := model.ParsePriority(req.Priority)
		if !ok {
			writeJSON(w, http.StatusBadRequest, ErrorView{Error: "priority must be High, Normal or Low"})
			return
		}
		if err := s.Store.SetPriority(r.Context(), id, p); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, PriorityView{TaskID: id, Priority: string(p)})
	default:
		w.Header().Set("Allow", "GET, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tasks, err := s.Store.ListTasks(r.Context(), queryBool(r, "all"))
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]TaskView, 0, len(tasks))
		for _, t := range tasks {
			out = append(out, taskView(t))
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req TaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorView{Error: "invalid body: " + err.Error()})
			return
		}
		if strings.TrimSpace(req.Title) == "" {
			writeJSON(w, http.StatusBadRequest, ErrorView{Error: "title is required"})
			return
		}
		p, ok := model.ParsePriority(req.Priority)
		if !ok {
			writeJSON(w, http.StatusBadRequest, ErrorView{Error: "priority must be High, Normal or Low"})
			return
		}
		task, err := s.Store.AddTask(r.Context(), req.Title, req.List, p)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, taskView(task))
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request, rest string) {
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch {
	case action == "complete" && r.Method == http.MethodPost:
		if err := s.Store.CompleteTask(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case action == "" && r.Method == http.MethodDelete:
		if err := s.Store.DeleteTask(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case action == "complete" || action == "":
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, r)
	}
}

// handleUser serves PUT /users/{name}/password. Users change their own
// password; admins may change any.
func (s *Server) handleUser(w http.ResponseWriter, r *http.Request, caller store.User, rest string) {
	name, action, _ := strings.Cut(rest, "/")
	if name == "" || action != "password" {
		http.NotFound(w, r)
		return
	}
	if !allowMethod(w, r, http.MethodPut) {
		return
	}
	if name != caller.Username && !caller.IsAdmin {
		writeJSON(w, http.StatusForbidden, ErrorView{Error: "only admins can change other users' passwords"})
		return
	}
	var req PasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorView{Error: "invalid body: " + err.Error()})
		return
	}
	if req.Password == "" {
		writeJSON(w, http.StatusBadRequest, ErrorView{Error: "password is required"})
		return
	}
	err := s.Store.WithTx(r.Context(), false, func(tx *sql.Tx) error {
		return s.Store.SetPassword(r.Context(), tx, name, req.Password)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("control api: password changed for %s by %s", name, caller.Username)
	w.WriteHeader(http.StatusNoContent)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func queryBool(r *http.Request, key string) bool {
	switch strings.ToLower(r.URL.Query().Get(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func queryInt(r *http.Request, key string, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("control api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case config.IsConfigurationError(err):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scheduler.ErrRunning):
		status = http.StatusConflict
	case daemon.IsQueueClosed(err):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		log.Printf("control api: %v", err)
	}
	writeJSON(w, status, ErrorView{Error: err.Error()})
}
