package logging

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"agendaprint/internal/model"
)

type responseRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.size += n
	return n, err
}

// HTTPAccessMiddleware writes one Common Log Format line per control API
// request to the access log.
func HTTPAccessMiddleware(next http.Handler) http.Handler {
	if next == nil {
		next = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		Access(AccessLine(r, start, rec.status, rec.size))
	})
}

func AccessLine(r *http.Request, start time.Time, status, size int) string {
	if status == 0 {
		status = http.StatusOK
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	user := "-"
	if u, _, ok := r.BasicAuth(); ok && strings.TrimSpace(u) != "" {
		user = u
	}
	return fmt.Sprintf("%s - %s [%s] \"%s %s %s\" %d %d",
		remote,
		user,
		start.Format("02/Jan/2006:15:04:05 -0700"),
		r.Method,
		r.URL.RequestURI(),
		r.Proto,
		status,
		size,
	)
}

// ActivityLine renders one activity record:
// time kind reason job-id outcome [detail]
func ActivityLine(a model.Activity) string {
	ts := a.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	jobID := a.JobID
	if strings.TrimSpace(jobID) == "" {
		jobID = "-"
	}
	reason := "-"
	if a.Kind == model.ActivityJob {
		reason = a.Reason.String()
	}
	outcome := "-"
	if a.Kind == model.ActivityJob {
		outcome = a.Outcome.String()
	}
	parts := []string{
		ts.Format(time.RFC3339),
		string(a.Kind),
		reason,
		jobID,
		outcome,
	}
	detail := strings.TrimSpace(a.Detail)
	if detail == "" && !a.Outcome.Success {
		detail = strings.TrimSpace(a.Outcome.Message)
	}
	if detail != "" {
		parts = append(parts, strings.ReplaceAll(detail, "\n", " "))
	}
	return strings.Join(parts, " ")
}
