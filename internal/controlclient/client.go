// Package controlclient talks to the daemon's control API.
package controlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agendaprint/internal/server"
)

type Client struct {
	Host     string
	Port     int
	UseTLS   bool
	User     string
	Password string
	HTTP     *http.Client
}

type ClientOption func(*Client)

func WithServer(server string) ClientOption {
	return func(c *Client) {
		if strings.TrimSpace(server) == "" {
			return
		}
		host, port, useTLS := parseServer(server)
		if host != "" {
			c.Host = host
		}
		if port > 0 {
			c.Port = port
		}
		if useTLS {
			c.UseTLS = true
		}
	}
}

func WithUser(user string) ClientOption {
	return func(c *Client) {
		if strings.TrimSpace(user) != "" {
			c.User = user
		}
	}
}

func WithPassword(password string) ClientOption {
	return func(c *Client) {
		if password != "" {
			c.Password = password
		}
	}
}

// NewFromConfig reads client.conf and AGENDA_* variables, applies opts and
// finally looks up the password in the OS keyring when none was given.
func NewFromConfig(opts ...ClientOption) *Client {
	settings := loadClientSettings()
	client := &Client{
		Host:     settings.host,
		Port:     settings.port,
		UseTLS:   settings.useTLS,
		User:     settings.user,
		Password: settings.password,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.Host == "" {
		client.Host = defaultControlHost
	}
	if client.Port == 0 {
		client.Port = defaultControlPort
	}
	if client.Password == "" && client.User != "" {
		if pass, err := LoadPassword(client.User); err == nil {
			client.Password = pass
		}
	}
	return client
}

// APIError is a non-2xx answer of the control API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s: %s", http.StatusText(e.Status), e.Message)
}

func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func (c *Client) BaseURL() string {
	scheme := "http"
	if c.UseTLS {
		scheme = "https"
	}
	return scheme + "://" + c.Host + ":" + strconv.Itoa(c.Port)
}

func (c *Client) Print(ctx context.Context, wait bool) (server.JobView, error) {
	var job server.JobView
	err := c.do(ctx, http.MethodPost, "/print"+waitQuery(wait), nil, &job)
	return job, err
}

func (c *Client) TestPrinter(ctx context.Context, wait bool) (server.JobView, error) {
	var job server.JobView
	err := c.do(ctx, http.MethodPost, "/printer/test"+waitQuery(wait), nil, &job)
	return job, err
}

func (c *Client) Status(ctx context.Context) (server.StatusView, error) {
	var st server.StatusView
	err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

func (c *Client) Jobs(ctx context.Context, limit int) ([]server.JobView, error) {
	var jobs []server.JobView
	err := c.do(ctx, http.MethodGet, "/jobs?limit="+strconv.Itoa(limit), nil, &jobs)
	return jobs, err
}

func (c *Client) Activity(ctx context.Context, limit int) ([]server.ActivityView, error) {
	var out []server.ActivityView
	err := c.do(ctx, http.MethodGet, "/activity?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}

func (c *Client) Reload(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := c.do(ctx, http.MethodPost, "/reload", nil, &out)
	return out, err
}

func (c *Client) Preview(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	err := c.do(ctx, http.MethodGet, "/preview", nil, &buf)
	return buf.String(), err
}

func (c *Client) StartScheduler(ctx context.Context) (server.StatusView, error) {
	var st server.StatusView
	err := c.do(ctx, http.MethodPost, "/scheduler/start", nil, &st)
	return st, err
}

func (c *Client) StopScheduler(ctx context.Context) (server.StatusView, error) {
	var st server.StatusView
	err := c.do(ctx, http.MethodPost, "/scheduler/stop", nil, &st)
	return st, err
}

func (c *Client) Spool(ctx context.Context) ([]server.SpoolView, error) {
	var out []server.SpoolView
	err := c.do(ctx, http.MethodGet, "/spool", nil, &out)
	return out, err
}

func (c *Client) Priorities(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := c.do(ctx, http.MethodGet, "/priorities", nil, &out)
	return out, err
}

func (c *Client) Priority(ctx context.Context, taskID string) (server.PriorityView, error) {
	var p server.PriorityView
	err := c.do(ctx, http.MethodGet, "/priorities/"+url.PathEscape(taskID), nil, &p)
	return p, err
}

func (c *Client) SetPriority(ctx context.Context, taskID, priority string) (server.PriorityView, error) {
	var p server.PriorityView
	err := c.do(ctx, http.MethodPut, "/priorities/"+url.PathEscape(taskID), server.PriorityView{TaskID: taskID, Priority: priority}, &p)
	return p, err
}

func (c *Client) Tasks(ctx context.Context, all bool) ([]server.TaskView, error) {
	path := "/tasks"
	if all {
		path += "?all=1"
	}
	var tasks []server.TaskView
	err := c.do(ctx, http.MethodGet, path, nil, &tasks)
	return tasks, err
}

func (c *Client) AddTask(ctx context.Context, req server.TaskRequest) (server.TaskView, error) {
	var task server.TaskView
	err := c.do(ctx, http.MethodPost, "/tasks", req, &task)
	return task, err
}

func (c *Client) CompleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/complete", nil, nil)
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

// ChangePassword sets the control API password of user.
func (c *Client) ChangePassword(ctx context.Context, user, password string) error {
	return c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(user)+"/password", server.PasswordRequest{Password: password}, nil)
}

// do sends body as JSON and decodes the answer into out. A *bytes.Buffer out
// receives the raw body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL()+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.User != "" {
		req.SetBasicAuth(c.User, c.Password)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	resp, err := httpClient.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		var ev server.ErrorView
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &ev) == nil && ev.Error != "" {
			apiErr.Message = ev.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	switch v := out.(type) {
	case nil:
		return nil
	case *bytes.Buffer:
		_, err := io.Copy(v, resp.Body)
		return err
	default:
		return json.NewDecoder(resp.Body).Decode(out)
	}
}

func waitQuery(wait bool) string {
	if wait {
		return "?wait=1"
	}
	return ""
}
