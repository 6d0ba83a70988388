package controlclient

import (
	"bufio"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	defaultControlHost = "127.0.0.1"
	defaultControlPort = 8631
	defaultControlUser = "admin"
)

type clientSettings struct {
	host     string
	port     int
	useTLS   bool
	user     string
	password string
}

// loadClientSettings applies client.conf files, then AGENDA_SERVER,
// AGENDA_USER and AGENDA_PASSWORD.
func loadClientSettings() clientSettings {
	var server, user string
	for _, path := range clientConfPaths() {
		readClientConf(path, &server, &user)
	}
	if v := strings.TrimSpace(os.Getenv("AGENDA_SERVER")); v != "" {
		server = v
	}
	if v := strings.TrimSpace(os.Getenv("AGENDA_USER")); v != "" {
		user = v
	}

	s := clientSettings{host: defaultControlHost, port: defaultControlPort, user: defaultControlUser}
	if host, port, useTLS := parseServer(server); host != "" {
		s.host, s.useTLS = host, useTLS
		if port > 0 {
			s.port = port
		}
	}
	if user != "" {
		s.user = user
	}
	s.password = os.Getenv("AGENDA_PASSWORD")
	return s
}

// clientConfPaths lists AGENDA_CLIENT_CONF alone when set; otherwise the
// daemon's conf dir followed by ~/.agendaprint, later files winning.
func clientConfPaths() []string {
	if override := strings.TrimSpace(os.Getenv("AGENDA_CLIENT_CONF")); override != "" {
		return []string{override}
	}
	dir := os.Getenv("AGENDA_CONF_DIR")
	if dir == "" {
		data := os.Getenv("AGENDA_DATA_DIR")
		if data == "" {
			data = "data"
		}
		dir = filepath.Join(data, "conf")
	}
	paths := []string{filepath.Join(dir, "client.conf")}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".agendaprint", "client.conf"))
	}
	return paths
}

// readClientConf reads "Server" (or "ServerName") and "User" lines. Text
// after '#' is a comment; values may be quoted.
func readClientConf(path string, server, user *string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "#")
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		key := fields[0]
		value := strings.TrimPrefix(strings.TrimSpace(line), key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if value == "" {
			continue
		}
		switch strings.ToLower(key) {
		case "server", "servername":
			*server = value
		case "user":
			*user = value
		}
	}
}

// parseServer accepts host, host:port or an http(s) URL.
func parseServer(value string) (host string, port int, useTLS bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", 0, false
	}
	if !strings.Contains(value, "://") {
		value = "http://" + value
	}
	u, err := url.Parse(value)
	if err != nil {
		return "", 0, false
	}
	port, _ = strconv.Atoi(u.Port())
	return u.Hostname(), port, strings.EqualFold(u.Scheme, "https")
}
