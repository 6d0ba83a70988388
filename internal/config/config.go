package config

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"agendaprint/internal/model"
)

type Config struct {
	DataDir  string
	ConfDir  string
	DBPath   string
	SpoolDir string
	Listen   string

	PrinterPort         string
	PrinterBaudRate     int
	PrinterOpenTimeout  time.Duration
	PrinterWriteTimeout time.Duration
	PrinterProbe        bool
	PaperWidth          int

	Schedule     []model.ScheduleEntry
	PollInterval time.Duration

	Calendars    []string
	TaskListName string
	AutoStart    bool
	KeepSpool    int

	ErrorLogPath    string
	ActivityLogPath string
	AccessLogPath   string
	MaxLogSize      int64
}

const (
	DefaultBaudRate     = 9600
	DefaultPaperWidth   = 32
	DefaultPollInterval = 20 * time.Second
	DefaultListen       = "127.0.0.1:8631"
	DefaultTaskList     = "My Tasks"

	minPollInterval = 5 * time.Second
	maxPollInterval = time.Minute
)

var defaultSchedule = []model.ScheduleEntry{{Hour: 8}, {Hour: 12}, {Hour: 18}}

type configOverrides struct {
	dbPath   bool
	spoolDir bool
	confDir  bool
	schedule bool
	calendar bool
}

// Load builds the configuration from defaults, <ConfDir>/agenda.conf and
// AGENDA_* environment variables, in that order of precedence.
func Load() (Config, error) {
	overrides := configOverrides{}

	dataDir := getenv("AGENDA_DATA_DIR", "data")
	cfg := Config{
		DataDir:             dataDir,
		ConfDir:             getenv("AGENDA_CONF_DIR", filepath.Join(dataDir, "conf")),
		Listen:              DefaultListen,
		PrinterPort:         defaultPort(),
		PrinterBaudRate:     DefaultBaudRate,
		PrinterOpenTimeout:  5 * time.Second,
		PrinterWriteTimeout: 10 * time.Second,
		PaperWidth:          DefaultPaperWidth,
		Schedule:            append([]model.ScheduleEntry(nil), defaultSchedule...),
		PollInterval:        DefaultPollInterval,
		TaskListName:        DefaultTaskList,
		AutoStart:           true,
		KeepSpool:           50,
		ErrorLogPath:        "stderr",
		MaxLogSize:          1024 * 1024,
	}
	if _, ok := os.LookupEnv("AGENDA_CONF_DIR"); ok {
		overrides.confDir = true
	}

	if err := parseAgendaConf(filepath.Join(cfg.ConfDir, "agenda.conf"), &cfg, &overrides); err != nil {
		return Config{}, err
	}
	if err := applyEnvOverrides(&cfg, &overrides); err != nil {
		return Config{}, err
	}
	applyDerivedDefaults(&cfg, &overrides)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.PrinterPort) == "" {
		return &Error{Key: "PrinterPort", Err: errors.New("must not be empty")}
	}
	if c.PrinterBaudRate <= 0 {
		return &Error{Key: "PrinterBaudRate", Value: strconv.Itoa(c.PrinterBaudRate), Err: errors.New("must be positive")}
	}
	if c.PaperWidth < 16 {
		return &Error{Key: "PaperWidth", Value: strconv.Itoa(c.PaperWidth), Err: errors.New("must be at least 16 columns")}
	}
	return ValidateSchedule(c.Schedule)
}

func defaultPort() string {
	if runtime.GOOS == "windows" {
		return "COM4"
	}
	return "/dev/rfcomm0"
}

func applyDerivedDefaults(cfg *Config, overrides *configOverrides) {
	if !overrides.dbPath {
		cfg.DBPath = filepath.Join(cfg.DataDir, "agendaprint.db")
	}
	if !overrides.spoolDir {
		cfg.SpoolDir = filepath.Join(cfg.DataDir, "spool")
	}
	if cfg.PollInterval < minPollInterval {
		cfg.PollInterval = minPollInterval
	}
	if cfg.PollInterval > maxPollInterval {
		cfg.PollInterval = maxPollInterval
	}
}

func applyEnvOverrides(cfg *Config, overrides *configOverrides) error {
	for _, kv := range []struct{ env, key string }{
		{"AGENDA_DB_PATH", "DBPath"},
		{"AGENDA_SPOOL_DIR", "SpoolDir"},
		{"AGENDA_LISTEN", "Listen"},
		{"AGENDA_PRINTER_PORT", "PrinterPort"},
		{"AGENDA_PRINTER_BAUD", "PrinterBaudRate"},
		{"AGENDA_PRINTER_OPEN_TIMEOUT", "PrinterOpenTimeout"},
		{"AGENDA_PRINTER_WRITE_TIMEOUT", "PrinterWriteTimeout"},
		{"AGENDA_PRINTER_PROBE", "PrinterProbe"},
		{"AGENDA_PAPER_WIDTH", "PaperWidth"},
		{"AGENDA_SCHEDULE", "Schedule"},
		{"AGENDA_POLL_INTERVAL", "PollInterval"},
		{"AGENDA_CALENDARS", "Calendar"},
		{"AGENDA_ERROR_LOG", "ErrorLog"},
		{"AGENDA_ACTIVITY_LOG", "ActivityLog"},
		{"AGENDA_ACCESS_LOG", "AccessLog"},
	} {
		v, ok := os.LookupEnv(kv.env)
		if !ok {
			continue
		}
		if kv.key == "Schedule" || kv.key == "Calendar" {
			// Env values replace, file values accumulate.
			if kv.key == "Schedule" {
				cfg.Schedule = nil
				overrides.schedule = false
			} else {
				cfg.Calendars = nil
				overrides.calendar = false
			}
		}
		if err := applySetting(cfg, overrides, kv.key, v); err != nil {
			return err
		}
	}
	return nil
}

func parseAgendaConf(path string, cfg *Config, overrides *configOverrides) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		key := parts[0]
		value := strings.TrimSpace(line[len(key):])
		if err := applySetting(cfg, overrides, key, value); err != nil {
			return err
		}
	}
	return sc.Err()
}

func applySetting(cfg *Config, overrides *configOverrides, key, value string) error {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	switch strings.ToLower(key) {
	case "datadir":
		if value != "" {
			cfg.DataDir = resolvePath(cfg.ConfDir, value)
		}
	case "dbpath":
		if value != "" {
			cfg.DBPath = resolvePath(cfg.ConfDir, value)
			overrides.dbPath = true
		}
	case "spooldir":
		if value != "" {
			cfg.SpoolDir = resolvePath(cfg.ConfDir, value)
			overrides.spoolDir = true
		}
	case "listen":
		cfg.Listen = value
	case "printerport":
		cfg.PrinterPort = value
	case "printerbaudrate", "printerbaud":
		n, ok := parseInt(value)
		if !ok || n <= 0 {
			return &Error{Key: "PrinterBaudRate", Value: value, Err: errors.New("expected a positive integer")}
		}
		cfg.PrinterBaudRate = n
	case "printeropentimeout":
		d, ok := parseDuration(value)
		if !ok {
			return &Error{Key: "PrinterOpenTimeout", Value: value, Err: errors.New("expected a duration")}
		}
		cfg.PrinterOpenTimeout = d
	case "printerwritetimeout":
		d, ok := parseDuration(value)
		if !ok {
			return &Error{Key: "PrinterWriteTimeout", Value: value, Err: errors.New("expected a duration")}
		}
		cfg.PrinterWriteTimeout = d
	case "printerprobe":
		if v, ok := parseBool(value); ok {
			cfg.PrinterProbe = v
		}
	case "paperwidth":
		n, ok := parseInt(value)
		if !ok {
			return &Error{Key: "PaperWidth", Value: value, Err: errors.New("expected an integer")}
		}
		cfg.PaperWidth = n
	case "schedule":
		entries, err := ParseSchedule(value)
		if err != nil {
			return err
		}
		// The first Schedule line replaces the defaults, later ones add to it.
		if !overrides.schedule {
			cfg.Schedule = nil
			overrides.schedule = true
		}
		cfg.Schedule = NormalizeSchedule(append(cfg.Schedule, entries...))
	case "pollinterval":
		d, ok := parseDuration(value)
		if !ok {
			return &Error{Key: "PollInterval", Value: value, Err: errors.New("expected a duration")}
		}
		cfg.PollInterval = d
	case "calendar":
		if !overrides.calendar {
			cfg.Calendars = nil
			overrides.calendar = true
		}
		for _, c := range splitList(value) {
			cfg.Calendars = appendUnique(cfg.Calendars, c)
		}
	case "tasklistname":
		if value != "" {
			cfg.TaskListName = value
		}
	case "autostart":
		if v, ok := parseBool(value); ok {
			cfg.AutoStart = v
		}
	case "keepspool":
		if n, ok := parseInt(value); ok {
			cfg.KeepSpool = n
		}
	case "errorlog":
		cfg.ErrorLogPath = resolvePath(cfg.ConfDir, value)
	case "activitylog":
		cfg.ActivityLogPath = resolvePath(cfg.ConfDir, value)
	case "accesslog":
		cfg.AccessLogPath = resolvePath(cfg.ConfDir, value)
	case "maxlogsize":
		if v, ok := parseSize(value); ok {
			cfg.MaxLogSize = v
		}
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\t' || r == ' '
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func resolvePath(root, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	switch strings.ToLower(value) {
	case "stderr", "stdout", "none", "off", "-":
		return value
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(root, value)
}

func parseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func parseSize(value string) (int64, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, false
	}
	mult := int64(1)
	switch v[len(v)-1] {
	case 'k', 'K':
		mult = 1024
		v = v[:len(v)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		v = v[:len(v)-1]
	case 'g', 'G':
		mult = 1024 * 1024 * 1024
		v = v[:len(v)-1]
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || num < 0 {
		return 0, false
	}
	return int64(num * float64(mult)), true
}

func parseInt(value string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseDuration accepts Go durations ("1m30s") and bare or suffixed
// seconds ("30", "30s", "5m", "1h").
func parseDuration(value string) (time.Duration, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
