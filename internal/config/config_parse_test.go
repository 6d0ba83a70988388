package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agendaprint/internal/model"
)

func TestParseAgendaConfCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agenda.conf")
	content := strings.Join([]string{
		`# receipt printer on the desk`,
		`PrinterPort /dev/ttyUSB0`,
		`printerbaudrate 19200`,
		`Schedule 07:30, 12:00`,
		`Schedule 12:00 21:15`,
		`PollInterval 15s`,
		`Calendar https://example.com/a.ics`,
		`CALENDAR cal/b.ics`,
		`ActivityLog logs/activity_log`,
		`PaperWidth 48`,
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write agenda.conf: %v", err)
	}

	cfg := Config{ConfDir: dir, Schedule: defaultSchedule}
	if err := parseAgendaConf(path, &cfg, &configOverrides{}); err != nil {
		t.Fatalf("parseAgendaConf: %v", err)
	}

	if cfg.PrinterPort != "/dev/ttyUSB0" || cfg.PrinterBaudRate != 19200 {
		t.Fatalf("printer = %q@%d", cfg.PrinterPort, cfg.PrinterBaudRate)
	}
	if got := FormatSchedule(cfg.Schedule); got != "07:30,12:00,21:15" {
		t.Fatalf("Schedule = %s, want 07:30,12:00,21:15", got)
	}
	if cfg.PollInterval != 15*time.Second {
		t.Fatalf("PollInterval = %v", cfg.PollInterval)
	}
	if len(cfg.Calendars) != 2 || cfg.Calendars[0] != "https://example.com/a.ics" || cfg.Calendars[1] != "cal/b.ics" {
		t.Fatalf("Calendars = %#v", cfg.Calendars)
	}
	if !strings.HasSuffix(cfg.ActivityLogPath, filepath.Join("logs", "activity_log")) {
		t.Fatalf("ActivityLogPath = %q", cfg.ActivityLogPath)
	}
	if cfg.PaperWidth != 48 {
		t.Fatalf("PaperWidth = %d", cfg.PaperWidth)
	}
}

func TestParseAgendaConfRejectsBadSchedule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agenda.conf")
	if err := os.WriteFile(path, []byte("Schedule 08:00, 25:00\n"), 0o644); err != nil {
		t.Fatalf("write agenda.conf: %v", err)
	}
	cfg := Config{ConfDir: dir}
	err := parseAgendaConf(path, &cfg, &configOverrides{})
	if err == nil {
		t.Fatalf("expected error for 25:00")
	}
	if !IsConfigurationError(err) {
		t.Fatalf("error %v is not a configuration error", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGENDA_DATA_DIR", dir)
	t.Setenv("AGENDA_CONF_DIR", filepath.Join(dir, "conf"))
	t.Setenv("AGENDA_SCHEDULE", "18:00,08:00,08:00")
	t.Setenv("AGENDA_PRINTER_PORT", "socket://10.0.0.9")
	t.Setenv("AGENDA_POLL_INTERVAL", "1s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := FormatSchedule(cfg.Schedule); got != "08:00,18:00" {
		t.Fatalf("Schedule = %s", got)
	}
	if cfg.PrinterPort != "socket://10.0.0.9" {
		t.Fatalf("PrinterPort = %q", cfg.PrinterPort)
	}
	if cfg.DBPath != filepath.Join(dir, "agendaprint.db") {
		t.Fatalf("DBPath = %q", cfg.DBPath)
	}
	if cfg.PollInterval != minPollInterval {
		t.Fatalf("PollInterval = %v, want clamp to %v", cfg.PollInterval, minPollInterval)
	}
}

func TestLoadDefaultsFromOriginalSettings(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGENDA_DATA_DIR", dir)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PrinterBaudRate != 9600 || cfg.PaperWidth != 32 {
		t.Fatalf("defaults = %d baud, %d cols", cfg.PrinterBaudRate, cfg.PaperWidth)
	}
	want := []model.ScheduleEntry{{Hour: 8}, {Hour: 12}, {Hour: 18}}
	if len(cfg.Schedule) != len(want) {
		t.Fatalf("Schedule = %v", cfg.Schedule)
	}
	for i := range want {
		if cfg.Schedule[i] != want[i] {
			t.Fatalf("Schedule[%d] = %v, want %v", i, cfg.Schedule[i], want[i])
		}
	}
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "8:00", want: "08:00"},
		{in: "12:00, 08:00;12:00", want: "08:00,12:00"},
		{in: "23:59 00:00", want: "00:00,23:59"},
		{in: "", want: ""},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "12:5", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseSchedule(tc.in)
		if tc.wantErr {
			if err == nil || !IsConfigurationError(err) {
				t.Fatalf("ParseSchedule(%q) err = %v, want configuration error", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tc.in, err)
		}
		if FormatSchedule(got) != tc.want {
			t.Fatalf("ParseSchedule(%q) = %s, want %s", tc.in, FormatSchedule(got), tc.want)
		}
	}
}

func TestValidateScheduleRejectsOutOfRange(t *testing.T) {
	if err := ValidateSchedule([]model.ScheduleEntry{{Hour: 7, Minute: 5}, {Hour: -1}}); !IsConfigurationError(err) {
		t.Fatalf("ValidateSchedule err = %v", err)
	}
}
