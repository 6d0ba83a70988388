// Package spool keeps the receipts that reached the printer, both as the raw
// device bytes and as plain text.
package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"agendaprint/internal/compose"
	"agendaprint/internal/model"
)

// Encoder turns blocks into device bytes.
type Encoder func(blocks []compose.Block) []byte

type Spool struct {
	Fs    afero.Fs
	Dir   string
	Width int
	// Keep is the number of archived jobs retained. Zero or less keeps all.
	Keep   int
	Encode Encoder
}

// Entry is one archived job.
type Entry struct {
	JobID string
	Raw   string
	Text  string
}

func New(dir string, width, keep int, enc Encoder) *Spool {
	return &Spool{Fs: afero.NewOsFs(), Dir: dir, Width: width, Keep: keep, Encode: enc}
}

func (s *Spool) Ensure() error {
	return s.fs().MkdirAll(s.Dir, 0o755)
}

// Archive writes job-<requested>-<id>.bin and .txt, then prunes old jobs.
func (s *Spool) Archive(job model.PrintJob, blocks []compose.Block) error {
	if err := s.Ensure(); err != nil {
		return err
	}
	base := s.baseName(job)
	if s.Encode != nil {
		if err := afero.WriteFile(s.fs(), filepath.Join(s.Dir, base+".bin"), s.Encode(blocks), 0o644); err != nil {
			return err
		}
	}
	text := fmt.Sprintf("# job %s %s %s\n", job.ID, job.Reason, job.Outcome) + compose.Text(blocks, s.Width)
	if err := afero.WriteFile(s.fs(), filepath.Join(s.Dir, base+".txt"), []byte(text), 0o644); err != nil {
		return err
	}
	return s.prune()
}

// Entries lists archived jobs, oldest first.
func (s *Spool) Entries() ([]Entry, error) {
	infos, err := afero.ReadDir(s.fs(), s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	byBase := map[string]*Entry{}
	var order []string
	for _, info := range infos {
		if info.IsDir() || !strings.HasPrefix(info.Name(), "job-") {
			continue
		}
		ext := filepath.Ext(info.Name())
		if ext != ".bin" && ext != ".txt" {
			continue
		}
		base := strings.TrimSuffix(info.Name(), ext)
		e, ok := byBase[base]
		if !ok {
			e = &Entry{JobID: jobIDOf(base)}
			byBase[base] = e
			order = append(order, base)
		}
		path := filepath.Join(s.Dir, info.Name())
		if ext == ".bin" {
			e.Raw = path
		} else {
			e.Text = path
		}
	}
	sort.Strings(order)
	out := make([]Entry, 0, len(order))
	for _, base := range order {
		out = append(out, *byBase[base])
	}
	return out, nil
}

func (s *Spool) prune() error {
	if s.Keep <= 0 {
		return nil
	}
	entries, err := s.Entries()
	if err != nil {
		return err
	}
	for len(entries) > s.Keep {
		e := entries[0]
		entries = entries[1:]
		for _, path := range []string{e.Raw, e.Text} {
			if path == "" {
				continue
			}
			if err := s.fs().Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}

func (s *Spool) baseName(job model.PrintJob) string {
	return "job-" + job.RequestedAt.UTC().Format("20060102T150405.000") + "-" + sanitizeFileName(job.ID)
}

func (s *Spool) fs() afero.Fs {
	if s.Fs == nil {
		s.Fs = afero.NewOsFs()
	}
	return s.Fs
}

// jobIDOf strips "job-<timestamp>-" from a base name.
func jobIDOf(base string) string {
	rest := strings.TrimPrefix(base, "job-")
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		return rest[i+1:]
	}
	return rest
}

func sanitizeFileName(name string) string {
	clean := make([]rune, 0, len(name))
	for _, r := range name {
		if r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|' {
			continue
		}
		clean = append(clean, r)
	}
	if len(clean) == 0 {
		return "job"
	}
	return string(clean)
}
