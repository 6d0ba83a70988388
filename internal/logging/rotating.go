package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

const backupSuffix = ".O"

// RotatingFile appends log lines to a file. When the next write would push
// the file past maxSize it is renamed to "<path>.O", replacing the previous
// backup, and a fresh file is started.
type RotatingFile struct {
	fs      afero.Fs
	path    string
	maxSize int64
	sink    io.Writer

	mu   sync.Mutex
	file afero.File
	size int64
}

// NewRotatingFile accepts a file path or one of "stderr", "-", "stdout",
// "none", "off" and "".
func NewRotatingFile(path string, maxSize int64) *RotatingFile {
	return newRotatingFile(afero.NewOsFs(), path, maxSize)
}

func newRotatingFile(fs afero.Fs, path string, maxSize int64) *RotatingFile {
	r := &RotatingFile{fs: fs, path: strings.TrimSpace(path), maxSize: maxSize}
	switch strings.ToLower(r.path) {
	case "", "none", "off":
		r.sink = io.Discard
	case "stderr", "-":
		r.sink = os.Stderr
	case "stdout":
		r.sink = os.Stdout
	}
	return r
}

func (r *RotatingFile) Enabled() bool {
	return r != nil && r.sink != io.Discard
}

func (r *RotatingFile) WriteLine(line string) error {
	if r == nil {
		return nil
	}
	_, err := r.Write([]byte(line + "\n"))
	return err
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	if r == nil {
		return len(p), nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink != nil {
		return r.sink.Write(p)
	}
	if r.file != nil && r.maxSize > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
		if r.maxSize > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxSize {
			if err := r.rotate(); err != nil {
				return 0, err
			}
			if err := r.open(); err != nil {
				return 0, err
			}
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// Close releases the open file; the next write reopens it.
func (r *RotatingFile) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *RotatingFile) open() error {
	if dir := filepath.Dir(r.path); dir != "" && dir != "." {
		if err := r.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := r.fs.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	r.file = f
	r.size = info.Size()
	return nil
}

func (r *RotatingFile) rotate() error {
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}
	backup := r.path + backupSuffix
	_ = r.fs.Remove(backup)
	if err := r.fs.Rename(r.path, backup); err != nil && !os.IsNotExist(err) {
		return err
	}
	r.size = 0
	return nil
}

var _ io.Writer = (*RotatingFile)(nil)
