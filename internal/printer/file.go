package printer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// fileTransport appends the payload to a file or character device, such as
// /dev/usb/lp0.
type fileTransport struct{}

func init() {
	Register(fileTransport{})
}

func (fileTransport) Schemes() []string {
	return []string{"file"}
}

func (fileTransport) Open(ctx context.Context, t Target) (Link, error) {
	target := pathOf(t.Port)
	if runtime.GOOS == "windows" && strings.HasPrefix(target, "/") && len(target) > 2 && target[2] == ':' {
		target = target[1:]
	}
	if target == "" {
		return nil, errors.New("invalid file port")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileLink{f: f}, nil
}

type fileLink struct {
	f *os.File
}

func (l *fileLink) Write(p []byte) (int, error) {
	return l.f.Write(p)
}

// Flush syncs regular files only; devices reject fsync.
func (l *fileLink) Flush(context.Context) error {
	info, err := l.f.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return l.f.Sync()
}

func (l *fileLink) Close() error {
	return l.f.Close()
}
