package logging

import (
	"io"
	"os"
	"sync"
)

// targets are the error, activity and access logs of the daemon.
type targets struct {
	errors   *RotatingFile
	activity *RotatingFile
	access   *RotatingFile
}

var (
	mu      sync.RWMutex
	current targets
)

// Configure sets the three log targets, closing the previous ones. Each path
// may be a file, "stderr", "stdout" or "none".
func Configure(errorPath, activityPath, accessPath string, maxSize int64) {
	next := targets{
		errors:   NewRotatingFile(errorPath, maxSize),
		activity: NewRotatingFile(activityPath, maxSize),
		access:   NewRotatingFile(accessPath, maxSize),
	}
	mu.Lock()
	prev := current
	current = next
	mu.Unlock()
	_ = prev.errors.Close()
	_ = prev.activity.Close()
	_ = prev.access.Close()
}

// ErrorWriter is the destination for the standard logger.
func ErrorWriter() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	if current.errors.Enabled() {
		return current.errors
	}
	return os.Stderr
}

// Activity appends one line to the activity log.
func Activity(line string) {
	write(func(t targets) *RotatingFile { return t.activity }, line)
}

// Access appends one line to the access log.
func Access(line string) {
	write(func(t targets) *RotatingFile { return t.access }, line)
}

func write(pick func(targets) *RotatingFile, line string) {
	mu.RLock()
	target := pick(current)
	mu.RUnlock()
	_ = target.WriteLine(line)
}
