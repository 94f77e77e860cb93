// Package faillog records issue keys that could not be crawled so later
// runs and humans can follow up. The log is a plain append-only text
// file, one key per line, deduplicated and guarded by a file lock.
package faillog

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// Log appends crawl failures to one file.
type Log struct {
	path string
	lock *flock.Flock
}

// New returns a log writing to path. The file is created lazily on the
// first recorded failure.
func New(path string) *Log {
	return &Log{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Record appends one failure line unless the key is already logged.
// Lines look like "EPIC-1\t2024-06-01T10:00:00Z\tfetch issue: HTTP 502".
func (l *Log) Record(key, reason string) error {
	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("faillog: acquiring lock: %w", err)
	}
	defer func() { _ = l.lock.Unlock() }()

	existing, err := l.readKeys()
	if err != nil {
		return err
	}
	if existing[key] {
		return nil
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("faillog: creating directory: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("faillog: opening %s: %w", l.path, err)
	}
	defer f.Close()

	reason = strings.ReplaceAll(reason, "\n", " ")
	line := fmt.Sprintf("%s\t%s\t%s\n", key, time.Now().UTC().Format(time.RFC3339), reason)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("faillog: writing %s: %w", l.path, err)
	}
	return nil
}

// Keys returns the logged keys in file order.
func (l *Log) Keys() ([]string, error) {
	if err := l.lock.Lock(); err != nil {
		return nil, fmt.Errorf("faillog: acquiring lock: %w", err)
	}
	defer func() { _ = l.lock.Unlock() }()

	return l.readOrdered()
}

func (l *Log) readKeys() (map[string]bool, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("faillog: reading %s: %w", l.path, err)
	}
	defer f.Close()

	out := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if key := lineKey(scanner.Text()); key != "" {
			out[key] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("faillog: reading %s: %w", l.path, err)
	}
	return out, nil
}

func (l *Log) readOrdered() ([]string, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("faillog: reading %s: %w", l.path, err)
	}
	defer f.Close()

	var keys []string
	emitted := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key := lineKey(scanner.Text())
		if key == "" || emitted[key] {
			continue
		}
		emitted[key] = true
		keys = append(keys, key)
	}
	return keys, scanner.Err()
}

func lineKey(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	if i := strings.IndexByte(line, '\t'); i > 0 {
		return line[:i]
	}
	return line
}
