// Package watcher waits for device nodes to appear at boot.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrTimeout is returned when some device nodes did not appear in time.
var ErrTimeout = errors.New("device wait timed out")

// MissingError lists the nodes that were still absent when the wait ended.
type MissingError struct {
	Paths []string
	Err   error
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%v: missing %s", e.Err, strings.Join(e.Paths, ", "))
}

func (e *MissingError) Unwrap() error {
	return e.Err
}

// rescan is how often the node list is re-checked in case an event was
// missed, for example when udev renames a node into place.
const rescan = 250 * time.Millisecond

// WaitForDevices blocks until every path exists, ctx is done or timeout
// elapses. A zero timeout checks once and does not wait.
func WaitForDevices(ctx context.Context, paths []string, timeout time.Duration) error {
	missing := missingPaths(paths)
	if len(missing) == 0 {
		return nil
	}
	if timeout <= 0 {
		return &MissingError{Paths: missing, Err: ErrTimeout}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsWatcher.Close()

	// Watch parent directories; the nodes themselves do not exist yet.
	dirs := make(map[string]bool)
	for _, p := range missing {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		if err := fsWatcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	// Re-check after the watches are in place so a node created in between
	// is not missed.
	if missing = missingPaths(missing); len(missing) == 0 {
		return nil
	}

	ticker := time.NewTicker(rescan)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			err := ErrTimeout
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = ctx.Err()
			}
			return &MissingError{Paths: missingPaths(missing), Err: err}

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return &MissingError{Paths: missing, Err: ErrTimeout}
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) == 0 {
				continue
			}

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return &MissingError{Paths: missing, Err: ErrTimeout}
			}
			return fmt.Errorf("watch devices: %w", err)

		case <-ticker.C:
		}

		if missing = missingPaths(missing); len(missing) == 0 {
			return nil
		}
	}
}

func missingPaths(paths []string) []string {
	var missing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	sort.Strings(missing)
	return missing
}
