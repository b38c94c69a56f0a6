// Package artifacts manages the temporary files a single conversion request
// creates. Every request gets its own directory so uploads with identical
// names never collide, and the whole directory is removed on release.
package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"docshift/logger"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// dirPrefix marks the directories this package owns inside a shared temp dir
const dirPrefix = "docshift-"

// ErrInUse is returned when another live request already owns the ID
var ErrInUse = errors.New("request id already in use")

// Arena is the temp directory owned by one request
type Arena struct {
	id  string
	dir string

	mu       sync.Mutex
	released bool
}

// New creates <baseDir>/docshift-<requestID>. The request ID becomes a path element,
// so only letters, digits and dashes are accepted.
func New(baseDir, requestID string) (*Arena, error) {
	if !validID.MatchString(requestID) {
		return nil, fmt.Errorf("invalid request id %q", requestID)
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create artifact base dir: %w", err)
	}
	dir := filepath.Join(baseDir, dirPrefix+requestID)
	if err := os.Mkdir(dir, 0o700); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrInUse, requestID)
		}
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	return &Arena{id: requestID, dir: dir}, nil
}

// Dir is the arena's directory
func (a *Arena) Dir() string { return a.dir }

// Input is the path for the uploaded source, <id>-in<ext>
func (a *Arena) Input(ext string) string {
	return filepath.Join(a.dir, a.id+"-in"+ext)
}

// Output is the path for the converted result, <id>-out<ext>
func (a *Arena) Output(ext string) string {
	return filepath.Join(a.dir, a.id+"-out"+ext)
}

// Path returns a path for an extra artifact inside the arena
func (a *Arena) Path(name string) string {
	return filepath.Join(a.dir, a.id+"-"+filepath.Base(name))
}

// Release removes the arena and everything in it. Errors are logged at
// debug level and otherwise ignored. Safe to call more than once.
func (a *Arena) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	a.released = true
	if err := os.RemoveAll(a.dir); err != nil {
		logger.Debugf("artifact cleanup failed for %s: %v", a.dir, err)
	}
}

// SweepStale removes arena directories under baseDir older than maxAge.
// It catches arenas left behind by a crashed process. Directories not
// created by New are never touched.
func SweepStale(baseDir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read temp dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !isArenaDir(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(baseDir, e.Name())); err != nil {
			logger.Debugf("failed to sweep %s: %v", e.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}

func isArenaDir(name string) bool {
	id, ok := strings.CutPrefix(name, dirPrefix)
	return ok && validID.MatchString(id)
}
