// Package secret reads credentials that may rotate on disk.
package secret

import (
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var ErrEmpty = errors.New("secret: empty value")

// FileLoader reads a secret from disk and caches the last trimmed value.
type FileLoader struct {
	path   string
	mu     sync.Mutex
	cached string
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load reads the file. The boolean reports whether the value differs from
// the cached one.
func (l *FileLoader) Load() (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		return "", false, errors.Wrap(err, "secret: read file")
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		l.cached = ""
		return "", false, ErrEmpty
	}
	if value == l.cached {
		return l.cached, false, nil
	}
	l.cached = value
	return value, true, nil
}

// Source returns the inline value when set, otherwise a func that re-reads
// path on every call so rotated files take effect without a restart. With
// neither set it yields "".
func Source(inline, path string) func() (string, error) {
	inline = strings.TrimSpace(inline)
	if inline != "" || path == "" {
		return func() (string, error) { return inline, nil }
	}
	l := NewFileLoader(path)
	return func() (string, error) {
		v, _, err := l.Load()
		return v, err
	}
}
