// Package registry tracks the Sources a process has open so that a second
// Source on the same file reuses the first one's scan.
package registry

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/zsiec/nalsource/source"
)

// Entry is one open Source.
type Entry struct {
	Source   *source.Source
	OpenedAt time.Time
	// Shared is set when the seek index was copied from a sibling.
	Shared bool
}

// Manager hands out Sources and remembers them until they are released.
type Manager struct {
	log  *slog.Logger
	opts []source.Option

	mu     sync.Mutex
	byPath map[string][]*Entry
}

// NewManager creates a Manager that passes opts to every source.Open. If
// log is nil, slog.Default() is used.
func NewManager(log *slog.Logger, opts ...source.Option) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:    log.With("component", "registry"),
		opts:   opts,
		byPath: make(map[string][]*Entry),
	}
}

// Open opens path. When another Source on the same path is registered it is
// used as the sibling and the lock is held until the copy is done, so the
// sibling cannot be released halfway. Without a sibling the scan runs
// unlocked.
func (m *Manager) Open(ctx context.Context, path string) (*Entry, error) {
	path = filepath.Clean(path)

	m.mu.Lock()
	if sibs := m.byPath[path]; len(sibs) > 0 {
		defer m.mu.Unlock()
		opts := append(m.opts[:len(m.opts):len(m.opts)], source.WithSibling(sibs[0].Source))
		src, err := source.Open(ctx, path, opts...)
		if err != nil {
			return nil, err
		}
		e := &Entry{Source: src, OpenedAt: time.Now(), Shared: true}
		m.byPath[path] = append(m.byPath[path], e)
		m.log.Debug("opened with shared index", "path", path, "open", len(m.byPath[path]))
		return e, nil
	}
	m.mu.Unlock()

	src, err := source.Open(ctx, path, m.opts...)
	if err != nil {
		return nil, err
	}
	e := &Entry{Source: src, OpenedAt: time.Now()}
	m.mu.Lock()
	m.byPath[path] = append(m.byPath[path], e)
	m.mu.Unlock()
	m.log.Info("opened", "path", path, "frames", src.FrameCount())
	return e, nil
}

// Release unregisters e and closes its Source.
func (m *Manager) Release(e *Entry) error {
	path := e.Source.Path()
	m.mu.Lock()
	list := m.byPath[path]
	for i, x := range list {
		if x == e {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.byPath, path)
	} else {
		m.byPath[path] = list
	}
	m.mu.Unlock()

	m.log.Debug("released", "path", path)
	return e.Source.Close()
}

// List returns every registered entry.
func (m *Manager) List() []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Entry
	for _, list := range m.byPath {
		out = append(out, list...)
	}
	return out
}

// Close releases every registered entry and returns the first close error.
func (m *Manager) Close() error {
	var first error
	for _, e := range m.List() {
		if err := m.Release(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
