package identity

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the mapping whenever the file changes, until ctx ends. The
// parent directory is watched so editors that replace the file by rename
// are picked up.
func (m *Mapper) Watch(ctx context.Context) error {
	if m.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	target := filepath.Clean(m.path)

	go func() {
		defer w.Close()
		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		for {
			select {
			case <-ctx.Done():
				debounce.Stop()
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(reloadDebounce)
			case <-debounce.C:
				if _, err := m.Reload(); err != nil {
					m.log.Error("identity: mapping reload failed", "path", m.path, "err", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				m.log.Error("identity: watch error", "err", err)
			}
		}
	}()
	return nil
}
