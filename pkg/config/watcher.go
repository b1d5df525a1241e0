package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher reloads a policy file into a PolicyHolder whenever it changes.
// A reload that fails validation is logged and the previous policy stays.
type Watcher struct {
	// OnReload, when set, is called after every reload attempt.
	OnReload func(ok bool)

	path     string
	holder   *PolicyHolder
	watcher  *fsnotify.Watcher
	debounce time.Duration
}

// NewWatcher watches the directory of path so that editors which replace
// the file via rename are picked up as well.
func NewWatcher(path string, holder *PolicyHolder) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return &Watcher{
		path:     filepath.Clean(path),
		holder:   holder,
		watcher:  fw,
		debounce: 200 * time.Millisecond,
	}, nil
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.Reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("policy watcher error")
		}
	}
}

// Reload reads the policy file once and swaps it in when valid.
func (w *Watcher) Reload() bool {
	ok := w.reload()
	if w.OnReload != nil {
		w.OnReload(ok)
	}
	return ok
}

func (w *Watcher) reload() bool {
	p, err := LoadPolicy(w.path)
	if err != nil {
		log.WithError(err).WithField("path", w.path).Error("policy reload rejected, keeping previous policy")
		return false
	}
	w.holder.Set(p)
	log.WithField("path", w.path).Info("policy reloaded")
	return true
}
