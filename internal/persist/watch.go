package persist

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"
)

// DefaultWatchDebounce coalesces bursts of writes to the same file.
const DefaultWatchDebounce = 150 * time.Millisecond

// Watcher reports keys whose state files changed on disk.
type Watcher struct {
	fs       *fsnotify.Watcher
	dir      string
	debounce time.Duration
	log      pslog.Logger
}

// NewWatcher watches the state directory of a file store.
func NewWatcher(dir string, debounce time.Duration, logger pslog.Logger) (*Watcher, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Watcher{fs: fsw, dir: dir, debounce: debounce, log: logger}, nil
}

// Run delivers changed keys to fn until ctx is done. The watcher is closed on return.
func (w *Watcher) Run(ctx context.Context, fn func(key string)) error {
	defer func() { _ = w.fs.Close() }()
	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time
	flush := func() {
		keys := make([]string, 0, len(pending))
		for key := range pending {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		clear(pending)
		for _, key := range keys {
			if w.log != nil {
				w.log.Debug("state watch change", "key", key)
			}
			fn(key)
		}
	}
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			key, relevant := relevantEvent(event)
			if !relevant {
				continue
			}
			pending[key] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			flush()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if w.log != nil {
				w.log.Warn("state watch error", "err", err)
			}
		}
	}
}

func relevantEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return "", false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	return keyForFile(base)
}
