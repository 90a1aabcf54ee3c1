package snapshot

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceInterval is how long the watcher waits for the seed file to
// settle before reporting a change.
const DebounceInterval = 200 * time.Millisecond

// SeedCallback is called after the seed document settles.
// kind is one of "updated", "removed".
type SeedCallback func(kind string, path string)

// Watch starts an fsnotify watcher on dir and reports changes to seedFile
// (relative to dir) until ctx is cancelled.
//
// The parent directory is watched rather than the file itself so that
// atomic replace-by-rename writes from editors and from Save are seen.
// Bursts of events are collapsed into one callback.
func Watch(ctx context.Context, dir, seedFile string, logger *slog.Logger, cb SeedCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	target, err := filepath.Abs(filepath.Join(dir, seedFile))
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(target)); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("seed", target))

	var settle *time.Timer
	var settleCh <-chan time.Time

	schedule := func() {
		if settle == nil {
			settle = time.NewTimer(DebounceInterval)
			settleCh = settle.C
		} else {
			settle.Reset(DebounceInterval)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settle != nil {
				settle.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-settleCh:
			kind := "updated"
			if _, statErr := os.Stat(target); statErr != nil {
				kind = "removed"
			}
			logger.Debug("watcher: seed settled", slog.String("op", kind))
			if cb != nil {
				cb(kind, seedFile)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs, absErr := filepath.Abs(ev.Name)
			if absErr != nil || abs != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
