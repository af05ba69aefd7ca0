package config

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/teammesh/logging"
)

// WatcherOptions configure a Watcher.
type WatcherOptions struct {
	// Debounce coalesces bursts of file events into one reload.
	Debounce time.Duration
	Logger   logging.Logger
	// OnReload is called after every reload attempt.
	OnReload func(err error)
}

// Watcher reloads a TeamSet when the team directory changes. A reload that
// fails keeps the previous teams.
type Watcher struct {
	dir   string
	teams *TeamSet
	opts  WatcherOptions
	fsw   *fsnotify.Watcher
}

// NewWatcher starts watching dir. Call Run to process events and Close to
// stop.
func NewWatcher(dir string, teams *TeamSet, optFns ...func(o *WatcherOptions)) (*Watcher, error) {
	opts := WatcherOptions{
		Debounce: 250 * time.Millisecond,
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("team watcher: %w", err)
	}

	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("team watcher: watch %s: %w", dir, err)
	}

	return &Watcher{dir: dir, teams: teams, opts: opts, fsw: fsw}, nil
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !isTeamFile(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}

			w.opts.Logger.Debug("config.teams.changed", "file", ev.Name, "op", ev.Op.String())

			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				timer.Reset(w.opts.Debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.opts.Logger.Warn("config.teams.watch_error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	teams, err := LoadTeams(w.dir)
	if err != nil {
		w.opts.Logger.Error("config.teams.reload_failed", "dir", w.dir, "error", err)
	} else {
		w.teams.Replace(teams)
		w.opts.Logger.Info("config.teams.reloaded", "dir", w.dir, "teams", len(teams))
	}

	if w.opts.OnReload != nil {
		w.opts.OnReload(err)
	}
}

// Close stops watching.
func (w *Watcher) Close() error { return w.fsw.Close() }
