package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/optimics/ga4-manager/internal/config"
)

const (
	defaultDebounce = 2 * time.Second
	watchPIDName    = "watch.pid"
)

// watchPIDPath is where a running watch process records its PID, so
// "trigger" can signal it.
func watchPIDPath() string {
	dir := config.DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, watchPIDName)
}

func newWatchCmd() *cobra.Command {
	var (
		debounce time.Duration
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Apply on every change to the desired-state document",
		Long: `Apply once, then keep running and apply again whenever the desired-state
document or the config file changes. Bursts of edits are coalesced. With
--interval the properties are also re-checked periodically, which repairs
drift made outside this tool. SIGHUP (see "trigger") forces a run.

Only one watch process may run at a time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
			defer stop()

			cleanup, err := writePIDFile(watchPIDPath())
			if err != nil {
				return err
			}
			defer cleanup()

			holder := config.NewHolder(cc.Cfg)
			r := newRunner(cc, cmd.OutOrStdout())

			reload := func() []string {
				resolved, err := loadConfig(cmd, cc.Flags)
				if err != nil {
					cc.Logger.Error("config reload failed, keeping previous config", slog.String("error", err.Error()))
					return nil
				}

				holder.Update(resolved)

				return watchedFiles(resolved)
			}

			runOnce := func(ctx context.Context) {
				if _, err := r.run(ctx, holder.Config(), true); err != nil && !errors.Is(err, errRunFailed) {
					cc.Logger.Error("run failed", slog.String("error", err.Error()))
				}
			}

			return watchFiles(ctx, cc.Logger, watchedFiles(holder.Config()), watchOptions{
				debounce: debounce,
				interval: interval,
				reload:   reload,
				run:      runOnce,
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "quiet period after a change before applying")
	cmd.Flags().DurationVar(&interval, "interval", 0, "also apply periodically (0 = only on change)")

	return cmd
}

// watchedFiles returns the absolute paths whose changes trigger a run.
func watchedFiles(cfg *config.Resolved) []string {
	var out []string

	for _, p := range []string{cfg.Source.DesiredFile, cfg.Path} {
		if p == "" {
			continue
		}

		if abs, err := filepath.Abs(p); err == nil {
			out = append(out, abs)
		}
	}

	return out
}

type watchOptions struct {
	debounce time.Duration
	interval time.Duration
	// reload refreshes configuration before a change-triggered run and
	// returns the files to watch from then on; nil keeps the current set.
	reload func() []string
	run    func(ctx context.Context)
}

// watchSet is the set of files whose changes trigger a run, with their
// parent directories registered on the event source.
type watchSet struct {
	src   eventSource
	files map[string]bool
	dirs  map[string]bool
}

func newWatchSet(src eventSource) *watchSet {
	return &watchSet{src: src, files: map[string]bool{}, dirs: map[string]bool{}}
}

// update replaces the watched files. Directories that are no longer needed
// stay registered; their events are filtered out by relevant.
func (s *watchSet) update(files []string) error {
	next := make(map[string]bool, len(files))

	for _, f := range files {
		next[f] = true

		dir := filepath.Dir(f)
		if s.dirs[dir] {
			continue
		}

		if err := s.src.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}

		s.dirs[dir] = true
	}

	s.files = next

	return nil
}

func (s *watchSet) relevant(path string) bool {
	return s.files[filepath.Clean(path)]
}

func (s *watchSet) list() []string {
	return slices.Sorted(maps.Keys(s.files))
}

// watchFiles runs once, then again after each debounced change to files.
// Parent directories are watched rather than the files themselves because
// editors commonly save by writing a new file and renaming it over the old
// one, which drops a file-level watch.
func watchFiles(ctx context.Context, logger *slog.Logger, files []string, opts watchOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	src := watcherSource{watcher}

	set := newWatchSet(src)
	if err := set.update(files); err != nil {
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	triggers := make(chan struct{}, 1)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				logger.Info("received SIGHUP, running now")

				select {
				case triggers <- struct{}{}:
				default:
				}
			}
		}
	}()

	logger.Info("watching for changes", slog.Any("files", set.list()), slog.Duration("debounce", opts.debounce))

	opts.run(ctx)

	return watchLoop(ctx, logger, set, triggers, opts)
}

// eventSource abstracts fsnotify.Watcher for tests.
type eventSource interface {
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Add(dir string) error
}

type watcherSource struct {
	w *fsnotify.Watcher
}

func (s watcherSource) Events() <-chan fsnotify.Event { return s.w.Events }
func (s watcherSource) Errors() <-chan error          { return s.w.Errors }
func (s watcherSource) Add(dir string) error          { return s.w.Add(dir) }

// watchLoop is the select loop behind watchFiles. Relevant file events
// (re)arm the debounce timer; when it fires, config is reloaded, the
// watched set follows the reloaded config and a run starts. Triggers and
// interval ticks run immediately.
func watchLoop(
	ctx context.Context,
	logger *slog.Logger,
	set *watchSet,
	triggers <-chan struct{},
	opts watchOptions,
) error {
	src := set.src
	timer := time.NewTimer(opts.debounce)
	timer.Stop() // start idle, no events yet
	defer timer.Stop()

	var tick <-chan time.Time

	if opts.interval > 0 {
		ticker := time.NewTicker(opts.interval)
		defer ticker.Stop()

		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-src.Events():
			if !ok {
				return nil
			}

			if !set.relevant(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}

			logger.Debug("change detected", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))

			// Reset needs no drain: since Go 1.23 it discards a pending fire.
			timer.Reset(opts.debounce)

		case err, ok := <-src.Errors():
			if !ok {
				return nil
			}

			logger.Warn("file watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			if opts.reload != nil {
				if files := opts.reload(); files != nil {
					if err := set.update(files); err != nil {
						logger.Warn("updating watched files", slog.String("error", err.Error()))
					}
				}
			}

			opts.run(ctx)

		case <-triggers:
			opts.run(ctx)

		case <-tick:
			logger.Debug("interval elapsed, running")
			opts.run(ctx)
		}
	}
}
