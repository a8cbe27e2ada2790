package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ThalesGroup/logconf"
	"github.com/ThalesGroup/logconf/logmanager"
	"github.com/ansel1/merry/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func newRunCmd() *cobra.Command {
	var (
		watch      bool
		loggerName string
		level      string
	)

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Configure a log context from a file, and log each line of stdin",
		Long: `run applies the configuration file, then logs every line read from
stdin through the named logger.  With --watch, the file is applied again
whenever it changes; a change which fails to apply is rolled back, and the
previous configuration stays in place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lctx := logmanager.NewLogContext()

			lvl, err := lctx.LevelForName(level)
			if err != nil {
				return err
			}

			r := &runner{path: args[0], c: newConfiguration(lctx)}
			defer r.c.Close()

			if err := r.reload(); err != nil {
				return err
			}

			if watch {
				stopWatch, err := r.watch(ctx)
				if err != nil {
					return err
				}
				defer stopWatch()
			}

			ctx = logmanager.WithLogger(ctx, lctx.Logger(loggerName))

			return r.pump(ctx, cmd.InOrStdin(), lvl)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "reapply the file when it changes")
	cmd.Flags().StringVar(&loggerName, "logger", "", "logger to log stdin through")
	cmd.Flags().StringVarP(&level, "level", "l", "INFO", "level to log stdin at")

	return cmd
}

type runner struct {
	path string
	c    *logconf.Configuration
}

// reload applies the file in one transaction.
func (r *runner) reload() error {
	doc, err := readDocument(r.path)
	if err != nil {
		return err
	}

	if err := logconf.Apply(r.c, doc); err != nil {
		r.c.Forget()
		return err
	}

	if err := r.c.Commit(); err != nil {
		r.c.Forget()
		return err
	}

	for _, w := range multierr.Errors(r.c.Warnings()) {
		logger.Warn("configuration applied with errors", "file", r.path, "error", w)
	}

	logger.Info("configuration applied", "file", r.path)

	return nil
}

// watch reloads the file when it changes.  The directory is watched, since
// editors often replace the file rather than writing to it.  The returned
// function stops watching, and waits for a reload in progress to finish.
func (r *runner) watch(ctx context.Context) (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, merry.Wrap(err)
	}

	if err := w.Add(filepath.Dir(r.path)); err != nil {
		_ = w.Close()
		return nil, merry.Wrap(err)
	}

	target := filepath.Clean(r.path)
	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}

				if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}

				if err := r.reload(); err != nil {
					logger.Error("configuration not applied", "file", r.path, "error", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}

				logger.Error("watch failed", "file", r.path, "error", err)
			}
		}
	}()

	return func() {
		_ = w.Close()
		<-done
	}, nil
}

// pump logs each line of in through ctx's logger, until in is exhausted or
// ctx is canceled.
func (r *runner) pump(ctx context.Context, in io.Reader, level slog.Level) error {
	l := logmanager.FromContext(ctx, r.c.LogContext(), "")
	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(lines)

		s := bufio.NewScanner(in)
		for s.Scan() {
			select {
			case lines <- s.Text():
			case <-ctx.Done():
				errs <- nil
				return
			}
		}

		errs <- s.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				flush(l)
				return merry.Wrap(<-errs)
			}

			l.Log(level, line)
		}
	}
}

func flush(l *logmanager.Logger) {
	for cur := l; cur != nil; cur = cur.Parent() {
		for _, h := range cur.Handlers() {
			h.Flush()
		}
	}
}
