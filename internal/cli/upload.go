package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rescale/cloudfm/internal/cloud/providers"
	"github.com/rescale/cloudfm/internal/cloud/upload"
	"github.com/rescale/cloudfm/internal/config"
	"github.com/rescale/cloudfm/internal/constants"
	"github.com/rescale/cloudfm/internal/eventloop"
	"github.com/rescale/cloudfm/internal/events"
	"github.com/rescale/cloudfm/internal/http"
	"github.com/rescale/cloudfm/internal/localfs"
	"github.com/rescale/cloudfm/internal/logging"
	"github.com/rescale/cloudfm/internal/progress"
	"github.com/rescale/cloudfm/internal/ratelimit"
	"github.com/rescale/cloudfm/internal/transfer"
)

// uploadFlags are the per-invocation overrides for the upload command.
type uploadFlags struct {
	to            string
	backend       string
	style         string
	concurrency   int
	includeHidden bool
	include       []string
	exclude       []string
	dryRun        bool
}

// ErrUploadIncomplete is returned when an upload ends failed or cancelled.
var ErrUploadIncomplete = errors.New("upload did not complete")

func newUploadCmd() *cobra.Command {
	var flags uploadFlags

	cmd := &cobra.Command{
		Use:   "upload <folder>",
		Short: "Upload a folder with live progress",
		Long: `Upload every file under <folder> to the configured backend.

Progress is redrawn at most every coalesce_window_ms and stays on screen
for linger_ms after the upload ends. Per-file failures are printed as they
happen; the upload keeps going. Press Ctrl+C once to cancel.

Examples:
  cloudfm upload ./results --to runs/2026-10-19
  cloudfm upload ./photos --backend s3 --style compact
  cloudfm upload ./data --exclude '*.tmp' --exclude 'scratch/**' --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *GetConfig()
			if err := flags.apply(&cfg, cmd); err != nil {
				return err
			}
			if flags.dryRun {
				return runDryRun(GetContext(), cmd.OutOrStdout(), args[0], walkOptions(&cfg))
			}
			return runUpload(GetContext(), &cfg, args[0], flags.to, os.Stdout, GetLogger())
		},
	}

	cmd.Flags().StringVar(&flags.to, "to", "", "Destination prefix inside the backend")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "Backend: local, s3 or azure (overrides config)")
	cmd.Flags().StringVar(&flags.style, "style", "", "Progress style: bars, compact or plain (overrides config)")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "Files uploaded in parallel (overrides config)")
	cmd.Flags().BoolVar(&flags.includeHidden, "include-hidden", false, "Upload hidden files and directories")
	cmd.Flags().StringSliceVar(&flags.include, "include", nil, "Only upload files matching these globs (overrides config)")
	cmd.Flags().StringSliceVar(&flags.exclude, "exclude", nil, "Skip files matching these globs (overrides config)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "List what would be uploaded and exit")

	return cmd
}

// apply copies explicitly set flags onto cfg and validates the result.
func (f *uploadFlags) apply(cfg *config.Config, cmd *cobra.Command) error {
	if f.backend != "" {
		cfg.Upload.Backend = strings.ToLower(f.backend)
	}
	if f.style != "" {
		cfg.UI.Style = f.style
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Upload.MaxConcurrent = f.concurrency
	}
	if cmd.Flags().Changed("include-hidden") {
		cfg.Upload.IncludeHidden = f.includeHidden
	}
	if cmd.Flags().Changed("include") {
		cfg.Upload.Include = strings.Join(f.include, ",")
	}
	if cmd.Flags().Changed("exclude") {
		cfg.Upload.Exclude = strings.Join(f.exclude, ",")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// walkOptions selects files the same way for uploads and dry runs.
func walkOptions(cfg *config.Config) localfs.WalkOptions {
	return localfs.WalkOptions{
		IncludeHidden: cfg.Upload.IncludeHidden,
		Filter: localfs.Filter{
			Include: localfs.ParsePatterns(cfg.Upload.Include),
			Exclude: localfs.ParsePatterns(cfg.Upload.Exclude),
		},
	}
}

func runDryRun(ctx context.Context, out io.Writer, root string, opts localfs.WalkOptions) error {
	listing, err := localfs.Collect(ctx, root, opts)
	if err != nil {
		return err
	}
	for _, f := range listing.Files {
		fmt.Fprintf(out, "%12d  %s\n", f.Size, f.Rel)
	}
	n := len(listing.Files)
	fmt.Fprintf(out, "%d %s, %.1f MiB\n", n, pluralize("file", n), float64(listing.TotalBytes)/(1024*1024))
	return nil
}

// pluralize appends "s" to word unless count is 1.
func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}

// runUpload starts a folder upload and follows it with a progress observer
// on a dedicated event loop until the observer dismisses itself.
//
// Cancelling ctx does not abort the upload directly; it is forwarded to the
// observer as a cancel request so the terminal "cancelled" snapshot is still
// rendered.
func runUpload(ctx context.Context, cfg *config.Config, root, dest string, out *os.File, logger *logging.Logger) error {
	style, err := progress.ParseStyle(cfg.UI.Style)
	if err != nil {
		return err
	}

	store, err := providers.NewStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	defer bus.Close()
	tracker := transfer.NewTracker(bus, logger.Named("tracker"))

	retry := http.DefaultRetryConfig()
	retry.MaxRetries = cfg.Upload.MaxRetries + 1
	svc := upload.NewService(store, tracker, upload.Options{
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		IncludeHidden: cfg.Upload.IncludeHidden,
		Filter:        walkOptions(cfg).Filter,
		Retry:         retry,
		Limiter:       ratelimit.NewFileStartLimiter(float64(cfg.Upload.FilesPerSecond), logger),
	}, logger)

	// The operation outlives ctx so cancellation can go through the observer
	id, err := svc.StartFolder(context.WithoutCancel(ctx), root, dest)
	if err != nil {
		return err
	}
	logger.Debug().Str("operation", id).Str("destination", store.Name()).Msg("Upload started")

	view := progress.NewTerminalView(out, style, logger)
	loop := eventloop.New(0)

	var (
		obs       *progress.Observer
		completed bool
	)
	obs = progress.NewObserver(loop, tracker, progress.Sinks{
		Redraw: func() {
			if snap, ok := obs.Snapshot(); ok {
				view.Render(snap)
			}
		},
		Failure: func(reason string) {
			// The terminal summary line already carries the final reason
			if snap, ok := obs.Snapshot(); ok && snap.IsTerminal {
				return
			}
			view.Notice("! " + reason)
		},
		Complete: func() {
			completed = true
		},
		Dismissed: loop.Stop,
	}, progress.Options{
		CoalesceWindow: cfg.CoalesceWindow(),
		LingerDelay:    cfg.LingerDelay(),
		Logger:         logger.Named("observer"),
	})

	loop.Post(func() {
		if err := obs.Attach(id); err != nil {
			logger.Error().Err(err).Msg("Failed to observe upload")
			loop.Stop()
		}
	})

	go func() {
		select {
		case <-ctx.Done():
			loop.Post(func() {
				if err := obs.CancelOperation(context.Background()); err != nil {
					logger.Debug().Err(err).Msg("Cancel request not delivered")
				}
			})
		case <-loop.Done():
		}
	}()

	loop.Run(context.Background())
	view.Close()
	if !completed {
		cancelUnfinished(tracker, id, logger)
	}
	svc.Wait()

	info, ok := tracker.Get(id)
	if !ok || !completed {
		return ErrUploadIncomplete
	}
	if info.State != transfer.OperationCompleted {
		return fmt.Errorf("%w: %s", ErrUploadIncomplete, info.Snapshot.FailureReason)
	}
	return nil
}

// cancelUnfinished stops an operation that nobody is observing any more, so
// waiting for it cannot block until the whole upload finishes.
func cancelUnfinished(tracker *transfer.Tracker, id string, logger *logging.Logger) {
	info, ok := tracker.Get(id)
	if !ok || info.State.IsTerminal() {
		return
	}
	if err := tracker.CancelUpload(context.Background(), id); err != nil {
		logger.Debug().Err(err).Str("operation", id).Msg("Cancel of unobserved upload failed")
		return
	}
	logger.Warn().Str("operation", id).Msg("Progress observer stopped early; upload cancelled")
}
