// Package upload runs folder uploads against a storage.Store and reports
// their progress through a transfer.Tracker.
package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rescale/cloudfm/internal/cloud/storage"
	"github.com/rescale/cloudfm/internal/constants"
	"github.com/rescale/cloudfm/internal/http"
	"github.com/rescale/cloudfm/internal/localfs"
	"github.com/rescale/cloudfm/internal/logging"
	"github.com/rescale/cloudfm/internal/ratelimit"
	"github.com/rescale/cloudfm/internal/transfer"
)

// Options configures a Service.
type Options struct {
	// MaxConcurrent is the number of files in flight per operation.
	MaxConcurrent int
	// IncludeHidden uploads dot-files and hidden directories.
	IncludeHidden bool
	// Filter selects which files are uploaded.
	Filter localfs.Filter
	// Retry controls per-file retries. The zero value uses http.DefaultRetryConfig.
	Retry http.RetryConfig
	// Limiter paces file starts. Nil means unlimited.
	Limiter *ratelimit.RateLimiter
}

// Service uploads folders. Each StartFolder call becomes one tracked
// operation running in the background.
type Service struct {
	store   storage.Store
	tracker *transfer.Tracker
	opts    Options
	logger  *logging.Logger

	wg sync.WaitGroup
}

// NewService creates an upload service.
func NewService(store storage.Store, tracker *transfer.Tracker, opts Options, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = constants.DefaultMaxConcurrent
	}
	if opts.Retry.MaxRetries == 0 {
		opts.Retry = http.DefaultRetryConfig()
	}
	return &Service{
		store:   store,
		tracker: tracker,
		opts:    opts,
		logger:  logger.Named("upload"),
	}
}

// StartFolder begins uploading every file under root to destPrefix and
// returns the operation ID. Only root validation errors are returned here;
// everything after that is reported through the tracker. Cancelling ctx or
// calling Tracker.CancelUpload stops the operation.
func (s *Service) StartFolder(ctx context.Context, root, destPrefix string) (string, error) {
	abs, err := localfs.ResolvePath(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot upload %s: %w", root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("cannot upload %s: %w", root, localfs.ErrNotDirectory)
	}

	opCtx, cancel := context.WithCancel(ctx)
	id := s.tracker.Start(filepath.Base(abs), cancel)

	s.logger.Info().
		Str("operation", id).
		Str("root", abs).
		Str("destination", s.store.Name()).
		Msg("Folder upload started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(opCtx, id, abs, destPrefix)
	}()
	return id, nil
}

// Wait blocks until every operation started by this service has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context, id, root, destPrefix string) {
	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrent)

	walkOpts := localfs.WalkOptions{
		IncludeHidden: s.opts.IncludeHidden,
		Filter:        s.opts.Filter,
		OnSkip: func(path string, err error) {
			s.tracker.ReportFailure(id, fmt.Sprintf("skipped %s: %v", path, err))
		},
	}
	walkErr := localfs.Walk(ctx, root, walkOpts, func(f localfs.File) error {
		s.tracker.Discover(id, 1, f.Size)
		if err := s.opts.Limiter.Wait(ctx); err != nil {
			return err
		}
		key := storage.ObjectKey(destPrefix, f.Rel)
		// Blocks while MaxConcurrent files are in flight
		g.Go(func() error {
			s.uploadFile(ctx, id, f, key)
			return nil
		})
		return nil
	})
	_ = g.Wait()

	var err error
	switch {
	case ctx.Err() != nil:
		err = ctx.Err()
	case walkErr != nil:
		err = fmt.Errorf("walk failed: %w", walkErr)
	}
	s.tracker.Finish(id, err)

	if info, ok := s.tracker.Get(id); ok {
		s.logger.Info().
			Str("operation", id).
			Str("state", string(info.State)).
			Int("completed", info.Snapshot.CompletedItems).
			Int("failed", info.Snapshot.FailedItems).
			Int64("bytes", info.Snapshot.TransferredBytes).
			Msg("Folder upload finished")
	}
}

func (s *Service) uploadFile(ctx context.Context, id string, f localfs.File, key string) {
	s.tracker.BeginItem(id, f.Rel)

	var mark int64
	retry := s.opts.Retry
	retry.OnRetry = func(attempt int, err error, errType http.ErrorType) {
		s.logger.Warn().
			Str("file", f.Rel).
			Int("attempt", attempt).
			Str("type", errType.String()).
			Err(err).
			Msg("Retrying upload")
	}

	err := http.ExecuteWithRetry(ctx, retry, func() error {
		file, err := os.Open(f.Path)
		if err != nil {
			return err
		}
		defer file.Close()

		body := newCountingReader(file, &mark, func(n int64) {
			s.tracker.AddBytes(id, n)
		})
		return s.store.Put(ctx, key, body, f.Size)
	})

	switch {
	case err == nil:
		if rest := f.Size - mark; rest > 0 {
			s.tracker.AddBytes(id, rest)
		}
		s.tracker.CompleteItem(id, f.Rel)
	case ctx.Err() != nil:
		// Cancelled mid-file: the operation's terminal state says so
	default:
		s.logger.Debug().Str("file", f.Rel).Err(err).Msg("Upload failed")
		s.tracker.FailItem(id, f.Rel, storage.Describe(err))
	}
}
