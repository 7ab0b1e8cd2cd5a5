package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ChunkRunner executes one chunk.
type ChunkRunner interface {
	RunChunk(ctx context.Context, req ChunkRequest) (ChunkResult, error)
}

// ErrNoProgress reports a chunk that returned done=false without moving the
// cursor, which would otherwise loop forever.
var ErrNoProgress = errors.New("chunk made no progress")

// DriveOptions configures Drive.
type DriveOptions struct {
	// Budget is passed to every chunk.
	Budget time.Duration
	// Monthly splits the range into calendar-month windows.
	Monthly bool
	// Pause is slept between chunks of one window.
	Pause time.Duration
	// Sleep waits for d or until ctx is done. Required when Pause > 0.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnChunk observes every finished chunk.
	OnChunk func(ChunkResult)
	Logger  *zap.Logger
}

// DriveSummary totals a Drive call.
type DriveSummary struct {
	Windows  int
	Chunks   int
	Seen     int
	Inserted int
	Updated  int
}

// Drive runs the continuation protocol in-process: for each window it
// repeats RunChunk with the returned cursor until a chunk reports done.
func Drive(ctx context.Context, runner ChunkRunner, rng DateRange, opts DriveOptions) (DriveSummary, error) {
	var sum DriveSummary
	if err := rng.Validate(); err != nil {
		return sum, err
	}
	if opts.Pause > 0 && opts.Sleep == nil {
		return sum, errors.New("sleep func is required when pause is set")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	windows := []DateRange{rng}
	if opts.Monthly {
		windows = rng.Months()
	}
	for _, w := range windows {
		sum.Windows++
		wlog := logger.With(zap.String("from", w.FromString()), zap.String("to", w.ToString()))
		cursor := 0
		for first := true; ; first = false {
			if !first && opts.Pause > 0 {
				if err := opts.Sleep(ctx, opts.Pause); err != nil {
					return sum, fmt.Errorf("pause: %w", err)
				}
			}
			res, err := runner.RunChunk(ctx, ChunkRequest{Range: w, Cursor: cursor, Budget: opts.Budget})
			if err != nil {
				return sum, fmt.Errorf("window %s..%s cursor %d: %w", w.FromString(), w.ToString(), cursor, err)
			}
			sum.Chunks++
			sum.Seen += res.Seen
			sum.Inserted += res.Inserted
			sum.Updated += res.Updated
			if opts.OnChunk != nil {
				opts.OnChunk(res)
			}
			wlog.Info("chunk complete",
				zap.String("run_id", res.RunID),
				zap.Int("seen", res.Seen),
				zap.Int("inserted", res.Inserted),
				zap.Int("cursor", res.Cursor),
				zap.Bool("done", res.Done))
			if res.Done {
				break
			}
			if res.Cursor == cursor {
				return sum, fmt.Errorf("window %s..%s cursor %d: %w", w.FromString(), w.ToString(), cursor, ErrNoProgress)
			}
			cursor = res.Cursor
		}
	}
	return sum, nil
}
