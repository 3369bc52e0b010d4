// Package channel implements a seekable byte channel over a single object
// generation. The channel keeps one lazily opened byte stream for positional
// reads and fans vectored reads out over the shared worker pool, each task on
// a fresh stream because the storage readers are forward-only and not safe
// for concurrent use.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/javi11/gcsio/config"
	"github.com/javi11/gcsio/gcs"
	"github.com/javi11/gcsio/gcsrange"
	"github.com/javi11/gcsio/internal/pool"
	"github.com/javi11/gcsio/internal/slogutil"
)

var (
	// ErrClosed reports an operation on a closed channel or stream.
	ErrClosed = errors.New("channel: already closed")

	// ErrInvalidOffset reports a seek outside [0, size].
	ErrInvalidOffset = errors.New("channel: invalid offset")
)

// Channel is a seekable read-only view of one object pinned at a generation.
// It is not safe for concurrent use; the owning stream serializes calls.
type Channel struct {
	ctx     context.Context
	client  gcs.Client
	info    gcs.ItemInfo
	opts    *config.Options
	workers *pool.Manager
	logger  *slog.Logger

	pos    int64
	rd     io.ReadCloser // lazily opened stream delivering bytes from rdPos
	rdPos  int64
	closed bool
}

// New binds a channel to the object described by info. All GETs it issues
// carry info.Generation plus the project-id and decryption key from opts.
func New(ctx context.Context, client gcs.Client, info gcs.ItemInfo, opts *config.Options, workers *pool.Manager) *Channel {
	return &Channel{
		ctx:     ctx,
		client:  client,
		info:    info,
		opts:    opts,
		workers: workers,
		logger: slog.Default().With(
			"component", "channel",
			"bucket", info.ID.Bucket,
			"object", info.ID.Object,
			"generation", info.Generation,
		),
	}
}

// Position returns the current logical offset.
func (c *Channel) Position() int64 {
	return c.pos
}

// Size returns the object size.
func (c *Channel) Size() int64 {
	return c.info.Size
}

// IsOpen reports whether the channel accepts operations.
func (c *Channel) IsOpen() bool {
	return !c.closed
}

// Seek moves the logical position. Seeking to Size is legal; the next read
// observes io.EOF. The open byte stream, if any, is kept and dropped only
// when a read at the new position needs a different one.
func (c *Channel) Seek(pos int64) error {
	if c.closed {
		return ErrClosed
	}
	if pos < 0 || pos > c.info.Size {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidOffset, pos, c.info.Size)
	}
	c.pos = pos
	return nil
}

// Read fills p from the current position and advances it by the bytes read.
// At end of object it returns (0, io.EOF) and leaves the position unchanged.
func (c *Channel) Read(p []byte) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if c.pos >= c.info.Size {
		return 0, io.EOF
	}

	if c.rd == nil || c.rdPos != c.pos {
		if err := c.reopenAt(c.pos); err != nil {
			return 0, err
		}
	}

	n, err := c.rd.Read(p)
	c.pos += int64(n)
	c.rdPos += int64(n)

	if err != nil {
		c.dropReader()
		if errors.Is(err, io.EOF) {
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		return n, fmt.Errorf("channel: read at %d: %w", c.pos-int64(n), err)
	}
	return n, nil
}

// Close releases the open byte stream. Idempotent.
func (c *Channel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.dropReader()
	return nil
}

// ReadVectored merges ranges under the configured gap and size thresholds and
// submits one pool task per combined range. It returns once every task is
// handed to the pool; completion is observed through the per-range results.
// Task failures complete the affected results and are not returned here.
func (c *Channel) ReadVectored(ranges []*gcsrange.ObjectRange, alloc func(int) []byte) error {
	if c.closed {
		return ErrClosed
	}
	if len(ranges) == 0 {
		return nil
	}

	combined := gcsrange.Merge(ranges, c.opts.VectoredMergeGapBytes, c.opts.VectoredMergedSizeMaxBytes)
	c.logger.DebugContext(c.ctx, "Dispatching vectored read",
		"ranges", len(ranges),
		"combined", len(combined),
	)

	for _, cr := range combined {
		taskCtx := slogutil.With(c.ctx, "combined_offset", cr.Offset, "combined_length", cr.Length)
		if err := c.workers.Go(func() {
			c.readCombined(taskCtx, cr, alloc)
		}); err != nil {
			c.failCombined(taskCtx, cr, fmt.Errorf("channel: submit combined range: %w", err))
		}
	}
	return nil
}

// readCombined runs on a pool worker. It opens a fresh byte stream for the
// combined range, fills an allocator-provided buffer, and completes every
// underlying result with a zero-copy view before returning.
func (c *Channel) readCombined(ctx context.Context, cr *gcsrange.CombinedRange, alloc func(int) []byte) {
	defer func() {
		if p := recover(); p != nil {
			c.failCombined(ctx, cr, fmt.Errorf("channel: panic in vectored read task: %v", p))
		}
	}()

	rd, err := c.client.NewRangeReader(c.ctx, c.info.ID, c.info.Generation, cr.Offset, cr.Length)
	if err != nil {
		c.failCombined(ctx, cr, fmt.Errorf("channel: open combined range [%d, %d): %w", cr.Offset, cr.End(), err))
		return
	}
	defer rd.Close()

	buf := alloc(int(cr.Length))
	if int64(len(buf)) < cr.Length {
		c.failCombined(ctx, cr, fmt.Errorf("channel: allocator returned %d bytes, need %d", len(buf), cr.Length))
		return
	}
	buf = buf[:cr.Length]

	if _, err := io.ReadFull(rd, buf); err != nil {
		c.failCombined(ctx, cr, fmt.Errorf("channel: read combined range [%d, %d): %w", cr.Offset, cr.End(), err))
		return
	}

	for _, r := range cr.Ranges {
		r.Result.SetData(cr.Slice(buf, r))
	}
}

// failCombined completes every not-yet-completed underlying result with err.
// Already completed results are untouched; results are set-once.
func (c *Channel) failCombined(ctx context.Context, cr *gcsrange.CombinedRange, err error) {
	slogutil.Logger(ctx, c.logger).WarnContext(ctx, "Vectored read task failed", "error", err)
	for _, r := range cr.Ranges {
		r.Result.SetError(err)
	}
}

func (c *Channel) reopenAt(pos int64) error {
	c.dropReader()

	rd, err := c.client.NewRangeReader(c.ctx, c.info.ID, c.info.Generation, pos, -1)
	if err != nil {
		return fmt.Errorf("channel: open stream at %d: %w", pos, err)
	}
	c.rd = rd
	c.rdPos = pos
	return nil
}

func (c *Channel) dropReader() {
	if c.rd != nil {
		if err := c.rd.Close(); err != nil {
			c.logger.DebugContext(c.ctx, "Error closing byte stream", "error", err)
		}
		c.rd = nil
	}
}
