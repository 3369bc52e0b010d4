package gcsio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/javi11/gcsio/channel"
	"github.com/javi11/gcsio/config"
	"github.com/javi11/gcsio/gcs"
	"github.com/javi11/gcsio/gcsrange"
)

// Stream is the user-facing seekable read path for one object. It owns the
// unified prefetch buffer: either the object footer or, for small objects,
// the whole object. Reads inside the cached suffix are served from memory;
// everything else is delegated to the channel.
//
// A Stream is not safe for concurrent use; callers serialize reads and seeks.
type Stream struct {
	ctx         context.Context
	ch          *channel.Channel
	openChannel func() (*channel.Channel, error)
	opts        *config.Options
	logger      *slog.Logger

	fileSize     int64
	prefetchSize int64
	prefetch     []byte // populated lazily; exactly the suffix [fileSize-prefetchSize, fileSize)
	pos          int64
	closed       bool
}

func newStream(ctx context.Context, ch *channel.Channel, openChannel func() (*channel.Channel, error), opts *config.Options, info gcs.ItemInfo) *Stream {
	return &Stream{
		ctx:          ctx,
		ch:           ch,
		openChannel:  openChannel,
		opts:         opts,
		fileSize:     info.Size,
		prefetchSize: opts.EffectivePrefetchSize(info.Size),
		logger: slog.Default().With(
			"component", "stream",
			"stream_id", uuid.NewString(),
			"bucket", info.ID.Bucket,
			"object", info.ID.Object,
		),
	}
}

// Position returns the current logical offset.
func (s *Stream) Position() int64 {
	return s.pos
}

// Size returns the object size.
func (s *Stream) Size() int64 {
	return s.fileSize
}

// Seek moves the logical position of the stream and its channel. Seeking to
// Size is legal; the next read observes io.EOF. The prefetch buffer is not
// affected.
func (s *Stream) Seek(pos int64) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.ch.Seek(pos); err != nil {
		return err
	}
	s.pos = pos
	return nil
}

// ReadByte reads the byte at the current position.
func (s *Stream) ReadByte() (byte, error) {
	var b [1]byte
	n, err := s.Read(b[:])
	if n == 0 && err == nil {
		err = io.EOF
	}
	return b[0], err
}

// Read fills p from the current position. When the position falls inside the
// cached suffix the bytes are copied from memory; the first read touching the
// footer region triggers cache population. A populate failure degrades to a
// direct channel read, never to a read error.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if p == nil {
		return 0, fmt.Errorf("%w: nil buffer", ErrInvalidArgument)
	}
	if len(p) == 0 {
		return 0, nil
	}

	if s.prefetchSize > 0 && s.prefetch == nil && s.pos >= s.cacheStart() {
		s.populateCache()
	}

	if s.prefetch != nil && s.pos >= s.cacheStart() {
		off := s.pos - s.cacheStart()
		if off >= int64(len(s.prefetch)) {
			return 0, io.EOF
		}
		n := copy(p, s.prefetch[off:])
		s.pos += int64(n)
		return n, nil
	}

	// Delegated read: the channel must agree on the position, or the
	// stream's own seek plumbing is broken.
	if chPos := s.ch.Position(); chPos != s.pos {
		return 0, fmt.Errorf("gcsio: stream position %d does not match channel position %d", s.pos, chPos)
	}

	n, err := s.ch.Read(p)
	s.pos += int64(n)
	return n, err
}

// ReadAt reads exactly len(p) bytes starting at off on a transient channel,
// leaving the stream position untouched. If the object ends before len(p)
// bytes are delivered it returns an error wrapping io.ErrUnexpectedEOF.
func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if p == nil {
		return 0, fmt.Errorf("%w: nil buffer", ErrInvalidArgument)
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrInvalidArgument, off)
	}
	if len(p) == 0 {
		return 0, nil
	}

	tc, err := s.openChannel()
	if err != nil {
		return 0, err
	}
	defer tc.Close()

	if err := tc.Seek(off); err != nil {
		return 0, err
	}

	total := 0
	for total < len(p) {
		n, err := tc.Read(p[total:])
		total += n
		if errors.Is(err, io.EOF) {
			return total, fmt.Errorf("gcsio: end of stream after reading %d of %d bytes at offset %d: %w",
				total, len(p), off, io.ErrUnexpectedEOF)
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadTail reads the final len(p) bytes of the object (fewer when the object
// is smaller) on a transient channel, leaving the stream position untouched.
func (s *Stream) ReadTail(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if p == nil {
		return 0, fmt.Errorf("%w: nil buffer", ErrInvalidArgument)
	}
	if len(p) == 0 {
		return 0, nil
	}

	tc, err := s.openChannel()
	if err != nil {
		return 0, err
	}
	defer tc.Close()

	start := max(0, s.fileSize-int64(len(p)))
	if err := tc.Seek(start); err != nil {
		return 0, err
	}

	total := 0
	for total < len(p) {
		n, err := tc.Read(p[total:])
		total += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadVectored completes each range's result. When the cache covers the whole
// object the ranges are served from memory with no per-range GET: the cache is
// populated with one GET first if it is not loaded yet, and every result is
// complete when ReadVectored returns. Otherwise, or when that population
// fails, the channel fans the merged ranges out over the worker pool and the
// results complete asynchronously.
func (s *Stream) ReadVectored(ranges []*gcsrange.ObjectRange, alloc func(int) []byte) error {
	if s.closed {
		return ErrClosed
	}
	if alloc == nil {
		return fmt.Errorf("%w: nil allocator", ErrInvalidArgument)
	}
	if len(ranges) == 0 {
		return nil
	}

	if s.prefetchSize == s.fileSize {
		if s.prefetch == nil {
			s.populateCache()
		}
		if s.prefetch != nil {
			s.serveVectoredFromCache(ranges, alloc)
			return nil
		}
	}
	return s.ch.ReadVectored(ranges, alloc)
}

// Close closes the stream and its channel. Idempotent.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.prefetch = nil
	return s.ch.Close()
}

func (s *Stream) cacheStart() int64 {
	return s.fileSize - s.prefetchSize
}

// populateCache reads the suffix [cacheStart, fileSize) into memory through
// the main channel, restoring the saved position on every exit path. Failure
// leaves the buffer unset and is only logged; the pending user read proceeds
// against the channel.
func (s *Stream) populateCache() {
	saved := s.pos
	defer func() {
		if err := s.ch.Seek(saved); err != nil {
			s.logger.WarnContext(s.ctx, "Failed to restore position after cache populate", "error", err)
		}
	}()

	start := s.cacheStart()
	if err := s.ch.Seek(start); err != nil {
		s.logger.WarnContext(s.ctx, "Cache populate seek failed", "offset", start, "error", err)
		return
	}

	buf := make([]byte, s.prefetchSize)
	filled := 0
	for filled < len(buf) {
		limit := len(buf)
		if s.opts.ReadChunkSize > 0 {
			limit = min(limit, filled+s.opts.ReadChunkSize)
		}
		n, err := s.ch.Read(buf[filled:limit])
		filled += n
		if err != nil {
			s.logger.WarnContext(s.ctx, "Cache populate failed, falling back to direct reads",
				"offset", start,
				"filled", filled,
				"size", s.prefetchSize,
				"error", err,
			)
			return
		}
	}

	s.prefetch = buf
	s.logger.DebugContext(s.ctx, "Prefetch cache populated", "offset", start, "size", s.prefetchSize)
}

func (s *Stream) serveVectoredFromCache(ranges []*gcsrange.ObjectRange, alloc func(int) []byte) {
	for _, r := range ranges {
		if r.Offset < 0 || r.Length < 0 {
			r.Result.SetError(fmt.Errorf("%w: range [%d, %d)", ErrInvalidArgument, r.Offset, r.End()))
			continue
		}
		if r.End() > int64(len(s.prefetch)) {
			r.Result.SetError(fmt.Errorf("gcsio: range [%d, %d) extends past object size %d: %w",
				r.Offset, r.End(), s.fileSize, io.ErrUnexpectedEOF))
			continue
		}

		dst := alloc(r.Length)
		if len(dst) < r.Length {
			r.Result.SetError(fmt.Errorf("gcsio: allocator returned %d bytes, need %d", len(dst), r.Length))
			continue
		}
		dst = dst[:r.Length]
		copy(dst, s.prefetch[r.Offset:r.End()])
		r.Result.SetData(dst)
	}
}
