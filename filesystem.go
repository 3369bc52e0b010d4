package gcsio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/javi11/gcsio/channel"
	"github.com/javi11/gcsio/config"
	"github.com/javi11/gcsio/gcs"
	"github.com/javi11/gcsio/internal/pool"
)

// How long Close waits for in-flight vectored read tasks before abandoning
// them and closing the storage client.
const shutdownTimeout = 30 * time.Second

// FileSystem opens read streams for gs:// URIs. It owns the storage client
// and a worker pool shared by every stream it opens; both are released by
// Close. Safe for concurrent use.
type FileSystem struct {
	client gcs.Client
	opts   *config.Options
	logger *slog.Logger

	mu      sync.Mutex
	workers *pool.Manager // created lazily on first open
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

// New builds a FileSystem with its own storage client.
func New(ctx context.Context, opts *config.Options) (*FileSystem, error) {
	client, err := gcs.NewClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, opts), nil
}

// NewWithClient builds a FileSystem over an existing storage client. The
// file system takes ownership and closes the client on Close.
func NewWithClient(client gcs.Client, opts *config.Options) *FileSystem {
	return &FileSystem{
		client: client,
		opts:   opts,
		logger: slog.Default().With("component", "filesystem"),
	}
}

// Options returns the options the file system was built with.
func (f *FileSystem) Options() *config.Options {
	return f.opts
}

// GetFileInfo probes the object's metadata: size, generation and content
// encoding. Returns gcs.ErrNotFound for absent objects and ErrInvalidPath
// for URIs that do not denote an object.
func (f *FileSystem) GetFileInfo(ctx context.Context, uri string) (*FileInfo, error) {
	id, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if !id.IsObject() {
		return nil, fmt.Errorf("%w: %q does not name an object", ErrInvalidPath, uri)
	}

	info, err := f.client.Metadata(ctx, id)
	if err != nil {
		return nil, err
	}

	attrs := map[string]string{}
	if info.ContentEncoding != "" {
		attrs["content-encoding"] = info.ContentEncoding
	}

	return &FileInfo{Info: info, URI: uri, Attributes: attrs}, nil
}

// Open resolves the URI, probes metadata, and opens a stream pinned at the
// observed generation.
func (f *FileSystem) Open(ctx context.Context, uri string) (*Stream, error) {
	fi, err := f.GetFileInfo(ctx, uri)
	if err != nil {
		return nil, err
	}
	return f.OpenInfo(ctx, fi)
}

// OpenInfo opens a stream for metadata fetched earlier, skipping the probe.
func (f *FileSystem) OpenInfo(ctx context.Context, fi *FileInfo) (*Stream, error) {
	if fi == nil {
		return nil, fmt.Errorf("%w: nil file info", ErrInvalidArgument)
	}
	if !fi.Info.ID.IsObject() {
		return nil, fmt.Errorf("%w: %q does not name an object", ErrInvalidPath, fi.URI)
	}
	if !fi.Info.Exists() {
		return nil, fmt.Errorf("%w: %s", gcs.ErrNotFound, fi.Info.ID)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	if f.workers == nil {
		f.workers = pool.NewManager(f.opts.ReadThreadCount)
	}
	workers := f.workers
	f.mu.Unlock()

	openChannel := func() (*channel.Channel, error) {
		f.mu.Lock()
		closed := f.closed
		f.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}
		return channel.New(ctx, f.client, fi.Info, f.opts, workers), nil
	}

	ch, err := openChannel()
	if err != nil {
		return nil, err
	}

	f.logger.DebugContext(ctx, "Opened stream",
		"uri", fi.URI,
		"size", fi.Info.Size,
		"generation", fi.Info.Generation,
	)
	return newStream(ctx, ch, openChannel, f.opts, fi.Info), nil
}

// Close shuts the worker pool down, waiting up to shutdownTimeout for
// in-flight vectored read tasks, then closes the storage client. Idempotent.
func (f *FileSystem) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		workers := f.workers
		f.mu.Unlock()

		if workers != nil {
			workers.Shutdown(shutdownTimeout)
		}
		f.closeErr = f.client.Close()
	})
	return f.closeErr
}
