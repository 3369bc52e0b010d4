// Package gcsio accelerates analytics read workloads against Cloud Storage.
// Columnar readers issue many small random range reads per file; gcsio serves
// them through a seekable stream that coalesces vectored reads into fewer
// parallel GETs, speculatively caches object footers, and keeps small objects
// fully in memory.
//
// The FileSystem facade owns the storage client and the shared worker pool;
// each opened Stream owns one channel pinned at the object generation
// observed when the stream was opened.
package gcsio

import (
	"errors"

	"github.com/javi11/gcsio/channel"
	"github.com/javi11/gcsio/gcs"
)

var (
	// ErrInvalidArgument reports a nil buffer, negative offset or length
	// overflow passed to a read operation.
	ErrInvalidArgument = errors.New("gcsio: invalid argument")

	// ErrInvalidPath reports an unusable URI.
	ErrInvalidPath = errors.New("gcsio: invalid path")

	// ErrClosed reports an operation on a closed stream or file system.
	ErrClosed = channel.ErrClosed
)

// FileInfo wraps object metadata with the originating URI and an opaque
// attribute map passed through for collaborators.
type FileInfo struct {
	Info       gcs.ItemInfo
	URI        string
	Attributes map[string]string
}
