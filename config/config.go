// Package config holds the read-accelerator options: vectored-read merge
// thresholds, footer prefetch sizes, small-object caching, and the storage
// client settings. Options are immutable value objects built either from
// Default or from a flat string map via FromMap.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Recognised property keys, matched after stripping the caller's prefix.
const (
	KeyReadThreadCount          = "analytics-core.read.thread.count"
	KeyVectoredMergeGap         = "analytics-core.read.vectored.range.merge-gap.max-bytes"
	KeyVectoredMergedSizeMax    = "analytics-core.read.vectored.range.merged-size.max-bytes"
	KeyFooterPrefetchEnabled    = "analytics-core.footer.prefetch.enabled"
	KeySmallFileFooterSize      = "analytics-core.small-file.footer.prefetch.size-bytes"
	KeyLargeFileFooterSize      = "analytics-core.large-file.footer.prefetch.size-bytes"
	KeySmallObjectCacheLimit    = "analytics-core.small-file.cache.threshold-bytes"
	KeyClientType               = "client.type"
	KeyReadChunkSize            = "channel.read.chunk-size-bytes"
	KeyDecryptionKey            = "decryption.key"
	KeyProjectID                = "project-id"
	KeyServiceHost              = "service.host"
	KeyClientLibToken           = "client-lib-token"
	KeyUserAgent                = "user-agent"
)

// ClientType selects the storage client transport.
type ClientType string

const (
	HTTPClient ClientType = "HTTP_CLIENT"
	GRPCClient ClientType = "GRPC_CLIENT"
)

// Files above this size use the large-file footer prefetch size.
const LargeFileThreshold int64 = 1 << 30

const (
	defaultReadThreadCount       = 16
	defaultVectoredMergeGap      = 4096
	defaultVectoredMergedSizeMax = 8 * 1024 * 1024
	defaultSmallFileFooterSize   = 102_400
	defaultLargeFileFooterSize   = 1024 * 1024
	defaultSmallObjectCacheLimit = 1024 * 1024
)

// ErrInvalidConfiguration reports an unparseable or out-of-range option value.
var ErrInvalidConfiguration = errors.New("config: invalid configuration")

// Options configures read-path behaviour and the storage client. Zero is not
// a usable value; start from Default or FromMap.
type Options struct {
	// ReadThreadCount bounds the shared worker pool for vectored reads.
	ReadThreadCount int

	// VectoredMergeGapBytes is the strict upper bound on the gap between two
	// ranges for them to merge into one GET.
	VectoredMergeGapBytes int64

	// VectoredMergedSizeMaxBytes caps the size of a merged GET.
	VectoredMergedSizeMaxBytes int64

	// FooterPrefetchEnabled is the master switch for footer prefetch.
	FooterPrefetchEnabled bool

	// SmallFileFooterSize is the footer prefetch size for files at or below
	// LargeFileThreshold.
	SmallFileFooterSize int64

	// LargeFileFooterSize is the footer prefetch size for files above
	// LargeFileThreshold.
	LargeFileFooterSize int64

	// SmallObjectCacheThreshold fully caches objects at or below this size.
	SmallObjectCacheThreshold int64

	// ClientType selects HTTP (JSON) or gRPC transport.
	ClientType ClientType

	// ReadChunkSize, when positive, caps the bytes requested from the
	// underlying stream per read during cache population.
	ReadChunkSize int

	// DecryptionKey is the decoded AES-256 customer-supplied key applied to
	// every GET, or nil.
	DecryptionKey []byte

	// ProjectID is billed for requester-pays buckets when set.
	ProjectID string

	// ServiceHost overrides the storage service endpoint.
	ServiceHost string

	// ClientLibToken and UserAgent are passed through to the storage client.
	ClientLibToken string
	UserAgent      string
}

// Default returns the documented defaults.
func Default() *Options {
	return &Options{
		ReadThreadCount:            defaultReadThreadCount,
		VectoredMergeGapBytes:      defaultVectoredMergeGap,
		VectoredMergedSizeMaxBytes: defaultVectoredMergedSizeMax,
		FooterPrefetchEnabled:      true,
		SmallFileFooterSize:        defaultSmallFileFooterSize,
		LargeFileFooterSize:        defaultLargeFileFooterSize,
		SmallObjectCacheThreshold:  defaultSmallObjectCacheLimit,
		ClientType:                 HTTPClient,
	}
}

// FromMap builds Options from a flat property map. Only keys that start with
// prefix are considered; the recognised set is the Key* constants. Unknown
// keys are ignored so shared property files keep working.
func FromMap(prefix string, props map[string]string) (*Options, error) {
	o := Default()

	get := func(key string) (string, bool) {
		v, ok := props[prefix+key]
		return v, ok
	}

	if err := parseInt(get, prefix, KeyReadThreadCount, func(v int64) { o.ReadThreadCount = int(v) }); err != nil {
		return nil, err
	}
	if err := parseInt(get, prefix, KeyVectoredMergeGap, func(v int64) { o.VectoredMergeGapBytes = v }); err != nil {
		return nil, err
	}
	if err := parseInt(get, prefix, KeyVectoredMergedSizeMax, func(v int64) { o.VectoredMergedSizeMaxBytes = v }); err != nil {
		return nil, err
	}
	if err := parseInt(get, prefix, KeySmallFileFooterSize, func(v int64) { o.SmallFileFooterSize = v }); err != nil {
		return nil, err
	}
	if err := parseInt(get, prefix, KeyLargeFileFooterSize, func(v int64) { o.LargeFileFooterSize = v }); err != nil {
		return nil, err
	}
	if err := parseInt(get, prefix, KeySmallObjectCacheLimit, func(v int64) { o.SmallObjectCacheThreshold = v }); err != nil {
		return nil, err
	}
	if err := parseInt(get, prefix, KeyReadChunkSize, func(v int64) { o.ReadChunkSize = int(v) }); err != nil {
		return nil, err
	}

	if v, ok := get(KeyFooterPrefetchEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s%s: %q is not a boolean", ErrInvalidConfiguration, prefix, KeyFooterPrefetchEnabled, v)
		}
		o.FooterPrefetchEnabled = b
	}

	if v, ok := get(KeyClientType); ok {
		switch ClientType(v) {
		case HTTPClient, GRPCClient:
			o.ClientType = ClientType(v)
		default:
			return nil, fmt.Errorf("%w: %s%s: unknown client type %q", ErrInvalidConfiguration, prefix, KeyClientType, v)
		}
	}

	if v, ok := get(KeyDecryptionKey); ok && v != "" {
		key, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s%s: not valid base64", ErrInvalidConfiguration, prefix, KeyDecryptionKey)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("%w: %s%s: want a 256-bit key, got %d bytes", ErrInvalidConfiguration, prefix, KeyDecryptionKey, len(key))
		}
		o.DecryptionKey = key
	}

	if v, ok := get(KeyProjectID); ok {
		o.ProjectID = v
	}
	if v, ok := get(KeyServiceHost); ok {
		o.ServiceHost = v
	}
	if v, ok := get(KeyClientLibToken); ok {
		o.ClientLibToken = v
	}
	if v, ok := get(KeyUserAgent); ok {
		o.UserAgent = v
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func parseInt(get func(string) (string, bool), prefix, key string, set func(int64)) error {
	v, ok := get(key)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s%s: %q is not an integer", ErrInvalidConfiguration, prefix, key, v)
	}
	set(n)
	return nil
}

// Validate checks value ranges. Prefetch buffers are materialized in memory,
// so both footer sizes must fit in a signed 32-bit integer.
func (o *Options) Validate() error {
	if o.ReadThreadCount <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfiguration, KeyReadThreadCount, o.ReadThreadCount)
	}
	if o.VectoredMergeGapBytes < 0 {
		return fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidConfiguration, KeyVectoredMergeGap, o.VectoredMergeGapBytes)
	}
	if o.VectoredMergedSizeMaxBytes <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfiguration, KeyVectoredMergedSizeMax, o.VectoredMergedSizeMaxBytes)
	}
	if o.SmallFileFooterSize < 0 || o.SmallFileFooterSize > math.MaxInt32 {
		return fmt.Errorf("%w: %s out of range: %d", ErrInvalidConfiguration, KeySmallFileFooterSize, o.SmallFileFooterSize)
	}
	if o.LargeFileFooterSize < 0 || o.LargeFileFooterSize > math.MaxInt32 {
		return fmt.Errorf("%w: %s out of range: %d", ErrInvalidConfiguration, KeyLargeFileFooterSize, o.LargeFileFooterSize)
	}
	if o.SmallObjectCacheThreshold < 0 || o.SmallObjectCacheThreshold > math.MaxInt32 {
		return fmt.Errorf("%w: %s out of range: %d", ErrInvalidConfiguration, KeySmallObjectCacheLimit, o.SmallObjectCacheThreshold)
	}
	if o.ReadChunkSize < 0 {
		return fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidConfiguration, KeyReadChunkSize, o.ReadChunkSize)
	}
	return nil
}

// EffectivePrefetchSize derives the unified prefetch/cache size for a file.
// Objects at or below the small-object threshold are cached whole; otherwise
// the footer prefetch size applies when enabled: the large-file size above
// LargeFileThreshold, the small-file size otherwise, capped at the file size.
func (o *Options) EffectivePrefetchSize(fileSize int64) int64 {
	if o.SmallObjectCacheThreshold >= fileSize {
		return fileSize
	}
	if !o.FooterPrefetchEnabled {
		return 0
	}
	if fileSize > LargeFileThreshold {
		return min(o.LargeFileFooterSize, fileSize)
	}
	return min(o.SmallFileFooterSize, fileSize)
}
