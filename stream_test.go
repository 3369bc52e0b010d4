package gcsio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javi11/gcsio/channel"
	"github.com/javi11/gcsio/config"
	"github.com/javi11/gcsio/gcs"
	"github.com/javi11/gcsio/gcsrange"
)

// memClient serves objects from memory and records reader opens, so tests
// can assert which reads hit the network path and which were cache hits.
type memClient struct {
	objects map[string][]byte
	gen     int64

	mu          sync.Mutex
	opens       int
	failOffsets map[int64]bool // opens at these offsets fail
	closed      bool
}

func newMemClient(objects map[string][]byte) *memClient {
	return &memClient{objects: objects, gen: 7, failOffsets: map[int64]bool{}}
}

func (m *memClient) Metadata(ctx context.Context, id gcs.ItemID) (gcs.ItemInfo, error) {
	data, ok := m.objects[id.Object]
	if !ok {
		return gcs.ItemInfo{ID: id, Size: -1}, fmt.Errorf("%w: %s", gcs.ErrNotFound, id)
	}
	return gcs.ItemInfo{ID: id, Size: int64(len(data)), Generation: m.gen}, nil
}

func (m *memClient) NewRangeReader(ctx context.Context, id gcs.ItemID, generation, offset, length int64) (io.ReadCloser, error) {
	m.mu.Lock()
	m.opens++
	fail := m.failOffsets[offset]
	m.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("injected open failure at %d", offset)
	}

	data, ok := m.objects[id.Object]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gcs.ErrNotFound, id)
	}
	end := int64(len(data))
	if length >= 0 && offset+length < end {
		end = offset + length
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func (m *memClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memClient) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

func (m *memClient) failOpensAt(offset int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOffsets[offset] = true
}

// openTestStream builds a stream over data with the given options.
func openTestStream(t *testing.T, data []byte, opts *config.Options) (*Stream, *memClient) {
	t.Helper()

	client := newMemClient(map[string][]byte{"data.parquet": data})
	fs := NewWithClient(client, opts)
	t.Cleanup(func() { _ = fs.Close() })

	st, err := fs.Open(context.Background(), "gs://bkt/data.parquet")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return st, client
}

// noCacheOptions disables both footer prefetch and small-object caching.
func noCacheOptions() *config.Options {
	o := config.Default()
	o.FooterPrefetchEnabled = false
	o.SmallObjectCacheThreshold = 0
	return o
}

func patternData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestStream_SeekAndRead(t *testing.T) {
	st, _ := openTestStream(t, []byte("hello world"), noCacheOptions())

	require.NoError(t, st.Seek(6))
	buf := make([]byte, 5)
	n, err := st.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))
	assert.Equal(t, int64(11), st.Position())
}

func TestStream_SeekPastEnd(t *testing.T) {
	st, _ := openTestStream(t, []byte("hello world"), noCacheOptions())

	err := st.Seek(12)
	assert.ErrorIs(t, err, channel.ErrInvalidOffset)
	assert.Equal(t, int64(0), st.Position())
}

func TestStream_SeekToSizeThenEOF(t *testing.T) {
	st, _ := openTestStream(t, []byte("hello world"), noCacheOptions())

	require.NoError(t, st.Seek(11))
	n, err := st.Read(make([]byte, 1))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int64(11), st.Position())
}

func TestStream_ReadByte(t *testing.T) {
	st, _ := openTestStream(t, []byte("xyz"), noCacheOptions())

	b, err := st.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('x'), b)
	assert.Equal(t, int64(1), st.Position())

	require.NoError(t, st.Seek(3))
	_, err = st.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_FooterCacheHit(t *testing.T) {
	data := patternData(1000)
	opts := config.Default()
	opts.SmallObjectCacheThreshold = 0
	opts.SmallFileFooterSize = 10

	st, client := openTestStream(t, data, opts)

	require.NoError(t, st.Seek(995))
	buf := make([]byte, 4)
	n, err := st.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, data[995:999], buf)
	assert.Equal(t, int64(999), st.Position())

	// Further footer reads are served from memory.
	opens := client.openCount()
	n, err = st.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, data[999:1000], buf[:1])
	assert.Equal(t, opens, client.openCount())

	// And the cache drains into a clean EOF.
	_, err = st.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int64(1000), st.Position())
}

func TestStream_ReadsBelowFooterDelegate(t *testing.T) {
	data := patternData(1000)
	opts := config.Default()
	opts.SmallObjectCacheThreshold = 0
	opts.SmallFileFooterSize = 10

	st, client := openTestStream(t, data, opts)

	buf := make([]byte, 100)
	n, err := st.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Equal(t, data[:100], buf)
	assert.Equal(t, 1, client.openCount())
}

func TestStream_NoCacheWhenDisabled(t *testing.T) {
	data := patternData(1000)
	st, client := openTestStream(t, data, noCacheOptions())

	require.NoError(t, st.Seek(995))
	buf := make([]byte, 5)
	n, err := st.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, data[995:], buf)

	require.NoError(t, st.Seek(995))
	_, err = st.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, client.openCount())
}

func TestStream_PopulateFailureFallsBack(t *testing.T) {
	data := patternData(1000)
	opts := config.Default()
	opts.SmallObjectCacheThreshold = 0
	opts.SmallFileFooterSize = 10

	st, client := openTestStream(t, data, opts)
	client.failOpensAt(990) // cache population reads from 990

	require.NoError(t, st.Seek(995))
	buf := make([]byte, 4)
	n, err := st.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, data[995:999], buf)
	assert.Equal(t, int64(999), st.Position())
}

func TestStream_ReadAt(t *testing.T) {
	data := patternData(1000)
	st, _ := openTestStream(t, data, noCacheOptions())

	require.NoError(t, st.Seek(3))

	buf := make([]byte, 20)
	n, err := st.ReadAt(buf, 500)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, data[500:520], buf)

	// The stream position is untouched by positional reads.
	assert.Equal(t, int64(3), st.Position())
}

func TestStream_ReadAt_ShortRead(t *testing.T) {
	data := patternData(1000)
	st, _ := openTestStream(t, data, noCacheOptions())

	buf := make([]byte, 20)
	n, err := st.ReadAt(buf, 990)
	assert.Equal(t, 10, n)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Contains(t, err.Error(), "10")
}

func TestStream_ReadAt_NegativeOffset(t *testing.T) {
	st, _ := openTestStream(t, []byte("data"), noCacheOptions())

	_, err := st.ReadAt(make([]byte, 1), -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestStream_ReadTail(t *testing.T) {
	data := patternData(1000)
	st, _ := openTestStream(t, data, noCacheOptions())

	require.NoError(t, st.Seek(3))

	buf := make([]byte, 16)
	n, err := st.ReadTail(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, data[984:], buf)
	assert.Equal(t, int64(3), st.Position())
}

func TestStream_ReadTail_LargerThanObject(t *testing.T) {
	st, _ := openTestStream(t, []byte("tiny"), noCacheOptions())

	buf := make([]byte, 16)
	n, err := st.ReadTail(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "tiny", string(buf[:n]))
}

func TestStream_ReadVectored_FastPath(t *testing.T) {
	data := patternData(2048)
	opts := config.Default() // threshold 1 MiB, object fully cached

	st, client := openTestStream(t, data, opts)

	ranges := []*gcsrange.ObjectRange{gcsrange.New(0, 100), gcsrange.New(1500, 200)}
	require.NoError(t, st.ReadVectored(ranges, func(n int) []byte { return make([]byte, n) }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, r := range ranges {
		got, err := r.Result.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, data[r.Offset:r.End()], got)
	}

	// Exactly one GET: the cache population. No per-range GETs.
	assert.Equal(t, 1, client.openCount())
}

func TestStream_ReadVectored_FastPathPastEnd(t *testing.T) {
	data := patternData(100)
	st, _ := openTestStream(t, data, config.Default())

	r := gcsrange.New(90, 20)
	require.NoError(t, st.ReadVectored([]*gcsrange.ObjectRange{r}, func(n int) []byte { return make([]byte, n) }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := r.Result.Get(ctx)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestStream_ReadVectored_Delegates(t *testing.T) {
	data := patternData(64 * 1024)
	opts := config.Default()
	opts.SmallObjectCacheThreshold = 0
	opts.FooterPrefetchEnabled = false

	st, _ := openTestStream(t, data, opts)

	ranges := []*gcsrange.ObjectRange{gcsrange.New(10, 100), gcsrange.New(50_000, 100)}
	require.NoError(t, st.ReadVectored(ranges, func(n int) []byte { return make([]byte, n) }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, r := range ranges {
		got, err := r.Result.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, data[r.Offset:r.End()], got)
	}
}

func TestStream_VectoredMatchesReadAt(t *testing.T) {
	data := patternData(8192)
	opts := config.Default()
	opts.SmallObjectCacheThreshold = 0
	opts.FooterPrefetchEnabled = false

	st, _ := openTestStream(t, data, opts)

	r := gcsrange.New(1234, 567)
	require.NoError(t, st.ReadVectored([]*gcsrange.ObjectRange{r}, func(n int) []byte { return make([]byte, n) }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	vectored, err := r.Result.Get(ctx)
	require.NoError(t, err)

	direct := make([]byte, 567)
	_, err = st.ReadAt(direct, 1234)
	require.NoError(t, err)

	assert.Equal(t, direct, vectored)
}

func TestStream_CloseIdempotent(t *testing.T) {
	st, _ := openTestStream(t, []byte("data"), noCacheOptions())

	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	_, err := st.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, st.Seek(0), ErrClosed)
	_, err = st.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = st.ReadTail(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, st.ReadVectored(nil, nil), ErrClosed)

	// Position stays readable after close.
	assert.Equal(t, int64(0), st.Position())
}

func TestStream_InvalidArguments(t *testing.T) {
	st, _ := openTestStream(t, []byte("data"), noCacheOptions())

	_, err := st.Read(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = st.ReadAt(nil, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = st.ReadTail(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, st.ReadVectored([]*gcsrange.ObjectRange{gcsrange.New(0, 1)}, nil), ErrInvalidArgument)

	n, err := st.Read([]byte{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
