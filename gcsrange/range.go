// Package gcsrange models byte ranges of a single object and coalesces
// nearby ranges into combined ranges, the dispatch unit for vectored reads.
package gcsrange

import (
	"slices"
)

// ObjectRange is a caller-requested byte interval of an object. Its Result
// is completed with exactly Length bytes on success, or with an error.
type ObjectRange struct {
	Offset int64
	Length int
	Result *Result
}

// New creates an ObjectRange with a fresh, unresolved Result.
func New(offset int64, length int) *ObjectRange {
	return &ObjectRange{
		Offset: offset,
		Length: length,
		Result: NewResult(),
	}
}

// End returns the exclusive end offset of the range.
func (r *ObjectRange) End() int64 {
	return r.Offset + int64(r.Length)
}

// CombinedRange covers one or more object ranges that lie close together.
// Offset is the minimum underlying offset and Offset+Length the maximum
// underlying end. Ranges keeps the underlying ranges sorted by offset,
// preserving insertion order between equal offsets.
type CombinedRange struct {
	Offset int64
	Length int64
	Ranges []*ObjectRange
}

// End returns the exclusive end offset of the combined range.
func (c *CombinedRange) End() int64 {
	return c.Offset + c.Length
}

// Slice returns the view of buf that corresponds to r, without copying.
// buf must hold the combined range's bytes starting at c.Offset.
func (c *CombinedRange) Slice(buf []byte, r *ObjectRange) []byte {
	start := r.Offset - c.Offset
	return buf[start : start+int64(r.Length) : start+int64(r.Length)]
}

// Sort stable-sorts ranges by ascending offset in place.
func Sort(ranges []*ObjectRange) {
	slices.SortStableFunc(ranges, func(a, b *ObjectRange) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		default:
			return 0
		}
	})
}

// Merge coalesces ranges into combined ranges in a single left-to-right scan
// over the sorted input. Two neighbours merge when the gap between them is
// strictly below maxGap and the resulting combined size does not exceed
// maxSize. Overlapping ranges (negative gap) merge under the same size cap,
// and fully contained ranges stay in the underlying list.
//
// The input slice is not modified; every input range ends up in exactly one
// combined range.
func Merge(ranges []*ObjectRange, maxGap, maxSize int64) []*CombinedRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := slices.Clone(ranges)
	Sort(sorted)

	var out []*CombinedRange
	cur := &CombinedRange{
		Offset: sorted[0].Offset,
		Length: int64(sorted[0].Length),
		Ranges: []*ObjectRange{sorted[0]},
	}

	for _, next := range sorted[1:] {
		gap := next.Offset - cur.End()
		potential := max(cur.End(), next.End()) - cur.Offset

		if gap < maxGap && potential <= maxSize {
			cur.Length = potential
			cur.Ranges = append(cur.Ranges, next)
			continue
		}

		out = append(out, cur)
		cur = &CombinedRange{
			Offset: next.Offset,
			Length: int64(next.Length),
			Ranges: []*ObjectRange{next},
		}
	}

	return append(out, cur)
}
