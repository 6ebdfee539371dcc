package geo

import (
	"bytes"
	"errors"
	"io"
	"math/bits"
)

const chunk = 4096

// Search performs a binary search over the byte offsets of a file of
// sorted lines. cmp reports where the wanted record lies relative to a
// line: negative before it, positive after it, zero on a match. A line cmp
// cannot parse (ok false) is treated as lying before the record, which
// skips header rows.
//
// The number of steps is capped at log2(size) plus headroom, so a file
// that is not sorted ends the search instead of looping.
func Search(r io.ReaderAt, size int64, cmp func(line []byte) (int, bool)) ([]byte, bool, error) {
	lo, hi := int64(0), size
	maxSteps := bits.Len64(uint64(size)) + 8

	for steps := 0; lo < hi && steps < maxSteps; steps++ {
		mid := lo + (hi-lo)/2
		line, next, err := lineAt(r, size, mid)
		if err != nil {
			return nil, false, err
		}
		if line == nil {
			hi = mid
			continue
		}

		c, ok := cmp(line)
		if !ok {
			c = 1
		}
		switch {
		case c == 0:
			return line, true, nil
		case c < 0:
			hi = mid
		default:
			lo = next
		}
	}
	return nil, false, nil
}

// lineAt returns the first line starting at or after off, without its line
// terminator, and the offset just past it. line is nil when no line starts
// at or after off.
func lineAt(r io.ReaderAt, size, off int64) ([]byte, int64, error) {
	start := off
	if off > 0 {
		nl, err := indexNewline(r, size, off-1)
		if err != nil {
			return nil, 0, err
		}
		if nl < 0 {
			return nil, size, nil
		}
		start = nl + 1
	}
	if start >= size {
		return nil, size, nil
	}

	end, err := indexNewline(r, size, start)
	if err != nil {
		return nil, 0, err
	}
	next := end + 1
	if end < 0 {
		end, next = size, size
	}

	line := make([]byte, end-start)
	if _, err := r.ReadAt(line, start); err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, err
	}
	return bytes.TrimSuffix(line, []byte{'\r'}), next, nil
}

// indexNewline returns the offset of the first '\n' at or after off, or -1.
func indexNewline(r io.ReaderAt, size, off int64) (int64, error) {
	buf := make([]byte, chunk)
	for off < size {
		n, err := r.ReadAt(buf, off)
		if i := bytes.IndexByte(buf[:n], '\n'); i >= 0 {
			return off + int64(i), nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return -1, err
		}
		if n == 0 {
			break
		}
		off += int64(n)
	}
	return -1, nil
}
