package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedRange = errors.New("malformed range header")
	ErrUnsatisfiable  = errors.New("range not satisfiable")
)

// ByteRange is an inclusive span of bytes within a file.
type ByteRange struct {
	First int64
	Last  int64
}

func (b ByteRange) Length() int64 {
	return b.Last - b.First + 1
}

func (b ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", b.First, b.Last, size)
}

// ParseByteRange reads a Range header against a file of size bytes. A missing
// header yields ok=false. Only the first span of a multi-span header is used.
func ParseByteRange(header string, size int64) (br ByteRange, ok bool, err error) {
	if header == "" {
		return ByteRange{}, false, nil
	}
	spans, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return ByteRange{}, false, ErrMalformedRange
	}
	spans, _, _ = strings.Cut(spans, ",")
	from, to, found := strings.Cut(strings.TrimSpace(spans), "-")
	if !found {
		return ByteRange{}, false, ErrMalformedRange
	}

	switch {
	case from == "":
		n, err := strconv.ParseInt(to, 10, 64)
		if err != nil || n <= 0 {
			return ByteRange{}, false, ErrMalformedRange
		}
		br = ByteRange{First: max(size-n, 0), Last: size - 1}
	default:
		first, err := strconv.ParseInt(from, 10, 64)
		if err != nil || first < 0 {
			return ByteRange{}, false, ErrMalformedRange
		}
		last := size - 1
		if to != "" {
			if last, err = strconv.ParseInt(to, 10, 64); err != nil {
				return ByteRange{}, false, ErrMalformedRange
			}
		}
		br = ByteRange{First: first, Last: min(last, size-1)}
		if first > last {
			return ByteRange{}, false, ErrUnsatisfiable
		}
	}

	if size == 0 || br.First >= size {
		return ByteRange{}, false, ErrUnsatisfiable
	}
	return br, true, nil
}
