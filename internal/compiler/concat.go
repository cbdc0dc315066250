package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ConcatEntry is one still image shown for Duration seconds.
type ConcatEntry struct {
	Path     string
	Duration float64
}

// BuildConcatList renders entries in ffmpeg concat demuxer syntax. The last
// file is repeated without a duration so its own duration is honoured.
func BuildConcatList(entries []ConcatEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "file %s\n", quote(e.Path))
		fmt.Fprintf(&b, "duration %s\n", strconv.FormatFloat(e.Duration, 'f', 3, 64))
	}
	fmt.Fprintf(&b, "file %s\n", quote(entries[len(entries)-1].Path))
	return b.String()
}

// quote wraps a path in single quotes, escaping embedded quotes the way the
// concat demuxer expects.
func quote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
