package cache

import (
	"strconv"
	"strings"
)

// ParseRange interprets an RFC 7233 Range header against a body of totalSize
// bytes and returns the closed interval [start, end]. ok is false whenever
// the request should fall back to a full 200 response: multi-range requests,
// malformed headers, and unsatisfiable offsets all do, because players probe
// with bad ranges and must keep playing.
func ParseRange(header string, totalSize int64) (start, end int64, ok bool) {
	const prefix = "bytes="
	if header == "" || !strings.HasPrefix(header, prefix) || totalSize <= 0 {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(header, prefix)

	// Single range only.
	if strings.Contains(spec, ",") {
		return 0, 0, false
	}

	dash := strings.Index(spec, "-")
	if dash < 0 {
		return 0, 0, false
	}
	startStr := strings.TrimSpace(spec[:dash])
	endStr := strings.TrimSpace(spec[dash+1:])

	if startStr == "" {
		// Suffix range: last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > totalSize {
			n = totalSize
		}
		return totalSize - n, totalSize - 1, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	if start >= totalSize {
		return 0, 0, false
	}

	if endStr == "" {
		return start, totalSize - 1, true
	}

	end, err = strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	if end >= totalSize {
		end = totalSize - 1
	}
	return start, end, true
}
