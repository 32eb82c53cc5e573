package feedserver

import (
	"strconv"
	"strings"
)

// parseRange interprets a single-range Range header against a resource of
// the given size. Multi-part and malformed headers report ok=false and the
// caller serves the full file. A syntactically valid range that falls
// outside the resource reports satisfiable=false.
func parseRange(header string, size int64) (start, end int64, ok, satisfiable bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false, false
	}
	spec := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if spec == "" || strings.Contains(spec, ",") {
		return 0, 0, false, false
	}
	dash := strings.Index(spec, "-")
	if dash < 0 {
		return 0, 0, false, false
	}
	startStr, endStr := strings.TrimSpace(spec[:dash]), strings.TrimSpace(spec[dash+1:])

	if startStr == "" {
		// suffix range, the final n bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false, false
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true, size > 0
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false, false
	}
	if endStr == "" {
		end = size - 1
	} else {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, false, false
		}
		if end >= size {
			end = size - 1
		}
	}
	if start >= size {
		return start, end, true, false
	}
	return start, end, true, true
}
