package orchestrator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/local/figcrop/internal/document"
)

// ParsePages turns a 1-based page list such as "1-3,5" into sorted, unique
// 0-based indices. An empty list selects every page and returns nil.
func ParsePages(list string, total int) ([]int, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, nil
	}
	seen := make(map[int]bool)
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		if lo < 1 || hi > total {
			return nil, fmt.Errorf("pages %q of %d: %w", part, total, document.ErrPageOutOfRange)
		}
		for p := lo; p <= hi; p++ {
			seen[p-1] = true
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("invalid page list %q", list)
	}
	out := make([]int, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out, nil
}

func parseRange(part string) (int, int, error) {
	from, to, isRange := strings.Cut(part, "-")
	lo, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page %q", part)
	}
	if !isRange {
		return lo, lo, nil
	}
	hi, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil || hi < lo {
		return 0, 0, fmt.Errorf("invalid page range %q", part)
	}
	return lo, hi, nil
}
