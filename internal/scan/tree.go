package scan

import (
	"fmt"
	"sort"
	"strings"
)

// TruncatedMarker closes a tree listing that was cut to fit the line cap.
const TruncatedMarker = "…truncated…"

type treeLine struct {
	depth int
	text  string
}

func elidedMarker(n int) string {
	if n == 1 {
		return "… (1 more file)"
	}
	return fmt.Sprintf("… (%d more files)", n)
}

// renderTree indents lines two spaces per depth and caps the result at
// maxLines including the marker.
//
// Drop order: deepest depth first; within a depth, the entry that comes last
// in walk order goes first. Every descendant of a directory is deeper than
// it, so a directory is only dropped once its whole subtree is gone.
func renderTree(lines []treeLine, maxLines int) (string, bool) {
	keep := make([]bool, len(lines))
	for i := range keep {
		keep[i] = true
	}
	truncated := len(lines) > maxLines
	if truncated {
		order := make([]int, len(lines))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			la, lb := lines[order[a]], lines[order[b]]
			if la.depth != lb.depth {
				return la.depth > lb.depth
			}
			return order[a] > order[b]
		})
		drop := len(lines) - (maxLines - 1)
		for _, idx := range order[:drop] {
			keep[idx] = false
		}
	}

	var b strings.Builder
	n := 0
	for i, l := range lines {
		if !keep[i] {
			continue
		}
		if n > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat("  ", l.depth))
		b.WriteString(l.text)
		n++
	}
	if truncated {
		if n > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(TruncatedMarker)
	}
	return b.String(), truncated
}
