package coverage

import "sort"

// boundary is one sweep event: a range opening or closing at an offset.
type boundary struct {
	offset int
	open   bool
	length int
	count  int
}

// convertToDisjointRanges converts raw usage ranges into the minimal ordered
// set of disjoint covered ranges: the offsets where the innermost-reporting
// range has a strictly positive count.
//
// Input is assumed to form a laminar family (any two ranges disjoint or fully
// nested), which holds for function-call ranges and CSS rule ranges as the
// instrumentation layer emits them. Non-laminar input still yields a
// deterministic result under the tie-break rules below.
//
// Two boundary events are emitted per range. Events sort by offset; at equal
// offsets a close sorts before an open, the longer of two opens goes first,
// and the shorter of two closes goes first. That ordering keeps a hit-count
// stack consistent with the nesting: the top of the stack is always the
// innermost currently-open range. O(n log n).
func convertToDisjointRanges(ranges []rawRange) []Range {
	points := make([]boundary, 0, len(ranges)*2)
	for _, r := range ranges {
		points = append(points, boundary{offset: r.Start, open: true, length: r.End - r.Start, count: r.Count})
		points = append(points, boundary{offset: r.End, open: false, length: r.End - r.Start})
	}
	sort.Slice(points, func(i, j int) bool {
		a, b := points[i], points[j]
		if a.offset != b.offset {
			return a.offset < b.offset
		}
		if a.open != b.open {
			return !a.open
		}
		if a.open {
			return a.length > b.length
		}
		return a.length < b.length
	})

	hitCountStack := make([]int, 0, len(ranges))
	results := []Range{}
	lastOffset := 0
	for _, point := range points {
		if len(hitCountStack) > 0 && lastOffset < point.offset && hitCountStack[len(hitCountStack)-1] > 0 {
			if n := len(results); n > 0 && results[n-1].End == lastOffset {
				results[n-1].End = point.offset
			} else {
				results = append(results, Range{Start: lastOffset, End: point.offset})
			}
		}
		lastOffset = point.offset
		if point.open {
			hitCountStack = append(hitCountStack, point.count)
		} else if len(hitCountStack) > 0 {
			hitCountStack = hitCountStack[:len(hitCountStack)-1]
		}
	}

	// Single-byte ranges are artifacts of an inclusive/exclusive offset
	// convention mismatch in the source data.
	filtered := results[:0]
	for _, r := range results {
		if r.End-r.Start > 1 {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
