package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertToDisjointRanges(t *testing.T) {
	tests := []struct {
		name  string
		input []rawRange
		want  []Range
	}{
		{
			name:  "empty input",
			input: nil,
			want:  []Range{},
		},
		{
			name: "all zero hit counts",
			input: []rawRange{
				{Start: 0, End: 100, Count: 0},
				{Start: 10, End: 20, Count: 0},
			},
			want: []Range{},
		},
		{
			name: "single range spanning whole text",
			input: []rawRange{
				{Start: 0, End: 250, Count: 7},
			},
			want: []Range{{Start: 0, End: 250}},
		},
		{
			name: "adjacent ranges merge",
			input: []rawRange{
				{Start: 0, End: 50, Count: 1},
				{Start: 50, End: 100, Count: 1},
			},
			want: []Range{{Start: 0, End: 100}},
		},
		{
			name: "nested zero suppresses prefix",
			input: []rawRange{
				{Start: 0, End: 100, Count: 1},
				{Start: 0, End: 50, Count: 0},
			},
			want: []Range{{Start: 50, End: 100}},
		},
		{
			name: "nested zero in the middle splits",
			input: []rawRange{
				{Start: 0, End: 100, Count: 1},
				{Start: 40, End: 60, Count: 0},
			},
			want: []Range{{Start: 0, End: 40}, {Start: 60, End: 100}},
		},
		{
			name: "deeply nested alternating counts",
			input: []rawRange{
				{Start: 0, End: 100, Count: 1},
				{Start: 10, End: 90, Count: 0},
				{Start: 20, End: 80, Count: 3},
				{Start: 30, End: 70, Count: 0},
			},
			want: []Range{
				{Start: 0, End: 10},
				{Start: 20, End: 30},
				{Start: 70, End: 80},
				{Start: 90, End: 100},
			},
		},
		{
			name: "degenerate length filtered",
			input: []rawRange{
				{Start: 5, End: 6, Count: 1},
			},
			want: []Range{},
		},
		{
			name: "disjoint siblings keep order",
			input: []rawRange{
				{Start: 60, End: 80, Count: 1},
				{Start: 0, End: 20, Count: 1},
			},
			want: []Range{{Start: 0, End: 20}, {Start: 60, End: 80}},
		},
		{
			name: "uncalled sibling leaves gap",
			input: []rawRange{
				{Start: 0, End: 20, Count: 1},
				{Start: 30, End: 50, Count: 0},
				{Start: 60, End: 80, Count: 2},
			},
			want: []Range{{Start: 0, End: 20}, {Start: 60, End: 80}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertToDisjointRanges(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Re-expressing the output as hit-count-1 inputs must be a fixed point.
func TestConvertToDisjointRangesIdempotent(t *testing.T) {
	inputs := [][]rawRange{
		{
			{Start: 0, End: 100, Count: 1},
			{Start: 40, End: 60, Count: 0},
		},
		{
			{Start: 0, End: 50, Count: 1},
			{Start: 50, End: 100, Count: 1},
			{Start: 120, End: 200, Count: 4},
		},
		{
			{Start: 0, End: 300, Count: 1},
			{Start: 10, End: 290, Count: 0},
			{Start: 100, End: 200, Count: 2},
		},
	}

	for _, input := range inputs {
		first := convertToDisjointRanges(input)
		again := make([]rawRange, 0, len(first))
		for _, r := range first {
			again = append(again, rawRange{Start: r.Start, End: r.End, Count: 1})
		}
		assert.Equal(t, first, convertToDisjointRanges(again))
	}
}

func TestConvertToDisjointRangesOrdered(t *testing.T) {
	got := convertToDisjointRanges([]rawRange{
		{Start: 200, End: 260, Count: 1},
		{Start: 0, End: 40, Count: 1},
		{Start: 100, End: 150, Count: 1},
	})
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].End, got[i].Start, "ranges must be ordered and disjoint")
	}
}
