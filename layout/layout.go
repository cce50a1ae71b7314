// Package layout reconstructs reading order from positioned text spans.
// Spans are clustered into lines by vertical overlap, lines into blocks by
// horizontal alignment and vertical proximity, and blocks are ordered the
// way a human reads a page of columns: each column top to bottom, left
// column before right.
package layout

import (
	"sort"
	"strings"

	"github.com/wudi/zpdf/contentstream"
	"github.com/wudi/zpdf/coords"
)

// Clustering thresholds. All ratios are relative to local span or line
// geometry so the same values work across font sizes.
const (
	// lineOverlapRatio is the minimum vertical overlap, as a fraction of
	// the smaller span's height, for two spans to share a line.
	lineOverlapRatio = 0.5
	// blockXOverlapRatio is the minimum horizontal overlap, as a fraction
	// of the narrower line's width, for a line to join a block.
	blockXOverlapRatio = 0.3
	// blockGapFactor is the maximum vertical gap between consecutive lines
	// of one block, in multiples of the median line height.
	blockGapFactor = 1.8
	// sameBandFactor is how close two block tops must be, in multiples of
	// a line height, to be considered the same visual band and ordered
	// left to right.
	sameBandFactor = 1.0
	// spanGapSpaceRatio is the horizontal gap, as a fraction of the font
	// size, beyond which adjacent spans on a line get a separating space.
	spanGapSpaceRatio = 0.15
	// lineSplitGapFactor is the horizontal gap, in multiples of the line
	// height, that splits one visual row into separate column segments.
	lineSplitGapFactor = 1.5
)

// Line is a maximal run of spans sharing a baseline band, sorted by x.
type Line struct {
	Spans []contentstream.TextSpan
	Rect  coords.Rect
}

// Text joins the line's spans, inserting spaces across visible gaps.
func (l Line) Text() string {
	var b strings.Builder
	for i, s := range l.Spans {
		if i > 0 {
			prev := l.Spans[i-1]
			gap := s.Rect.X0 - prev.Rect.X1
			if gap > spanGapSpaceRatio*maxf(s.FontSize, 1) &&
				!strings.HasSuffix(prev.Text, " ") && !strings.HasPrefix(s.Text, " ") {
				b.WriteString(" ")
			}
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// FontSize returns the dominant span size on the line.
func (l Line) FontSize() float64 {
	best, bestN := 0.0, -1.0
	counts := map[float64]float64{}
	for _, s := range l.Spans {
		counts[roundHalf(s.FontSize)] += float64(len(s.Text))
		if counts[roundHalf(s.FontSize)] > bestN {
			bestN = counts[roundHalf(s.FontSize)]
			best = roundHalf(s.FontSize)
		}
	}
	return best
}

// Block is a stack of lines forming one column segment.
type Block struct {
	Lines []Line
	Rect  coords.Rect
}

// Analyze clusters spans and returns blocks in reading order. The input
// order does not matter; all sorts are stable so ties keep paint order.
func Analyze(spans []contentstream.TextSpan) []Block {
	lines := clusterLines(spans)
	blocks := clusterBlocks(lines)
	orderBlocks(blocks)
	return blocks
}

// OrderSpans flattens Analyze into one reading-ordered span list.
func OrderSpans(spans []contentstream.TextSpan) []contentstream.TextSpan {
	var out []contentstream.TextSpan
	for _, b := range Analyze(spans) {
		for _, l := range b.Lines {
			out = append(out, l.Spans...)
		}
	}
	return out
}

// StreamText renders spans in paint order, without any reordering. A
// newline separates spans whose vertical extents do not overlap; a space
// bridges visible horizontal gaps on the same baseline.
func StreamText(spans []contentstream.TextSpan) string {
	var b strings.Builder
	for i, s := range spans {
		if i > 0 {
			prev := spans[i-1]
			if prev.Rect.OverlapY(s.Rect) <= 0 {
				b.WriteString("\n")
			} else if gap := s.Rect.X0 - prev.Rect.X1; gap > spanGapSpaceRatio*maxf(s.FontSize, 1) &&
				!strings.HasSuffix(prev.Text, " ") && !strings.HasPrefix(s.Text, " ") {
				b.WriteString(" ")
			}
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// Text renders blocks as plain text: lines joined by newlines, blocks
// separated by blank lines.
func Text(blocks []Block) string {
	var parts []string
	for _, b := range blocks {
		var lines []string
		for _, l := range b.Lines {
			lines = append(lines, l.Text())
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

// clusterLines groups spans whose vertical extents overlap by at least
// lineOverlapRatio of the smaller height.
func clusterLines(spans []contentstream.TextSpan) []Line {
	sorted := make([]contentstream.TextSpan, len(spans))
	copy(sorted, spans)
	// Top of page first; PDF y grows upward.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Rect.Y1 > sorted[j].Rect.Y1
	})

	var lines []Line
	for _, s := range sorted {
		placed := false
		for i := range lines {
			if verticalOverlapEnough(lines[i].Rect, s.Rect) {
				lines[i].Spans = append(lines[i].Spans, s)
				lines[i].Rect = lines[i].Rect.Union(s.Rect)
				placed = true
				break
			}
		}
		if !placed {
			lines = append(lines, Line{Spans: []contentstream.TextSpan{s}, Rect: s.Rect})
		}
	}
	for i := range lines {
		sort.SliceStable(lines[i].Spans, func(a, b int) bool {
			return lines[i].Spans[a].Rect.X0 < lines[i].Spans[b].Rect.X0
		})
	}
	return splitWideGaps(lines)
}

// splitWideGaps cuts each visual row into column segments wherever the
// horizontal gap between neighbors exceeds lineSplitGapFactor line heights.
// Without this, side-by-side columns would fuse into one line.
func splitWideGaps(lines []Line) []Line {
	var out []Line
	for _, l := range lines {
		maxGap := lineSplitGapFactor * maxf(l.Rect.Height(), 1)
		cur := Line{Spans: []contentstream.TextSpan{l.Spans[0]}, Rect: l.Spans[0].Rect}
		for _, s := range l.Spans[1:] {
			if s.Rect.X0-cur.Rect.X1 > maxGap {
				out = append(out, cur)
				cur = Line{Spans: []contentstream.TextSpan{s}, Rect: s.Rect}
				continue
			}
			cur.Spans = append(cur.Spans, s)
			cur.Rect = cur.Rect.Union(s.Rect)
		}
		out = append(out, cur)
	}
	return out
}

func verticalOverlapEnough(a, b coords.Rect) bool {
	overlap := a.OverlapY(b)
	smaller := minf(a.Height(), b.Height())
	if smaller <= 0 {
		return false
	}
	return overlap >= lineOverlapRatio*smaller
}

// clusterBlocks stacks vertically adjacent, horizontally aligned lines.
func clusterBlocks(lines []Line) []Block {
	if len(lines) == 0 {
		return nil
	}
	med := medianLineHeight(lines)
	maxGap := blockGapFactor * med

	// Lines arrive roughly top-down from clusterLines.
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Rect.Y1 > lines[j].Rect.Y1
	})

	var blocks []Block
	for _, l := range lines {
		placed := false
		for i := range blocks {
			last := blocks[i].Lines[len(blocks[i].Lines)-1]
			gap := last.Rect.Y0 - l.Rect.Y1
			if gap > maxGap || gap < -med {
				continue
			}
			if !horizontalOverlapEnough(blocks[i].Rect, l.Rect) {
				continue
			}
			blocks[i].Lines = append(blocks[i].Lines, l)
			blocks[i].Rect = blocks[i].Rect.Union(l.Rect)
			placed = true
			break
		}
		if !placed {
			blocks = append(blocks, Block{Lines: []Line{l}, Rect: l.Rect})
		}
	}
	return blocks
}

func horizontalOverlapEnough(a, b coords.Rect) bool {
	overlap := a.OverlapX(b)
	narrower := minf(a.Width(), b.Width())
	if narrower <= 0 {
		return false
	}
	return overlap >= blockXOverlapRatio*narrower
}

// orderBlocks sorts blocks top to bottom, breaking near-ties (tops within
// one line height) left to right. That puts a left column before a right
// column while keeping a banner above both.
func orderBlocks(blocks []Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		bi, bj := blocks[i], blocks[j]
		band := sameBandFactor * minf(firstLineHeight(bi), firstLineHeight(bj))
		if diff := bi.Rect.Y1 - bj.Rect.Y1; diff > band {
			return true
		} else if diff < -band {
			return false
		}
		return bi.Rect.X0 < bj.Rect.X0
	})
}

func firstLineHeight(b Block) float64 {
	if len(b.Lines) == 0 {
		return 1
	}
	return maxf(b.Lines[0].Rect.Height(), 1)
}

func medianLineHeight(lines []Line) float64 {
	hs := make([]float64, 0, len(lines))
	for _, l := range lines {
		if h := l.Rect.Height(); h > 0 {
			hs = append(hs, h)
		}
	}
	if len(hs) == 0 {
		return 1
	}
	sort.Float64s(hs)
	return hs[len(hs)/2]
}

// roundHalf rounds to the nearest half point, the granularity used when
// comparing font sizes.
func roundHalf(v float64) float64 {
	return float64(int(v*2+0.5)) / 2
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
