package document

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wudi/zpdf/ir/raw"
	"github.com/wudi/zpdf/parser"
)

// pageLabels holds the PageLabels number tree flattened into sorted ranges.
type pageLabels struct {
	ranges []labelRange
}

type labelRange struct {
	startPage int // zero-based first page of the range
	style     string
	prefix    string
	first     int // value of St, default 1
}

// loadPageLabels flattens the number tree rooted at obj. Nested Kids nodes
// are walked; malformed branches are skipped.
func loadPageLabels(ctx context.Context, p *parser.Parser, obj raw.Object) *pageLabels {
	pl := &pageLabels{}
	pl.collect(ctx, p, obj, 0)
	if len(pl.ranges) == 0 {
		return nil
	}
	sort.SliceStable(pl.ranges, func(i, j int) bool {
		return pl.ranges[i].startPage < pl.ranges[j].startPage
	})
	return pl
}

const maxNumberTreeDepth = 32

func (pl *pageLabels) collect(ctx context.Context, p *parser.Parser, obj raw.Object, depth int) {
	if depth > maxNumberTreeDepth {
		return
	}
	dict, ok := p.ResolveDict(ctx, obj)
	if !ok {
		return
	}
	if kids, ok := dict.Get("Kids"); ok {
		if ka, ok := p.ResolveArray(ctx, kids); ok {
			for _, kid := range ka.Items {
				pl.collect(ctx, p, kid, depth+1)
			}
		}
	}
	nums, ok := dict.Get("Nums")
	if !ok {
		return
	}
	na, ok := p.ResolveArray(ctx, nums)
	if !ok {
		return
	}
	for i := 0; i+1 < len(na.Items); i += 2 {
		keyObj, err := p.Resolve(ctx, na.Items[i])
		if err != nil {
			continue
		}
		key, ok := keyObj.(raw.Number)
		if !ok || !key.IsInteger() {
			continue
		}
		val, ok := p.ResolveDict(ctx, na.Items[i+1])
		if !ok {
			continue
		}
		r := labelRange{startPage: int(key.Int()), first: 1}
		if s, ok := raw.DictName(val, "S"); ok {
			r.style = s
		}
		if pre, ok := raw.DictString(val, "P"); ok {
			r.prefix = DecodeTextString(pre)
		}
		if st, ok := raw.DictInt(val, "St"); ok && st >= 1 {
			r.first = int(st)
		}
		pl.ranges = append(pl.ranges, r)
	}
}

// format renders the label for a zero-based page index.
func (pl *pageLabels) format(index int) (string, bool) {
	pos := -1
	for i, r := range pl.ranges {
		if r.startPage <= index {
			pos = i
		} else {
			break
		}
	}
	if pos < 0 {
		return "", false
	}
	r := pl.ranges[pos]
	n := r.first + (index - r.startPage)
	var num string
	switch r.style {
	case "D":
		num = fmt.Sprintf("%d", n)
	case "R":
		num = toRoman(n)
	case "r":
		num = strings.ToLower(toRoman(n))
	case "A":
		num = toAlpha(n)
	case "a":
		num = strings.ToLower(toAlpha(n))
	case "":
		// Prefix-only ranges label every page identically.
	default:
		num = fmt.Sprintf("%d", n)
	}
	return r.prefix + num, true
}

var romanValues = []struct {
	v int
	s string
}{
	{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"},
	{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
	{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

func toRoman(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	for _, rv := range romanValues {
		for n >= rv.v {
			b.WriteString(rv.s)
			n -= rv.v
		}
	}
	return b.String()
}

// toAlpha counts A..Z, AA..ZZ, AAA... as the style requires: 27 is AA.
func toAlpha(n int) string {
	if n <= 0 {
		return ""
	}
	letter := byte('A' + (n-1)%26)
	count := (n-1)/26 + 1
	return strings.Repeat(string(letter), count)
}
