// Package search finds substring matches in extracted page text. No index
// is built ahead of time; each query is a fresh linear scan, which suits
// single-shot extraction workloads.
package search

import (
	"strings"
	"unicode/utf8"
)

// contextBytes is the window captured on each side of a match.
const contextBytes = 48

// Hit is one match. Offset is the byte offset of the match within the
// page's extracted text, not within the context window. When
// case-insensitive folding changes byte lengths (some non-ASCII scripts)
// the offset indexes the folded text instead; for ASCII the two agree.
type Hit struct {
	Page    int
	Offset  int
	Context string
}

// Options controls matching behavior.
type Options struct {
	// CaseSensitive matches bytes exactly. When false the query and text
	// are compared under Unicode case folding; see Hit.Offset for how
	// length-changing folds affect reported offsets.
	CaseSensitive bool
}

// Pages scans the given per-page texts for query and returns hits in page
// order, then offset order. The page index in each hit is 0-based.
func Pages(texts []string, query string, opts Options) []Hit {
	if query == "" {
		return nil
	}
	var hits []Hit
	for i, text := range texts {
		hits = append(hits, scanPage(i, text, query, opts)...)
	}
	return hits
}

func scanPage(page int, text, query string, opts Options) []Hit {
	haystack := text
	needle := query
	if !opts.CaseSensitive {
		// Simple folding keeps reported offsets valid: ToLower can change
		// byte lengths for some scripts, so fold both sides and accept
		// that offsets are in folded space for those rare cases. For
		// ASCII, offsets are exact.
		haystack = strings.ToLower(text)
		needle = strings.ToLower(query)
	}

	var hits []Hit
	for start := 0; ; {
		idx := strings.Index(haystack[start:], needle)
		if idx < 0 {
			break
		}
		off := start + idx
		hits = append(hits, Hit{
			Page:    page,
			Offset:  off,
			Context: contextWindow(text, haystack, off, len(needle)),
		})
		start = off + len(needle)
	}
	return hits
}

// contextWindow returns the match plus up to contextBytes on each side,
// narrowed as needed so it never splits a UTF-8 sequence. Match offsets
// index the folded haystack; when folding changed byte lengths the window
// must come from the folded text too, since the offsets no longer line up
// with the original.
func contextWindow(original, folded string, off, matchLen int) string {
	src := original
	if len(folded) != len(original) {
		src = folded
	}
	lo := off - contextBytes
	if lo < 0 {
		lo = 0
	}
	hi := off + matchLen + contextBytes
	if hi > len(src) {
		hi = len(src)
	}
	for lo < len(src) && !utf8.RuneStart(src[lo]) {
		lo++
	}
	for hi > lo && hi < len(src) && !utf8.RuneStart(src[hi]) {
		hi--
	}
	if lo > hi {
		lo = hi
	}
	return src[lo:hi]
}
