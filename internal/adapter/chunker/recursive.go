package chunker

import (
	"fmt"

	"txtvec/internal/domain"
)

// Separator presets, most preferred first. The trailing "" lets a fragment
// end at any character.
var presets = map[string][]string{
	"ja":      {"\n\n", "\n", "。", ".", " ", ""},
	"en":      {"\n\n", "\n", ". ", " ", ""},
	"generic": {"\n\n", "\n", " ", ""},
}

// SeparatorsFor returns the separator preset for a language.
func SeparatorsFor(language string) ([]string, error) {
	if language == "" {
		language = "generic"
	}
	seps, ok := presets[language]
	if !ok {
		return nil, &domain.ConfigError{Field: "split.language", Reason: fmt.Sprintf("no separator preset for %q", language)}
	}
	out := make([]string, len(seps))
	copy(out, seps)
	return out, nil
}

// span is a fragment's position in the source text, in runes.
type span struct {
	Start int
	End   int
}

// RecursiveChunker splits text into fragments of at most chunkSize
// characters, preferring to end each fragment after the highest-priority
// separator that fits.
//
// Lengths are counted in runes. Fragments are verbatim slices of the input:
// no whitespace is trimmed, and separators stay at the end of the fragment
// they close. Fragment i+1 begins with the last min(chunkOverlap, len(i))
// characters of fragment i, so dropping that prefix from every fragment but
// the first and concatenating reproduces the input exactly.
type RecursiveChunker struct {
	chunkSize  int
	overlap    int
	separators [][]rune
}

// NewRecursiveChunker validates the configuration and builds a chunker.
// An empty separator list selects the generic preset.
func NewRecursiveChunker(chunkSize, chunkOverlap int, separators []string) (*RecursiveChunker, error) {
	if chunkSize <= 0 {
		return nil, &domain.ConfigError{Field: "split.chunk_size", Reason: fmt.Sprintf("must be positive, got %d", chunkSize)}
	}
	if chunkOverlap < 0 {
		return nil, &domain.ConfigError{Field: "split.chunk_overlap", Reason: fmt.Sprintf("must not be negative, got %d", chunkOverlap)}
	}
	if chunkOverlap >= chunkSize {
		return nil, &domain.ConfigError{Field: "split.chunk_overlap", Reason: fmt.Sprintf("%d must be smaller than chunk_size %d", chunkOverlap, chunkSize)}
	}
	if len(separators) == 0 {
		separators = presets["generic"]
	}

	seps := make([][]rune, len(separators))
	for i, s := range separators {
		seps[i] = []rune(s)
	}

	return &RecursiveChunker{
		chunkSize:  chunkSize,
		overlap:    chunkOverlap,
		separators: seps,
	}, nil
}

// Split returns the fragments of text in order. Empty text yields nil.
func (c *RecursiveChunker) Split(text string) []string {
	runes := []rune(text)
	spans := c.spans(runes)
	if len(spans) == 0 {
		return nil
	}

	fragments := make([]string, len(spans))
	for i, s := range spans {
		fragments[i] = string(runes[s.Start:s.End])
	}
	return fragments
}

func (c *RecursiveChunker) spans(runes []rune) []span {
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.chunkSize {
		return []span{{Start: 0, End: n}}
	}

	var spans []span
	start, prevEnd := 0, 0
	for {
		limit := start + c.chunkSize
		if limit >= n {
			return append(spans, span{Start: start, End: n})
		}

		end := c.breakPoint(runes, start, prevEnd, limit)
		spans = append(spans, span{Start: start, End: end})

		next := end - c.overlap
		if next < start {
			next = start
		}
		start, prevEnd = next, end
	}
}

// breakPoint picks where the fragment starting at start ends. It walks the
// separators from most to least preferred and takes the furthest position
// in (prevEnd, limit] that directly follows an occurrence lying inside the
// fragment. Requiring end > prevEnd guarantees progress past the overlap
// seed. When no separator fits, the fragment is cut hard at limit.
func (c *RecursiveChunker) breakPoint(runes []rune, start, prevEnd, limit int) int {
	for _, sep := range c.separators {
		if len(sep) == 0 {
			return limit
		}
		for p := limit; p > prevEnd; p-- {
			at := p - len(sep)
			if at < start {
				break
			}
			if hasSeparatorAt(runes, at, sep) {
				return p
			}
		}
	}
	return limit
}

func hasSeparatorAt(runes []rune, at int, sep []rune) bool {
	for i, r := range sep {
		if runes[at+i] != r {
			return false
		}
	}
	return true
}
