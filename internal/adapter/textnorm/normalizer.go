// Package textnorm prepares raw document text for splitting.
package textnorm

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ScriptClass groups runes whose soft line wraps are typographic artifacts.
// A newline between two runes of the same class is replaced by Joiner.
type ScriptClass struct {
	Name    string
	Scripts []string // keys of unicode.Scripts
	Chars   string   // extra member runes outside those scripts
	Joiner  string
}

// Normalizer applies Unicode normalization and removes soft line wraps.
type Normalizer struct {
	form    *norm.Form
	classes []compiledClass
}

type compiledClass struct {
	tables []*unicode.RangeTable
	chars  string
	joiner string
}

// New builds a normalizer. form is "", "none", "NFC" or "NFKC".
func New(form string, classes []ScriptClass) (*Normalizer, error) {
	n := &Normalizer{}

	switch strings.ToUpper(form) {
	case "", "NONE":
	case "NFC":
		f := norm.NFC
		n.form = &f
	case "NFKC":
		f := norm.NFKC
		n.form = &f
	default:
		return nil, fmt.Errorf("unknown normalization form %q", form)
	}

	for _, c := range classes {
		cc := compiledClass{chars: c.Chars, joiner: c.Joiner}
		for _, name := range c.Scripts {
			table, ok := unicode.Scripts[name]
			if !ok {
				return nil, fmt.Errorf("script class %q: unknown script %q", c.Name, name)
			}
			cc.tables = append(cc.tables, table)
		}
		if len(cc.tables) == 0 && cc.chars == "" {
			return nil, fmt.Errorf("script class %q has no members", c.Name)
		}
		n.classes = append(n.classes, cc)
	}

	return n, nil
}

// Normalize returns text with the configured normalization form applied and
// single newlines inside same-class runs replaced by the class joiner.
// Runs of two or more newlines are left alone.
func (n *Normalizer) Normalize(text string) string {
	if n.form != nil {
		text = n.form.String(text)
	}
	if len(n.classes) == 0 || !strings.ContainsRune(text, '\n') {
		return text
	}

	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\n' && r != '\r' {
			b.WriteRune(r)
			continue
		}

		// Width of this line break: "\n", "\r\n" or a lone "\r".
		end := i + 1
		if r == '\r' && end < len(runes) && runes[end] == '\n' {
			end++
		}

		if joiner, ok := n.joinAt(runes, i, end); ok {
			b.WriteString(joiner)
		} else {
			for _, lr := range runes[i:end] {
				b.WriteRune(lr)
			}
		}
		i = end - 1
	}

	return b.String()
}

// joinAt reports whether the line break occupying runes[start:end] sits
// between two runes of the same class.
func (n *Normalizer) joinAt(runes []rune, start, end int) (string, bool) {
	if start == 0 || end >= len(runes) {
		return "", false
	}
	before, after := runes[start-1], runes[end]
	for _, c := range n.classes {
		if c.contains(before) && c.contains(after) {
			return c.joiner, true
		}
	}
	return "", false
}

func (c compiledClass) contains(r rune) bool {
	if strings.ContainsRune(c.chars, r) {
		return true
	}
	return unicode.In(r, c.tables...)
}

// JapaneseClasses joins wrapped lines inside runs of kanji and kana.
func JapaneseClasses() []ScriptClass {
	return []ScriptClass{{
		Name:    "cjk",
		Scripts: []string{"Han", "Hiragana", "Katakana"},
		Chars:   "ー",
		Joiner:  "",
	}}
}
