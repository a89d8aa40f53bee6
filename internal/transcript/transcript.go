// Package transcript fixes recognition errors in domain vocabulary before
// text reaches translation.
//
// Recognizers rarely spell product names, people and jargon correctly. The
// [Glossary] holds the canonical spelling of such terms and replaces words
// that sound like one of them, using the phonetic matcher. The same terms are
// offered to recognizers as keyword boosts.
package transcript

import (
	"fmt"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/voxbridge/internal/transcript/phonetic"
	"github.com/MrWong99/voxbridge/pkg/provider/stt"
)

// minLetters is the shortest window considered for correction. Short
// function words match too many terms phonetically.
const minLetters = 4

// Correction captures a single substitution.
type Correction struct {
	Original   string
	Corrected  string
	Confidence float64
}

// String renders the correction as "original->corrected".
func (c Correction) String() string {
	return fmt.Sprintf("%s->%s", c.Original, c.Corrected)
}

// GlossaryOption is a functional option for configuring a [Glossary].
type GlossaryOption func(*Glossary)

// WithMatcher replaces the default phonetic matcher.
func WithMatcher(m *phonetic.Matcher) GlossaryOption {
	return func(g *Glossary) { g.matcher = m }
}

// WithBoost sets the keyword boost reported by Keywords. Default: 2.
func WithBoost(b float64) GlossaryOption {
	return func(g *Glossary) { g.boost = b }
}

type glossaryState struct {
	terms    []phonetic.Term
	byWords  map[int][]phonetic.Term
	maxWords int
}

// Glossary corrects misrecognized terms. It is safe for concurrent use and
// SetTerms may be called while Correct runs.
type Glossary struct {
	matcher *phonetic.Matcher
	boost   float64
	state   atomic.Pointer[glossaryState]
}

// NewGlossary returns a Glossary for terms.
func NewGlossary(terms []string, opts ...GlossaryOption) *Glossary {
	g := &Glossary{boost: 2}
	for _, o := range opts {
		o(g)
	}
	if g.matcher == nil {
		g.matcher = phonetic.New()
	}
	g.SetTerms(terms)
	return g
}

// SetTerms replaces the glossary.
func (g *Glossary) SetTerms(terms []string) {
	st := &glossaryState{terms: phonetic.Prepare(terms), byWords: map[int][]phonetic.Term{}}
	for _, t := range st.terms {
		st.byWords[t.Words()] = append(st.byWords[t.Words()], t)
		st.maxWords = max(st.maxWords, t.Words())
	}
	g.state.Store(st)
}

// Len returns the number of terms.
func (g *Glossary) Len() int { return len(g.state.Load().terms) }

// Keywords returns the terms as recognizer keyword boosts.
func (g *Glossary) Keywords() []stt.KeywordBoost {
	st := g.state.Load()
	out := make([]stt.KeywordBoost, 0, len(st.terms))
	for _, t := range st.terms {
		out = append(out, stt.KeywordBoost{Keyword: t.Text, Boost: g.boost})
	}
	return out
}

// Correct replaces word windows that match a term and returns the corrected
// text with the substitutions made. At each position the longest matching
// window wins, so multi-word terms take precedence over single words. A
// window is only compared with terms of the same word count. Punctuation
// around a window is kept.
func (g *Glossary) Correct(text string) (string, []Correction) {
	st := g.state.Load()
	tokens := strings.Fields(text)
	if len(tokens) == 0 || st.maxWords == 0 {
		return text, nil
	}

	var (
		output      []string
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		matched := false
		for n := min(st.maxWords, len(tokens)-i); n >= 1; n-- {
			candidates := st.byWords[n]
			if len(candidates) == 0 {
				continue
			}
			lead, core, trail := splitPunct(tokens[i : i+n])
			if letters(core) < minLetters {
				continue
			}
			term, conf, ok := g.matcher.Match(core, candidates)
			if !ok {
				continue
			}
			output = append(output, lead+term+trail)
			if term != core {
				corrections = append(corrections, Correction{Original: core, Corrected: term, Confidence: conf})
			}
			i += n
			matched = true
			break
		}
		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}
	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(output, " "), corrections
}

// splitPunct joins a window and separates the punctuation before its first
// letter and after its last letter.
func splitPunct(window []string) (lead, core, trail string) {
	s := strings.Join(window, " ")
	isWord := func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
	start := strings.IndexFunc(s, isWord)
	if start < 0 {
		return s, "", ""
	}
	end := strings.LastIndexFunc(s, isWord)
	_, size := utf8.DecodeRuneInString(s[end:])
	end += size
	return s[:start], s[start:end], s[end:]
}

func letters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
