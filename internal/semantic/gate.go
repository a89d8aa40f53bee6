// Package semantic implements the gate that decides whether the text of a
// DRAFT is complete enough to be worth translating.
//
// Translating a half sentence produces a misleading translation that the
// FINAL later contradicts, so drafts are only translated when they look like
// a finished thought. Languages are split into two classes by their base
// language: verb-final (SOV) languages, where a clause is not complete until
// its closing verb, require terminal punctuation; all other languages accept
// terminal punctuation or a detected verb. FINAL text always passes.
package semantic

import (
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/language"

	"github.com/MrWong99/voxbridge/pkg/types"
)

// Class is the word-order class of a language.
type Class int

const (
	// ClassOther covers SVO, VSO and V2 languages.
	ClassOther Class = iota

	// ClassVerbFinal covers SOV languages.
	ClassVerbFinal
)

// String implements fmt.Stringer.
func (c Class) String() string {
	if c == ClassVerbFinal {
		return "verb-final"
	}
	return "other"
}

// Reason explains a gate decision. It is used as a log and metric label.
type Reason string

const (
	ReasonFinal       Reason = "final"
	ReasonPunctuation Reason = "terminal_punctuation"
	ReasonVerb        Reason = "verb"
	ReasonIncomplete  Reason = "incomplete"
	ReasonEmpty       Reason = "empty"
)

// verbFinal lists base languages whose canonical clause order is SOV.
var verbFinal = map[string]bool{
	"ja": true, "ko": true, "tr": true, "hi": true, "ur": true, "bn": true,
	"fa": true, "ta": true, "te": true, "kn": true, "ml": true, "mr": true,
	"ne": true, "si": true, "my": true, "mn": true, "am": true, "az": true,
	"kk": true, "uz": true, "ky": true, "eu": true, "la": true, "pa": true,
	"gu": true, "ps": true,
}

// terminal holds runes that end a sentence across scripts.
const terminal = ".!?…。！？؟।॥።"

// ClassOf returns the class of a BCP-47 tag. Unparseable or empty tags are
// ClassOther.
func ClassOf(tag string) Class {
	base := BaseLanguage(tag)
	if verbFinal[base] {
		return ClassVerbFinal
	}
	return ClassOther
}

// BaseLanguage returns the ISO 639 base of a BCP-47 tag ("de-AT" -> "de"),
// or "" when the tag cannot be parsed.
func BaseLanguage(tag string) string {
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	b, _ := t.Base()
	return b.String()
}

// Gate decides translatability of recognized text. It is safe for
// concurrent use; SetVerbs may be called while Check runs.
type Gate struct {
	lexicon atomic.Pointer[map[string]*verbSet]
}

// New returns a Gate with the built-in lexicons extended by extra, a map
// from base language to additional verb forms.
func New(extra map[string][]string) *Gate {
	g := &Gate{}
	g.SetVerbs(extra)
	return g
}

// SetVerbs replaces the configured extra verb forms.
func (g *Gate) SetVerbs(extra map[string][]string) {
	lex := make(map[string]*verbSet, len(builtin))
	for lang, def := range builtin {
		lex[lang] = def.clone()
	}
	for lang, words := range extra {
		base := BaseLanguage(lang)
		if base == "" {
			base = strings.ToLower(lang)
		}
		vs, ok := lex[base]
		if !ok {
			vs = &verbSet{words: map[string]bool{}}
			lex[base] = vs
		}
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				vs.words[w] = true
			}
		}
	}
	g.lexicon.Store(&lex)
}

// Check reports whether text of the given kind in language lang should be
// translated, and why.
func (g *Gate) Check(kind types.EventKind, text, lang string) (bool, Reason) {
	if kind == types.KindFinal {
		return true, ReasonFinal
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return false, ReasonEmpty
	}
	if endsSentence(text) {
		return true, ReasonPunctuation
	}
	if ClassOf(lang) == ClassVerbFinal {
		return false, ReasonIncomplete
	}
	if g.hasVerb(text, BaseLanguage(lang)) {
		return true, ReasonVerb
	}
	return false, ReasonIncomplete
}

// endsSentence reports whether text ends with terminal punctuation, ignoring
// trailing closing quotes and brackets.
func endsSentence(text string) bool {
	trimmed := strings.TrimRightFunc(text, func(r rune) bool {
		return unicode.Is(unicode.Pe, r) || unicode.Is(unicode.Pf, r) || r == '"' || r == '\''
	})
	r, _ := utf8.DecodeLastRuneInString(trimmed)
	return r != utf8.RuneError && strings.ContainsRune(terminal, r)
}

// hasVerb looks for a verb form of base in text. Unknown languages fall back
// to the English lexicon only when the text is ASCII.
func (g *Gate) hasVerb(text, base string) bool {
	lex := *g.lexicon.Load()
	vs, ok := lex[base]
	if !ok {
		if !isASCII(text) {
			return false
		}
		vs = lex["en"]
	}
	if vs.substring {
		for w := range vs.words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	}
	for _, tok := range tokenize(text) {
		if vs.words[tok] || vs.matchSuffix(tok) {
			return true
		}
	}
	return false
}

// tokenize lowercases text and splits it into letter runs, keeping
// apostrophes inside words ("don't", "l'homme").
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
