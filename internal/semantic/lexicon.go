package semantic

import "strings"

// verbSet is the verb lexicon of one language.
type verbSet struct {
	words map[string]bool

	// suffixes mark inflected verb forms; a token matches when it is at
	// least minStem runes longer than the suffix.
	suffixes []string
	minStem  int

	// substring matching is used for scripts written without spaces.
	substring bool
}

func (v *verbSet) clone() *verbSet {
	c := &verbSet{
		words:     make(map[string]bool, len(v.words)),
		suffixes:  v.suffixes,
		minStem:   v.minStem,
		substring: v.substring,
	}
	for w := range v.words {
		c.words[w] = true
	}
	return c
}

func (v *verbSet) matchSuffix(tok string) bool {
	n := len([]rune(tok))
	for _, s := range v.suffixes {
		if strings.HasSuffix(tok, s) && n-len([]rune(s)) >= v.minStem {
			return true
		}
	}
	return false
}

func set(words string) map[string]bool {
	m := map[string]bool{}
	for _, w := range strings.Fields(words) {
		m[w] = true
	}
	return m
}

// builtin holds the lexicons shipped with the gate. Lists cover auxiliaries,
// copulas and the most frequent lexical verbs; suffix rules catch regular
// inflections.
var builtin = map[string]*verbSet{
	"en": {
		words: set(`is are was were be been am do does did have has had will would
			can could shall should may might must go goes went come comes came get gets got
			make makes made know knows knew think thinks thought see sees saw want wants
			need needs take takes took give gives gave say says said tell told let lets
			i'm you're we're they're it's that's he's she's don't doesn't didn't isn't aren't
			won't can't i'll we'll i've we've`),
		suffixes: []string{"ed", "ing"},
		minStem:  3,
	},
	"de": {
		words: set(`ist sind war waren bin bist seid sein hat habe haben hast hatte hatten
			wird werden wurde wurden kann können konnte muss müssen musste soll sollen
			will wollen wollte darf dürfen mag möchte gibt gab geht ging kommt kam macht
			machte weiß wusste sagt sagte sieht sah gehe komme mache sage denke glaube
			denkt glaubt brauche braucht`),
		suffixes: []string{"te", "ten", "test", "tet"},
		minStem:  4,
	},
	"fr": {
		words: set(`est sont suis es sommes êtes était étaient ai as a avons avez ont
			avait fait font vais va vont allons peut peux pouvons veux veut voulons
			dois doit devons sais sait dit dis voit vois vient viens faut c'est j'ai`),
		suffixes: []string{"ez", "ons", "ait", "aient", "é", "ée", "és", "ées"},
		minStem:  3,
	},
	"es": {
		words: set(`es son soy eres somos está están estoy estás estamos era eran fue
			fueron he ha han has hemos había tiene tengo tienen tenemos hace hago hacen
			voy va van vamos puede puedo pueden quiero quiere quieren sé sabe dice digo
			hay debe debo`),
		suffixes: []string{"ando", "iendo", "ado", "ido", "aba", "ían", "ó", "é"},
		minStem:  3,
	},
	"it": {
		words: set(`è sono sei siamo siete era erano ho hai ha abbiamo avete hanno fa
			faccio vado va vanno può posso vuole voglio deve devo so sa dice c'è`),
		suffixes: []string{"ato", "ito", "uto", "ando", "endo", "ava", "ò"},
		minStem:  3,
	},
	"pt": {
		words: set(`é são sou somos está estão estou era eram foi foram tem tenho têm
			temos faz faço vou vai vão pode posso quer quero deve devo sei sabe diz há`),
		suffixes: []string{"ando", "endo", "indo", "ado", "ido", "ou", "ava"},
		minStem:  3,
	},
	"nl": {
		words: set(`is zijn ben bent was waren heb hebt heeft hebben had hadden wordt
			worden werd kan kunnen moet moeten wil willen zal zullen gaat gaan ga komt
			komen kom doet doen weet zegt zie ziet`),
		suffixes: []string{"de", "den", "te", "ten"},
		minStem:  4,
	},
	"zh": {
		words: set(`是 有 在 去 来 要 会 能 说 想 做 看 吃 喝 知道 喜欢 觉得 需要 可以 应该
			认为 希望 开始 完成 给 用 走 买 找 叫`),
		substring: true,
	},
}
