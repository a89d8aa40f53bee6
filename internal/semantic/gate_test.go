package semantic

import (
	"sync"
	"testing"

	"github.com/MrWong99/voxbridge/pkg/types"
)

func TestClassOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		tag  string
		want Class
	}{
		{"ja", ClassVerbFinal},
		{"ja-JP", ClassVerbFinal},
		{"ko-KR", ClassVerbFinal},
		{"tr", ClassVerbFinal},
		{"hi-IN", ClassVerbFinal},
		{"en-US", ClassOther},
		{"de", ClassOther},
		{"zh-Hans-CN", ClassOther},
		{"", ClassOther},
		{"not a tag", ClassOther},
	}
	for _, tt := range tests {
		if got := ClassOf(tt.tag); got != tt.want {
			t.Errorf("ClassOf(%q) = %v, want %v", tt.tag, got, tt.want)
		}
	}
}

func TestBaseLanguage(t *testing.T) {
	t.Parallel()
	for tag, want := range map[string]string{"de-AT": "de", "EN-gb": "en", "zh-Hant-TW": "zh", "": "", "!!": ""} {
		if got := BaseLanguage(tag); got != want {
			t.Errorf("BaseLanguage(%q) = %q, want %q", tag, got, want)
		}
	}
}

func TestGate_Check(t *testing.T) {
	t.Parallel()
	g := New(nil)
	tests := []struct {
		name   string
		kind   types.EventKind
		text   string
		lang   string
		want   bool
		reason Reason
	}{
		{"final bypasses", types.KindFinal, "and then the", "en", true, ReasonFinal},
		{"final bypasses verb-final", types.KindFinal, "私は学校に", "ja", true, ReasonFinal},
		{"empty draft", types.KindDraft, "   ", "en", false, ReasonEmpty},
		{"terminal period", types.KindDraft, "the red car.", "en", true, ReasonPunctuation},
		{"terminal behind quote", types.KindDraft, `he said "stop!"`, "en", true, ReasonPunctuation},
		{"english verb", types.KindDraft, "the meeting is", "en", true, ReasonVerb},
		{"english contraction", types.KindDraft, "I don't", "en-US", true, ReasonVerb},
		{"english suffix", types.KindDraft, "we finished the", "en", true, ReasonVerb},
		{"english fragment", types.KindDraft, "the big red", "en", false, ReasonIncomplete},
		{"german verb", types.KindDraft, "Morgen gehe ich", "de-DE", true, ReasonVerb},
		{"german fragment", types.KindDraft, "der große Hund", "de", false, ReasonIncomplete},
		{"french verb", types.KindDraft, "nous avons", "fr", true, ReasonVerb},
		{"spanish gerund", types.KindDraft, "estoy trabajando", "es", true, ReasonVerb},
		{"chinese verb", types.KindDraft, "我喜欢这个", "zh-CN", true, ReasonVerb},
		{"chinese fragment", types.KindDraft, "这个红色的", "zh", false, ReasonIncomplete},
		{"chinese full stop", types.KindDraft, "这个红色的。", "zh", true, ReasonPunctuation},
		{"japanese no punctuation", types.KindDraft, "私は学校に行きます", "ja", false, ReasonIncomplete},
		{"japanese full stop", types.KindDraft, "私は学校に行きます。", "ja", true, ReasonPunctuation},
		{"korean verb without punctuation", types.KindDraft, "저는 학교에 갑니다", "ko", false, ReasonIncomplete},
		{"unknown ascii language uses english", types.KindDraft, "the meeting is", "sw", true, ReasonVerb},
		{"unknown non-ascii language", types.KindDraft, "Ηλιος είναι", "el", false, ReasonIncomplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, reason := g.Check(tt.kind, tt.text, tt.lang)
			if got != tt.want || reason != tt.reason {
				t.Errorf("Check(%q, %q) = %v/%s, want %v/%s", tt.text, tt.lang, got, reason, tt.want, tt.reason)
			}
		})
	}
}

func TestGate_ExtraVerbs(t *testing.T) {
	t.Parallel()
	g := New(map[string][]string{"en": {"deploy"}, "sw-KE": {"ninakwenda"}})

	if ok, _ := g.Check(types.KindDraft, "we deploy", "en"); !ok {
		t.Error("configured english verb not detected")
	}
	if ok, _ := g.Check(types.KindDraft, "kesho ninakwenda", "sw"); !ok {
		t.Error("configured verb for a new language not detected")
	}

	g.SetVerbs(nil)
	if ok, _ := g.Check(types.KindDraft, "we deploy", "en"); ok {
		t.Error("verb still detected after SetVerbs(nil)")
	}
	if ok, _ := g.Check(types.KindDraft, "the meeting is", "en"); !ok {
		t.Error("builtin lexicon lost after SetVerbs(nil)")
	}
}

func TestGate_ExtraVerbsDoNotLeakIntoBuiltin(t *testing.T) {
	t.Parallel()
	_ = New(map[string][]string{"en": {"frobnicate"}})
	if builtin["en"].words["frobnicate"] {
		t.Fatal("extra verbs modified the shared builtin lexicon")
	}
}

func TestGate_ConcurrentSetVerbs(t *testing.T) {
	t.Parallel()
	g := New(nil)
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 100 {
				g.SetVerbs(map[string][]string{"en": {"zap"}})
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				g.Check(types.KindDraft, "we zap it", "en")
			}
		}()
	}
	wg.Wait()
}
