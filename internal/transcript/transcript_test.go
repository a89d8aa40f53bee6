package transcript

import (
	"reflect"
	"sync"
	"testing"
)

func TestGlossary_Correct(t *testing.T) {
	t.Parallel()
	g := NewGlossary([]string{"Grafana", "Kafka Connect", "Kubernetes"})

	tests := []struct {
		name      string
		in        string
		want      string
		corrected []string
	}{
		{"single word", "open grafanna now", "open Grafana now", []string{"grafanna->Grafana"}},
		{"keeps punctuation", "is it in grafanna?", "is it in Grafana?", []string{"grafanna->Grafana"}},
		{"multi-word term", "restart cafka connect please", "restart Kafka Connect please", []string{"cafka connect->Kafka Connect"}},
		{"case fix", "deploy to kubernetes.", "deploy to Kubernetes.", []string{"kubernetes->Kubernetes"}},
		{"nothing to fix", "good morning everyone", "good morning everyone", nil},
		{"short words ignored", "go to it", "go to it", nil},
		{"empty", "", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, corrections := g.Correct(tt.in)
			if got != tt.want {
				t.Errorf("Correct(%q) = %q, want %q", tt.in, got, tt.want)
			}
			var gotStr []string
			for _, c := range corrections {
				gotStr = append(gotStr, c.String())
			}
			if !reflect.DeepEqual(gotStr, tt.corrected) {
				t.Errorf("corrections = %v, want %v", gotStr, tt.corrected)
			}
		})
	}
}

func TestGlossary_ExactTermIsNotACorrection(t *testing.T) {
	t.Parallel()
	g := NewGlossary([]string{"Grafana"})
	got, corrections := g.Correct("Grafana works")
	if got != "Grafana works" || corrections != nil {
		t.Errorf("got %q %v", got, corrections)
	}
}

func TestGlossary_EmptyGlossary(t *testing.T) {
	t.Parallel()
	g := NewGlossary(nil)
	if got, c := g.Correct("grafanna"); got != "grafanna" || c != nil {
		t.Errorf("got %q %v", got, c)
	}
	if g.Len() != 0 || len(g.Keywords()) != 0 {
		t.Error("empty glossary reports terms")
	}
}

func TestGlossary_Keywords(t *testing.T) {
	t.Parallel()
	g := NewGlossary([]string{"Grafana", " "}, WithBoost(5))
	kw := g.Keywords()
	if len(kw) != 1 || kw[0].Keyword != "Grafana" || kw[0].Boost != 5 {
		t.Errorf("Keywords() = %+v", kw)
	}
}

func TestGlossary_SetTermsConcurrent(t *testing.T) {
	t.Parallel()
	g := NewGlossary([]string{"Grafana"})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 200 {
			g.SetTerms([]string{"Grafana", "Kubernetes"})
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			g.Correct("open grafanna")
		}
	}()
	wg.Wait()
	if g.Len() != 2 {
		t.Errorf("Len() = %d, want 2", g.Len())
	}
}

func TestSplitPunct(t *testing.T) {
	t.Parallel()
	lead, core, trail := splitPunct([]string{`"cafka`, `connect,"`})
	if lead != `"` || core != "cafka connect" || trail != `,"` {
		t.Errorf("splitPunct = %q %q %q", lead, core, trail)
	}
}
