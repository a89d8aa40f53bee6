package pipeline

import (
	"slices"
	"sync"
)

// stageSet tracks the named goroutines of one pipeline run so shutdown can
// report which of them did not return.
type stageSet struct {
	mu      sync.Mutex
	running map[string]int
	n       int
	idle    chan struct{}
}

// newStageSet returns a set holding one startup reference, released by
// ready once every stage has been launched.
func newStageSet() *stageSet {
	return &stageSet{running: make(map[string]int), n: 1, idle: make(chan struct{})}
}

// goStage runs fn on a new goroutine under name.
func (s *stageSet) goStage(name string, fn func()) {
	s.mu.Lock()
	s.running[name]++
	s.n++
	s.mu.Unlock()
	go func() {
		defer s.exit(name)
		fn()
	}()
}

// ready releases the startup reference.
func (s *stageSet) ready() { s.exit("") }

func (s *stageSet) exit(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		s.running[name]--
		if s.running[name] <= 0 {
			delete(s.running, name)
		}
	}
	s.n--
	if s.n == 0 {
		close(s.idle)
	}
}

// names returns the stages still running, sorted.
func (s *stageSet) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.running))
	for name := range s.running {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// done is closed once every stage has returned.
func (s *stageSet) done() <-chan struct{} { return s.idle }
