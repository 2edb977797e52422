package ratelimit

import (
	"sync"
	"time"
)

// stamps is a FIFO of call times. Old entries are dropped from the front
// by advancing head; the backing slice is compacted once the dead prefix
// is more than half of it.
type stamps struct {
	ts   []time.Time
	head int
}

func (s *stamps) prune(cutoff time.Time) {
	for s.head < len(s.ts) && !s.ts[s.head].After(cutoff) {
		s.head++
	}
	if s.head == len(s.ts) {
		s.ts = s.ts[:0]
		s.head = 0
		return
	}
	if s.head > len(s.ts)/2 {
		n := copy(s.ts, s.ts[s.head:])
		s.ts = s.ts[:n]
		s.head = 0
	}
}

func (s *stamps) count() int {
	return len(s.ts) - s.head
}

func (s *stamps) add(t time.Time) {
	s.ts = append(s.ts, t)
}

// window holds one workspace's call history.
type window struct {
	mu    sync.Mutex
	all   stamps
	tools map[string]*stamps
}

func newWindow() *window {
	return &window{tools: make(map[string]*stamps)}
}

// pruneLocked drops everything at or before cutoff. Callers hold w.mu.
func (w *window) pruneLocked(cutoff time.Time) {
	w.all.prune(cutoff)
	for name, s := range w.tools {
		s.prune(cutoff)
		if s.count() == 0 {
			delete(w.tools, name)
		}
	}
}

func (w *window) toolLocked(name string) *stamps {
	s := w.tools[name]
	if s == nil {
		s = &stamps{}
		w.tools[name] = s
	}
	return s
}
