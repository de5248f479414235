package gpio

import (
	"fmt"
	"sync"
)

// Fake is an in-memory Opener for tests and the input-test simulation.
// Levels are logical; the activeLow flag passed to Open is recorded but not
// applied.
type Fake struct {
	mu      sync.Mutex
	levels  map[int]bool
	errs    map[int]error
	refused map[int]bool
	open    map[int]bool
	reads   map[int]int
}

// NewFake returns a Fake with every line released.
func NewFake() *Fake {
	return &Fake{
		levels:  make(map[int]bool),
		errs:    make(map[int]error),
		refused: make(map[int]bool),
		open:    make(map[int]bool),
		reads:   make(map[int]int),
	}
}

// Set sets the logical level of a line.
func (f *Fake) Set(id int, asserted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[id] = asserted
}

// FailReads makes reads of id return err until called again with nil.
func (f *Fake) FailReads(id int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, id)
		return
	}
	f.errs[id] = err
}

// Refuse makes Open fail for id.
func (f *Fake) Refuse(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refused[id] = true
}

// Reads returns how many times id has been read.
func (f *Fake) Reads(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[id]
}

// IsOpen reports whether id is currently claimed.
func (f *Fake) IsOpen(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[id]
}

func (f *Fake) Open(id int, activeLow bool) (Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refused[id] {
		return nil, unavailable("fake", id, fmt.Errorf("refused"))
	}
	if f.open[id] {
		return nil, unavailable("fake", id, fmt.Errorf("busy"))
	}
	f.open[id] = true
	return &fakeLine{fake: f, id: id}, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.open {
		delete(f.open, id)
	}
	return nil
}

type fakeLine struct {
	fake *Fake
	id   int
}

func (l *fakeLine) ID() int { return l.id }

func (l *fakeLine) Read() (bool, error) {
	f := l.fake
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[l.id]++
	if err := f.errs[l.id]; err != nil {
		return false, err
	}
	return f.levels[l.id], nil
}

func (l *fakeLine) Close() error {
	l.fake.mu.Lock()
	defer l.fake.mu.Unlock()
	delete(l.fake.open, l.id)
	return nil
}
