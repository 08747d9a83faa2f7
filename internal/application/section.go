package application

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SectionState is what a page section renders: a loading indicator, the
// last successful value, or an error message.
type SectionState[T any] struct {
	Loading bool
	Loaded  bool
	Value   T
	Err     string
}

// Idle reports whether the section has never been triggered.
func (s SectionState[T]) Idle() bool {
	return !s.Loading && !s.Loaded && s.Err == ""
}

// Section holds the state of one independently fetched piece of the page.
// Each Run supersedes earlier ones; a result that arrives after a newer
// trigger is dropped.
type Section[T any] struct {
	mu    sync.Mutex
	gen   uint64
	state SectionState[T]
	err   error
}

func (s *Section[T]) Run(ctx context.Context, fetch func(context.Context) (T, error)) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state.Loading = true
	s.mu.Unlock()

	value, err := fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return err
	}
	s.commit(value, err)
	return err
}

// Fail records an error without calling out, used for rejected input.
func (s *Section[T]) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	var zero T
	s.commit(zero, err)
}

func (s *Section[T]) commit(value T, err error) {
	s.state.Loading = false
	if err != nil {
		var zero T
		s.state.Value = zero
		s.state.Loaded = false
		s.state.Err = Describe(err)
		s.err = err
		return
	}
	s.state.Value = value
	s.state.Loaded = true
	s.state.Err = ""
	s.err = nil
}

func (s *Section[T]) Snapshot() SectionState[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Section[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Disclosure is a collapsible section whose data is fetched lazily. While
// open it loads at most once; closing it allows one more load on reopen.
type Disclosure[T any] struct {
	Section[T]
	load   func(context.Context) (T, error)
	dmu    sync.Mutex
	open   bool
	loaded bool
}

func NewDisclosure[T any](load func(context.Context) (T, error)) *Disclosure[T] {
	return &Disclosure[T]{load: load}
}

func (d *Disclosure[T]) Open() {
	d.dmu.Lock()
	defer d.dmu.Unlock()
	d.open = true
}

func (d *Disclosure[T]) Close() {
	d.dmu.Lock()
	defer d.dmu.Unlock()
	d.open = false
	d.loaded = false
}

func (d *Disclosure[T]) Toggle() bool {
	d.dmu.Lock()
	defer d.dmu.Unlock()
	d.open = !d.open
	if !d.open {
		d.loaded = false
	}
	return d.open
}

func (d *Disclosure[T]) IsOpen() bool {
	d.dmu.Lock()
	defer d.dmu.Unlock()
	return d.open
}

// Ensure loads the data if the disclosure is open and has not loaded in
// its current opened state. Failures count as the load.
func (d *Disclosure[T]) Ensure(ctx context.Context) error {
	d.dmu.Lock()
	if !d.open || d.loaded || d.load == nil {
		d.dmu.Unlock()
		return nil
	}
	d.loaded = true
	d.dmu.Unlock()
	return d.Run(ctx, d.load)
}

// maxSectionLoads bounds the loads one page runs at a time.
const maxSectionLoads = 4

// sectionLoads runs the loads of one page concurrently. Each load records
// its failure in its own Section and reports nothing to the group, so a
// failing section never cancels or hides its siblings.
type sectionLoads struct {
	g errgroup.Group
}

func newSectionLoads() *sectionLoads {
	l := &sectionLoads{}
	l.g.SetLimit(maxSectionLoads)
	return l
}

func (l *sectionLoads) Go(load func()) {
	l.g.Go(func() error {
		load()
		return nil
	})
}

func (l *sectionLoads) Wait() {
	_ = l.g.Wait()
}
