package comments

import (
	"context"
	"sync"

	"github.com/petr-muller/civicfeed/internal/civic/model"
)

// Sequence hands out monotonically increasing tickets so that only the most
// recently issued request gets to apply its result
type Sequence struct {
	mu      sync.Mutex
	current uint64
}

// Begin issues a new ticket, invalidating every earlier one
func (s *Sequence) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current++
	return s.current
}

// Current reports whether ticket is still the latest one issued
func (s *Sequence) Current(ticket uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == ticket
}

// Fetcher retrieves the comments of an issue
type Fetcher interface {
	ListComments(ctx context.Context, id string) ([]model.Comment, error)
}

// State is what a comment list shows
type State struct {
	Loading  bool
	Err      error
	Comments []model.Comment
	// Loaded is false until a fetch succeeded at least once
	Loaded bool
}

// Loader loads the comments of one issue. Results of superseded fetches are
// discarded regardless of the order in which they complete.
type Loader struct {
	issueID string
	fetcher Fetcher
	seq     Sequence

	mu    sync.Mutex
	state State
}

// NewLoader creates a loader for the comments of issueID
func NewLoader(issueID string, fetcher Fetcher) *Loader {
	return &Loader{issueID: issueID, fetcher: fetcher}
}

// IssueID returns the issue the loader belongs to
func (l *Loader) IssueID() string {
	return l.issueID
}

// Load fetches the comments and applies the result if no newer Load was
// started meanwhile. It reports whether the result was applied.
func (l *Loader) Load(ctx context.Context) (State, bool) {
	ticket := l.seq.Begin()
	l.mu.Lock()
	l.state.Loading = true
	l.state.Err = nil
	l.mu.Unlock()

	comments, err := l.fetcher.ListComments(ctx, l.issueID)

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.seq.Current(ticket) {
		return l.state, false
	}
	l.state.Loading = false
	if err != nil {
		l.state.Err = err
		return l.state, true
	}
	l.state.Comments = comments
	l.state.Loaded = true
	return l.state, true
}

// State returns the current state
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
