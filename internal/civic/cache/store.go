package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/petr-muller/civicfeed/internal/civic/model"
)

var (
	// ErrNotFound is returned when an intent targets an issue the cache does not hold
	ErrNotFound = errors.New("issue not found")
	// ErrAlreadyLiked is returned for a like on an issue the viewer already liked
	ErrAlreadyLiked = errors.New("issue already liked")
	// ErrEmptyComment is returned for a comment without text
	ErrEmptyComment = errors.New("comment text is empty")
)

// Backend is the part of the issue store the cache reconciles with
type Backend interface {
	LikeIssue(ctx context.Context, id, token string) (*model.LikeResult, error)
	AddComment(ctx context.Context, id, text, token string) error
	CreateIssue(ctx context.Context, payload model.CreatePayload, token string) (model.Issue, error)
}

// TokenSource provides the viewer's bearer token
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Store is the canonical in-memory issue list of a session. It is the only
// component that mutates issue counters. Every mutation is applied atomically
// under the store lock; network calls happen outside of it.
type Store struct {
	backend Backend
	tokens  TokenSource

	mu     sync.Mutex
	issues []model.Issue

	hooksMu sync.Mutex
	hooks   []func()
}

// NewStore creates an empty store
func NewStore(backend Backend, tokens TokenSource) *Store {
	return &Store{
		backend: backend,
		tokens:  tokens,
	}
}

// OnChange registers fn to be called after every mutation
func (s *Store) OnChange(fn func()) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Store) notify() {
	s.hooksMu.Lock()
	hooks := append([]func(){}, s.hooks...)
	s.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Load replaces the list with the result of a fetch
func (s *Store) Load(issues []model.Issue) {
	s.mu.Lock()
	s.issues = append([]model.Issue{}, issues...)
	s.mu.Unlock()
	s.notify()
}

// Issues returns a copy of the canonical list in load order
func (s *Store) Issues() []model.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Issue{}, s.issues...)
}

// Len returns the number of cached issues
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.issues)
}

// Get returns the issue with the given id
func (s *Store) Get(id string) (model.Issue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.issues[idx], true
	}
	return model.Issue{}, false
}

func (s *Store) indexLocked(id string) int {
	for i := range s.issues {
		if s.issues[i].Key() == id {
			return i
		}
	}
	return -1
}

// update applies fn to the issue with the given id under the lock
func (s *Store) update(id string, fn func(*model.Issue)) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx >= 0 {
		fn(&s.issues[idx])
	}
	s.mu.Unlock()
	if idx < 0 {
		return false
	}
	s.notify()
	return true
}

func (s *Store) token(ctx context.Context) (string, error) {
	if s.tokens == nil {
		return "", nil
	}
	return s.tokens.Token(ctx)
}

// Like optimistically likes an issue and reconciles the count with the store.
// A like on an already liked issue changes nothing and sends nothing. When the
// store rejects the like, the optimistic increment is rolled back.
func (s *Store) Like(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	if s.issues[idx].UserHasLiked {
		s.mu.Unlock()
		return ErrAlreadyLiked
	}
	s.issues[idx].Likes++
	s.issues[idx].UserHasLiked = true
	s.mu.Unlock()
	s.notify()

	result, err := s.like(ctx, id)
	if err != nil {
		s.update(id, func(issue *model.Issue) {
			issue.Likes = max(0, issue.Likes-1)
			issue.UserHasLiked = false
		})
		logrus.WithError(err).WithField("issue", id).Debug("Like rolled back")
		return err
	}

	// without a body the optimistic state stands
	if result == nil {
		return nil
	}
	s.update(id, func(issue *model.Issue) {
		issue.Likes = max(0, result.Likes)
		issue.UserHasLiked = result.UserHasLiked
	})
	return nil
}

func (s *Store) like(ctx context.Context, id string) (*model.LikeResult, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot obtain token: %w", err)
	}
	return s.backend.LikeIssue(ctx, id, token)
}

// Comment persists a comment and, only once the store confirms it, bumps the
// local comment counter
func (s *Store) Comment(ctx context.Context, id, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyComment
	}
	if _, ok := s.Get(id); !ok {
		return ErrNotFound
	}

	token, err := s.token(ctx)
	if err != nil {
		return fmt.Errorf("cannot obtain token: %w", err)
	}
	if err := s.backend.AddComment(ctx, id, text, token); err != nil {
		return err
	}

	s.update(id, func(issue *model.Issue) {
		issue.Comments++
	})
	return nil
}

// Create publishes a draft and prepends the canonical issue returned by the store
func (s *Store) Create(ctx context.Context, payload model.CreatePayload) (model.Issue, error) {
	token, err := s.token(ctx)
	if err != nil {
		return model.Issue{}, fmt.Errorf("cannot obtain token: %w", err)
	}
	created, err := s.backend.CreateIssue(ctx, payload, token)
	if err != nil {
		return model.Issue{}, err
	}
	created.UserHasLiked = false

	s.mu.Lock()
	// the realtime channel may have announced the issue before the response arrived
	if idx := s.indexLocked(created.Key()); idx >= 0 {
		s.issues = append(s.issues[:idx], s.issues[idx+1:]...)
	}
	s.issues = append([]model.Issue{created}, s.issues...)
	s.mu.Unlock()
	s.notify()
	return created, nil
}

// MergeRealtime prepends an announced issue unless one with the same id is
// already cached. It reports whether the issue was inserted.
func (s *Store) MergeRealtime(issue model.Issue) bool {
	key := issue.Key()
	if key == "" {
		return false
	}

	s.mu.Lock()
	if s.indexLocked(key) >= 0 {
		s.mu.Unlock()
		return false
	}
	s.issues = append([]model.Issue{issue}, s.issues...)
	s.mu.Unlock()
	s.notify()
	return true
}

// Remove drops an issue after the store confirmed its deletion
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx >= 0 {
		s.issues = append(s.issues[:idx], s.issues[idx+1:]...)
	}
	s.mu.Unlock()
	if idx < 0 {
		return false
	}
	s.notify()
	return true
}
