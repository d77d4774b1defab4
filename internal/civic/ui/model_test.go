package ui

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/petr-muller/civicfeed/internal/civic/comments"
	"github.com/petr-muller/civicfeed/internal/civic/model"
	"github.com/petr-muller/civicfeed/internal/civic/shuffle"
	"github.com/petr-muller/civicfeed/internal/civic/storage"
)

type fakeFetcher struct {
	comments []model.Comment
}

func (f fakeFetcher) ListComments(_ context.Context, _ string) ([]model.Comment, error) {
	return f.comments, nil
}

type fakeFeed struct {
	mu         sync.Mutex
	randomizer *shuffle.Randomizer
	clock      *testingclock.FakeClock
	liked      []string
	commented  []string
	likeErr    error
}

func newFakeFeed(issues ...model.Issue) *fakeFeed {
	clock := testingclock.NewFakeClock(time.Now())
	r := shuffle.NewRandomizer(shuffle.WithClock(clock), shuffle.WithRand(rand.New(rand.NewSource(1))))
	r.Load(issues)
	return &fakeFeed{randomizer: r, clock: clock}
}

func (f *fakeFeed) Like(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liked = append(f.liked, id)
	return f.likeErr
}

func (f *fakeFeed) Comment(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commented = append(f.commented, id)
	return nil
}

func (f *fakeFeed) Comments(id string) *comments.Loader {
	return comments.NewLoader(id, fakeFetcher{comments: []model.Comment{{AuthorName: "Asha", Text: "Seen it too"}}})
}

func (f *fakeFeed) Randomizer() *shuffle.Randomizer {
	return f.randomizer
}

func (f *fakeFeed) ShareURL(id string) string {
	return "https://civic.example/posts/" + id
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	updated, ok := next.(Model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	return updated, cmd
}

func TestLikeKey(t *testing.T) {
	feed := newFakeFeed(model.Issue{ID: "1", Title: "Pothole"})
	m := NewModel(context.Background(), feed, nil)

	m, cmd := update(t, m, key("l"))
	if cmd == nil {
		t.Fatalf("expected a like command")
	}
	// a second press while the like is in flight sends nothing
	m, second := update(t, m, key("l"))
	if second != nil {
		t.Errorf("expected no command while the like is in flight")
	}

	m, _ = update(t, m, cmd())
	if len(feed.liked) != 1 || feed.liked[0] != "1" {
		t.Errorf("expected exactly one like, got %v", feed.liked)
	}
	if m.liking.Has("1") {
		t.Errorf("expected the in-flight marker to be cleared")
	}
}

func TestLikeDisabledOnceLiked(t *testing.T) {
	feed := newFakeFeed(model.Issue{ID: "1", Title: "Pothole", UserHasLiked: true})
	m := NewModel(context.Background(), feed, nil)

	m, cmd := update(t, m, key("l"))
	if cmd != nil {
		t.Errorf("expected no like command for a liked issue")
	}
	if !strings.Contains(m.status, "already liked") {
		t.Errorf("unexpected status %q", m.status)
	}
}

func TestLikeFailureIsReported(t *testing.T) {
	feed := newFakeFeed(model.Issue{ID: "1"})
	feed.likeErr = errors.New("Unauthorized")
	m := NewModel(context.Background(), feed, nil)

	m, cmd := update(t, m, key("l"))
	m, _ = update(t, m, cmd())
	if !strings.Contains(m.status, "Unauthorized") {
		t.Errorf("expected failure in status, got %q", m.status)
	}
}

func TestCommentFlow(t *testing.T) {
	feed := newFakeFeed(model.Issue{ID: "1", Title: "Pothole"})
	m := NewModel(context.Background(), feed, nil)

	m, _ = update(t, m, key("c"))
	if !m.commenting {
		t.Fatalf("expected comment input to open")
	}
	m, cmd := update(t, m, key("enter"))
	if cmd != nil || m.status != "Comment cannot be empty" {
		t.Errorf("expected empty comment to be refused, got status %q", m.status)
	}

	m, _ = update(t, m, key("Me too"))
	m, cmd = update(t, m, key("enter"))
	if cmd == nil || m.commenting {
		t.Fatalf("expected comment to be sent")
	}
	m, _ = update(t, m, cmd())
	if len(feed.commented) != 1 || m.status != "Comment added" {
		t.Errorf("unexpected comment state %v, %q", feed.commented, m.status)
	}
}

func TestCommentsLoadAndStaleResults(t *testing.T) {
	feed := newFakeFeed(model.Issue{ID: "1", Title: "Pothole"})
	m := NewModel(context.Background(), feed, nil)

	m, cmd := update(t, m, key("enter"))
	if cmd == nil {
		t.Fatalf("expected a load command")
	}
	msg := cmd()

	// a result from a loader the model no longer uses is ignored
	stale := commentsMsg{loader: comments.NewLoader("1", fakeFetcher{}), applied: true, state: comments.State{Loaded: true}}
	m, _ = update(t, m, stale)
	if m.commentState.Loaded {
		t.Errorf("expected stale result to be ignored")
	}

	m, _ = update(t, m, msg)
	if !m.commentState.Loaded || len(m.commentState.Comments) != 1 {
		t.Errorf("expected comments to be loaded, got %+v", m.commentState)
	}
	if !strings.Contains(m.View(), "Seen it too") {
		t.Errorf("expected comment in view")
	}
}

func TestRadiusKeysDebounce(t *testing.T) {
	feed := newFakeFeed(model.Issue{ID: "1"}, model.Issue{ID: "2"})
	m := NewModel(context.Background(), feed, nil)

	m, _ = update(t, m, key("+"))
	m, _ = update(t, m, key("+"))
	if got := feed.randomizer.RadiusKm(); got != shuffle.DefaultRadiusKm+2 {
		t.Errorf("expected radius %d, got %d", shuffle.DefaultRadiusKm+2, got)
	}
	if !strings.Contains(m.View(), "Shuffling") {
		t.Errorf("expected shuffling indicator")
	}
	feed.clock.Step(shuffle.DefaultDelay)
	// the fake clock runs the timer callback on its own goroutine
	deadline := time.Now().Add(5 * time.Second)
	for feed.randomizer.Shuffling() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m, _ = update(t, m, RefreshMsg{})
	if strings.Contains(m.View(), "Shuffling") {
		t.Errorf("expected shuffling indicator to disappear")
	}
}

func TestViewHighlightsChanges(t *testing.T) {
	feed := newFakeFeed(model.Issue{ID: "1", Title: "Pothole"})
	changes := &storage.FeedResult{
		NewIssues:     []storage.SnapshotIssue{{ID: "1"}},
		ChangedIssues: map[string][]storage.IssueChange{},
	}
	m := NewModel(context.Background(), feed, changes)

	view := m.View()
	for _, expected := range []string{"Changes: 1 new, 0 changed, 0 removed", "NEW SINCE LAST VISIT", "Pothole"} {
		if !strings.Contains(view, expected) {
			t.Errorf("expected %q in view:\n%s", expected, view)
		}
	}
}

func TestShareKey(t *testing.T) {
	feed := newFakeFeed(model.Issue{ID: "7"})
	m := NewModel(context.Background(), feed, nil)
	m, _ = update(t, m, key("s"))
	if m.status != "Share: https://civic.example/posts/7" {
		t.Errorf("unexpected status %q", m.status)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{50 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.expected {
			t.Errorf("expected %q for %v, got %q", tt.expected, tt.d, got)
		}
	}
}
