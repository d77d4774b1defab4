package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/petr-muller/civicfeed/internal/civic/cache"
	"github.com/petr-muller/civicfeed/internal/civic/model"
)

type recordingMerger struct {
	mu     sync.Mutex
	merged []model.Issue
}

func (r *recordingMerger) MergeRealtime(issue model.Issue) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merged = append(r.merged, issue)
	return true
}

func (r *recordingMerger) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, issue := range r.merged {
		ids = append(ids, issue.Key())
	}
	return ids
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		name     string
		messages []string
		expected []string
	}{
		{
			name:     "created issue is merged",
			messages: []string{`{"type":"issue:created","payload":{"id":"9","title":"Leak"}}`},
			expected: []string{"9"},
		},
		{
			name:     "null payload is ignored",
			messages: []string{`{"type":"issue:created","payload":null}`, `{"type":"issue:created"}`},
		},
		{
			name:     "unknown type is ignored",
			messages: []string{`{"type":"issue:liked","payload":{"id":"9"}}`},
		},
		{
			name:     "malformed messages do not stop later ones",
			messages: []string{`not json`, `{"type":"issue:created","payload":"oops"}`, `{"type":"issue:created","payload":{"id":"3"}}`},
			expected: []string{"3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merger := &recordingMerger{}
			d := IssueDispatcher(merger)
			for _, msg := range tt.messages {
				d.Dispatch([]byte(msg))
			}
			got := merger.ids()
			if strings.Join(got, ",") != strings.Join(tt.expected, ",") {
				t.Errorf("expected merged %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestSubscribeDisabledWithoutURL(t *testing.T) {
	if _, err := Subscribe(context.Background(), "", NewDispatcher()); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
}

func TestSubscribeDialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	if _, err := Subscribe(context.Background(), url, NewDispatcher()); err == nil {
		t.Errorf("expected dial error for a non-websocket endpoint")
	}
}

func TestSubscribeMergesDuplicateDeliveriesOnce(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for _, msg := range []string{
			`{"type":"issue:created","payload":{"id":"9","title":"Flooded underpass"}}`,
			`garbage`,
			`{"type":"issue:created","payload":{"id":"9","title":"Flooded underpass"}}`,
		} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer server.Close()

	store := cache.NewStore(nil, nil)
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	sub, err := Subscribe(context.Background(), url, IssueDispatcher(store))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the subscription to end")
	}
	sub.Close()

	issues := store.Issues()
	if len(issues) != 1 || issues[0].ID != "9" {
		t.Errorf("expected exactly one issue with id 9, got %+v", issues)
	}
}

func TestSubscriptionStopsOnContextCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	sub, err := Subscribe(ctx, url, NewDispatcher())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("subscription did not stop after cancel")
	}
}

func TestSubscriptionDropsOversizedMessage(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		title := strings.Repeat("x", MaxMessageSize)
		oversized := `{"type":"issue:created","payload":{"id":"1","title":"` + title + `"}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(oversized)); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"issue:created","payload":{"id":"2"}}`))
	}))
	defer server.Close()

	merger := &recordingMerger{}
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	sub, err := Subscribe(context.Background(), url, IssueDispatcher(merger))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("subscription did not stop after an oversized message")
	}
	sub.Close()

	if got := merger.ids(); len(got) != 0 {
		t.Errorf("expected nothing merged, got %v", got)
	}
}

func TestCloseDoesNotWaitForUnresponsivePeer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// never read, so the peer stops acknowledging
		<-release
	}))
	defer server.Close()
	defer close(release)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	sub, err := Subscribe(context.Background(), url, NewDispatcher())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		sub.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatalf("Close blocked on an unresponsive peer")
	}
}
