package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Status
		label    string
	}{
		{name: "empty is new", input: "", expected: StatusNew, label: "New"},
		{name: "unknown is new", input: "open", expected: StatusNew, label: "New"},
		{name: "lowercase accepted", input: "in_progress", expected: StatusInProgress, label: "In Progress"},
		{name: "completed shows resolved", input: "COMPLETED", expected: StatusCompleted, label: "Resolved"},
		{name: "rejected", input: "REJECTED", expected: StatusRejected, label: "Rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseStatus(tt.input)
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
			if got.Label() != tt.label {
				t.Errorf("expected label %q, got %q", tt.label, got.Label())
			}
		})
	}
}

func TestTimelineIndex(t *testing.T) {
	if idx := TimelineIndex(StatusInProgress); idx != 0 {
		t.Errorf("expected 0, got %d", idx)
	}
	if idx := TimelineIndex(StatusCompleted); idx != 1 {
		t.Errorf("expected 1, got %d", idx)
	}
	if idx := TimelineIndex(""); idx != -1 {
		t.Errorf("expected -1 for missing status, got %d", idx)
	}
}

func TestIssueKeyFallsBackToMongoID(t *testing.T) {
	var issue Issue
	if err := json.Unmarshal([]byte(`{"_id":"abc","title":"Pothole","likes":2}`), &issue); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issue.Key() != "abc" {
		t.Errorf("expected key abc, got %q", issue.Key())
	}
	if issue.EffectiveStatus() != StatusNew {
		t.Errorf("expected NEW for missing status, got %q", issue.EffectiveStatus())
	}
}

func TestCommentKey(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		comment  Comment
		expected string
	}{
		{name: "id wins", comment: Comment{ID: "c1", MongoID: "m1"}, expected: "c1"},
		{name: "mongo id", comment: Comment{MongoID: "m1"}, expected: "m1"},
		{name: "composite", comment: Comment{IssueID: "9", CreatedAt: created}, expected: "9:2024-05-01T10:00:00Z:3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.comment.Key(3); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestUploadSignatureAcceptsNumericAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "string", raw: `{"apiKey":"123abc"}`, expected: "123abc"},
		{name: "number", raw: `{"apiKey":987654321012345}`, expected: "987654321012345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sig UploadSignature
			if err := json.Unmarshal([]byte(tt.raw), &sig); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sig.APIKey.String() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, sig.APIKey)
			}
		})
	}
}

func TestFormatConfidence(t *testing.T) {
	c := 0.874
	if got := FormatConfidence(&c); got != "87%" {
		t.Errorf("expected 87%%, got %q", got)
	}
	if got := FormatConfidence(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}
