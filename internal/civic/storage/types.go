package storage

import (
	"time"

	"github.com/petr-muller/civicfeed/internal/civic/model"
)

// Snapshot is the feed as the viewer last saw it
type Snapshot struct {
	Name        string          `yaml:"name"`
	LastFetched time.Time       `yaml:"last_fetched"`
	Issues      []SnapshotIssue `yaml:"issues"`
}

// SnapshotIssue holds the fields of an issue worth telling the viewer about
// when they change
type SnapshotIssue struct {
	ID         string    `yaml:"id"`
	Title      string    `yaml:"title"`
	Status     string    `yaml:"status"`
	Ward       string    `yaml:"ward,omitempty"`
	AssignedTo string    `yaml:"assigned_to,omitempty"`
	Likes      int       `yaml:"likes"`
	Comments   int       `yaml:"comments"`
	CreatedAt  time.Time `yaml:"created_at"`
}

// FromIssues converts cached issues into their snapshot form
func FromIssues(issues []model.Issue) []SnapshotIssue {
	snapshot := make([]SnapshotIssue, 0, len(issues))
	for _, issue := range issues {
		snapshot = append(snapshot, SnapshotIssue{
			ID:         issue.Key(),
			Title:      issue.Title,
			Status:     string(issue.EffectiveStatus()),
			Ward:       issue.Ward,
			AssignedTo: issue.AssignedTo,
			Likes:      issue.Likes,
			Comments:   issue.Comments,
			CreatedAt:  issue.CreatedAt,
		})
	}
	return snapshot
}

// IssueChange is a change of one issue field between two snapshots
type IssueChange struct {
	Field    string `yaml:"field"`
	OldValue string `yaml:"old_value"`
	NewValue string `yaml:"new_value"`
}

// FeedResult is a fresh feed compared with the previous snapshot
type FeedResult struct {
	Snapshot      Snapshot                 `yaml:"snapshot"`
	NewIssues     []SnapshotIssue          `yaml:"new_issues"`
	RemovedIssues []SnapshotIssue          `yaml:"removed_issues"`
	ChangedIssues map[string][]IssueChange `yaml:"changed_issues"`
}

// SnapshotListItem describes a stored snapshot
type SnapshotListItem struct {
	Name        string
	LastFetched time.Time
	IssueCount  int
}
