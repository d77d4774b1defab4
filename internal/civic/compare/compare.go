package compare

import (
	"sort"
	"strconv"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/petr-muller/civicfeed/internal/civic/storage"
)

// CompareFeeds compares the current feed with a previously stored snapshot.
// New and removed issues keep the order of the feed they come from.
func CompareFeeds(current, previous []storage.SnapshotIssue) storage.FeedResult {
	previousByID := make(map[string]storage.SnapshotIssue, len(previous))
	for _, issue := range previous {
		previousByID[issue.ID] = issue
	}
	currentIDs := sets.New[string]()
	for _, issue := range current {
		currentIDs.Insert(issue.ID)
	}

	var newIssues []storage.SnapshotIssue
	changedIssues := make(map[string][]storage.IssueChange)
	for _, issue := range current {
		old, exists := previousByID[issue.ID]
		if !exists {
			newIssues = append(newIssues, issue)
			continue
		}
		if changes := compareIssues(issue, old); len(changes) > 0 {
			changedIssues[issue.ID] = changes
		}
	}

	var removedIssues []storage.SnapshotIssue
	for _, issue := range previous {
		if !currentIDs.Has(issue.ID) {
			removedIssues = append(removedIssues, issue)
		}
	}

	return storage.FeedResult{
		NewIssues:     newIssues,
		RemovedIssues: removedIssues,
		ChangedIssues: changedIssues,
	}
}

func compareIssues(current, previous storage.SnapshotIssue) []storage.IssueChange {
	var changes []storage.IssueChange
	diff := func(field, before, after string) {
		if before != after {
			changes = append(changes, storage.IssueChange{Field: field, OldValue: before, NewValue: after})
		}
	}

	diff("title", previous.Title, current.Title)
	diff("status", previous.Status, current.Status)
	diff("ward", previous.Ward, current.Ward)
	diff("assigned_to", previous.AssignedTo, current.AssignedTo)
	diff("likes", strconv.Itoa(previous.Likes), strconv.Itoa(current.Likes))
	diff("comments", strconv.Itoa(previous.Comments), strconv.Itoa(current.Comments))

	return changes
}

// ChangedIDs returns the ids of changed issues in a stable order
func ChangedIDs(result storage.FeedResult) []string {
	ids := make([]string, 0, len(result.ChangedIssues))
	for id := range result.ChangedIssues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasChanges returns true if there are any changes in the feed result
func HasChanges(result storage.FeedResult) bool {
	return len(result.NewIssues) > 0 || len(result.RemovedIssues) > 0 || len(result.ChangedIssues) > 0
}
