package admin

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/petr-muller/civicfeed/internal/civic/auth"
	"github.com/petr-muller/civicfeed/internal/civic/model"
)

// DefaultSLA is how long an issue may stay open before it counts as overdue
const DefaultSLA = 7 * 24 * time.Hour

// Tab is a status filter of the admin console
type Tab string

const (
	TabAll        Tab = "all"
	TabOpen       Tab = "open"
	TabInProgress Tab = "in-progress"
	TabResolved   Tab = "resolved"
)

var tabStatuses = map[Tab]sets.Set[model.Status]{
	TabOpen:       sets.New(model.StatusNew, model.StatusAcknowledged, model.StatusEscalated),
	TabInProgress: sets.New(model.StatusInProgress),
	TabResolved:   sets.New(model.StatusCompleted),
}

// Tabs lists the tabs in display order
func Tabs() []Tab {
	return []Tab{TabAll, TabOpen, TabInProgress, TabResolved}
}

// ParseTab validates a tab name
func ParseTab(s string) (Tab, error) {
	tab := Tab(strings.ToLower(strings.TrimSpace(s)))
	if tab == "" {
		return TabAll, nil
	}
	for _, t := range Tabs() {
		if t == tab {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tab %q, expected one of all, open, in-progress, resolved", s)
}

// Filter narrows the issue list of the console
type Filter struct {
	Query string
	Tab   Tab
}

// Matches reports whether issue passes the filter
func (f Filter) Matches(issue model.Issue) bool {
	if statuses, ok := tabStatuses[f.Tab]; ok && !statuses.Has(issue.EffectiveStatus()) {
		return false
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))
	if query == "" {
		return true
	}
	for _, field := range []string{issue.Title, issue.Location, issue.Ward, issue.AssignedTo} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// Apply returns the issues passing the filter, in their original order
func (f Filter) Apply(issues []model.Issue) []model.Issue {
	var filtered []model.Issue
	for _, issue := range issues {
		if f.Matches(issue) {
			filtered = append(filtered, issue)
		}
	}
	return filtered
}

// WardCount is the number of open issues in a ward
type WardCount struct {
	Ward  string
	Count int
}

// KPIs summarize the workload of the console
type KPIs struct {
	Open    int
	Overdue int
	Wards   []WardCount
}

// ComputeKPIs summarizes issues as of now. An issue is overdue when it is
// still open longer than sla after its creation.
func ComputeKPIs(issues []model.Issue, now time.Time, sla time.Duration) KPIs {
	var kpis KPIs
	perWard := map[string]int{}
	for _, issue := range issues {
		if !issue.EffectiveStatus().Open() {
			continue
		}
		kpis.Open++
		if !issue.CreatedAt.IsZero() && now.Sub(issue.CreatedAt) > sla {
			kpis.Overdue++
		}
		if issue.Ward != "" {
			perWard[issue.Ward]++
		}
	}

	for _, ward := range sets.List(sets.KeySet(perWard)) {
		kpis.Wards = append(kpis.Wards, WardCount{Ward: ward, Count: perWard[ward]})
	}
	sort.SliceStable(kpis.Wards, func(i, j int) bool {
		return kpis.Wards[i].Count > kpis.Wards[j].Count
	})
	return kpis
}

var csvHeader = []string{"id", "title", "status", "ward", "location", "assignedTo", "likes", "comments", "createdAt"}

// ExportCSV writes issues as CSV with a header row
func ExportCSV(w io.Writer, issues []model.Issue) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("cannot write csv header: %w", err)
	}
	for _, issue := range issues {
		created := ""
		if !issue.CreatedAt.IsZero() {
			created = issue.CreatedAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			issue.Key(),
			issue.Title,
			string(issue.EffectiveStatus()),
			issue.Ward,
			issue.Location,
			issue.AssignedTo,
			strconv.Itoa(issue.Likes),
			strconv.Itoa(issue.Comments),
			created,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("cannot write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Deleter removes issues from the store
type Deleter interface {
	DeleteIssue(ctx context.Context, id, token string) error
}

// Remover drops issues from the local cache
type Remover interface {
	Remove(id string) bool
}

// Console is the admin view over the issue cache
type Console struct {
	deleter Deleter
	cache   Remover
	tokens  auth.TokenSource
}

// NewConsole creates a console
func NewConsole(deleter Deleter, cache Remover, tokens auth.TokenSource) *Console {
	return &Console{deleter: deleter, cache: cache, tokens: tokens}
}

// Authorize fails unless the configured token carries the admin role
func (c *Console) Authorize(ctx context.Context) error {
	_, err := auth.RequireAdmin(ctx, c.tokens)
	return err
}

// Delete removes an issue from the store and, once it confirmed, from the cache
func (c *Console) Delete(ctx context.Context, id string) error {
	token, err := auth.RequireAdmin(ctx, c.tokens)
	if err != nil {
		return err
	}
	if err := c.deleter.DeleteIssue(ctx, id, token); err != nil {
		return err
	}
	if !c.cache.Remove(id) {
		logrus.WithField("issue", id).Debug("Deleted issue was not cached")
	}
	return nil
}
