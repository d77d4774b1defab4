package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/petr-muller/civicfeed/internal/civic/cache"
	"github.com/petr-muller/civicfeed/internal/civic/comments"
	"github.com/petr-muller/civicfeed/internal/civic/compare"
	"github.com/petr-muller/civicfeed/internal/civic/model"
	"github.com/petr-muller/civicfeed/internal/civic/shuffle"
	"github.com/petr-muller/civicfeed/internal/civic/storage"
)

const maxTableRows = 15

// Feed is what the TUI needs from the session
type Feed interface {
	Like(ctx context.Context, id string) error
	Comment(ctx context.Context, id, text string) error
	Comments(id string) *comments.Loader
	Randomizer() *shuffle.Randomizer
	ShareURL(id string) string
}

// RefreshMsg tells the model that the feed changed outside of it
type RefreshMsg struct{}

type likeDoneMsg struct {
	id  string
	err error
}

type commentDoneMsg struct {
	id  string
	err error
}

type commentsMsg struct {
	loader  *comments.Loader
	state   comments.State
	applied bool
}

// Notifier forwards feed changes to a running program. Changes made before
// a program is attached are dropped; the model reads the feed when it starts.
type Notifier struct {
	program atomic.Pointer[tea.Program]
}

// Attach starts forwarding to p
func (n *Notifier) Attach(p *tea.Program) {
	n.program.Store(p)
}

// Notify sends a RefreshMsg to the attached program
func (n *Notifier) Notify() {
	if p := n.program.Load(); p != nil {
		p.Send(RefreshMsg{})
	}
}

// formatDuration formats a duration into a human-readable string
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

// Model is the feed TUI
type Model struct {
	ctx  context.Context
	feed Feed

	table   table.Model
	spinner spinner.Model
	input   textinput.Model

	displayed []model.Issue
	changes   *storage.FeedResult
	liking    sets.Set[string]

	commenting    bool
	commentTarget string
	loader        *comments.Loader
	commentState  comments.State

	status string
	width  int
	height int
}

// NewModel creates the feed TUI. changes may be nil; when given, new and
// changed issues since the last visit are highlighted.
func NewModel(ctx context.Context, feed Feed, changes *storage.FeedResult) Model {
	columns := []table.Column{
		{Title: "Title", Width: 30},
		{Title: "Status", Width: 12},
		{Title: "Ward", Width: 10},
		{Title: "Likes", Width: 7},
		{Title: "Comments", Width: 8},
		{Title: "Age", Width: 5},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(1),
	)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	input := textinput.New()
	input.Placeholder = "Write a comment…"
	input.CharLimit = 500

	m := Model{
		ctx:     ctx,
		feed:    feed,
		table:   t,
		spinner: sp,
		input:   input,
		changes: changes,
		liking:  sets.New[string](),
	}
	m.refresh()
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) selected() (model.Issue, bool) {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.displayed) {
		return model.Issue{}, false
	}
	return m.displayed[cursor], true
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateTableSize()
		return m, nil
	case RefreshMsg:
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case likeDoneMsg:
		m.liking.Delete(msg.id)
		if msg.err != nil && !errors.Is(msg.err, cache.ErrAlreadyLiked) {
			m.status = fmt.Sprintf("Like failed: %v", msg.err)
		}
		m.refresh()
		return m, nil
	case commentDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Failed to add comment: %v", msg.err)
			return m, nil
		}
		m.status = "Comment added"
		m.refresh()
		if m.loader != nil && m.loader.IssueID() == msg.id {
			return m, m.loadComments(m.loader)
		}
		return m, nil
	case commentsMsg:
		// a result for an issue the viewer moved away from, or a superseded fetch
		if msg.loader != m.loader || !msg.applied {
			return m, nil
		}
		m.commentState = msg.state
		return m, nil
	case tea.KeyMsg:
		if m.commenting {
			return m.updateCommenting(msg)
		}
		if next, cmd, handled := m.handleKey(msg); handled {
			return next, cmd
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	m.updateSelectionStyle()
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit, true
	case "l":
		issue, ok := m.selected()
		if !ok || m.liking.Has(issue.Key()) {
			return m, nil, true
		}
		if issue.UserHasLiked {
			m.status = "You already liked this issue"
			return m, nil, true
		}
		m.liking.Insert(issue.Key())
		m.status = ""
		id := issue.Key()
		return m, func() tea.Msg {
			return likeDoneMsg{id: id, err: m.feed.Like(m.ctx, id)}
		}, true
	case "c":
		issue, ok := m.selected()
		if !ok {
			return m, nil, true
		}
		m.commenting = true
		m.commentTarget = issue.Key()
		m.input.Reset()
		return m, m.input.Focus(), true
	case "enter":
		issue, ok := m.selected()
		if !ok {
			return m, nil, true
		}
		if m.loader == nil || m.loader.IssueID() != issue.Key() {
			m.loader = m.feed.Comments(issue.Key())
			m.commentState = comments.State{}
		}
		m.commentState.Loading = true
		return m, m.loadComments(m.loader), true
	case "+", "=":
		r := m.feed.Randomizer()
		r.SetRadius(r.RadiusKm() + 1)
		return m, m.spinner.Tick, true
	case "-", "_":
		r := m.feed.Randomizer()
		r.SetRadius(r.RadiusKm() - 1)
		return m, m.spinner.Tick, true
	case "r":
		m.feed.Randomizer().Reshuffle()
		return m, m.spinner.Tick, true
	case "s":
		if issue, ok := m.selected(); ok {
			m.status = "Share: " + m.feed.ShareURL(issue.Key())
		}
		return m, nil, true
	}
	return m, nil, false
}

func (m Model) updateCommenting(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.commenting = false
		m.input.Blur()
		return m, nil
	case "enter":
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			m.status = "Comment cannot be empty"
			return m, nil
		}
		m.commenting = false
		m.input.Blur()
		id := m.commentTarget
		return m, func() tea.Msg {
			return commentDoneMsg{id: id, err: m.feed.Comment(m.ctx, id, text)}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) loadComments(loader *comments.Loader) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		state, applied := loader.Load(ctx)
		return commentsMsg{loader: loader, state: state, applied: applied}
	}
}

// refresh reads the display order of the randomizer into the table
func (m *Model) refresh() {
	m.displayed = m.feed.Randomizer().Display()
	rows := make([]table.Row, 0, len(m.displayed))
	for _, issue := range m.displayed {
		rows = append(rows, m.issueToRow(issue))
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(max(0, len(rows)-1))
	}
	m.updateTableSize()
	m.updateSelectionStyle()
}

func (m *Model) issueToRow(issue model.Issue) table.Row {
	likes := fmt.Sprintf("%d", issue.Likes)
	if issue.UserHasLiked {
		likes = "♥ " + likes
	}
	age := "-"
	if !issue.CreatedAt.IsZero() {
		age = formatDuration(time.Since(issue.CreatedAt))
	}
	return table.Row{
		issue.Title,
		issue.EffectiveStatus().Label(),
		issue.Ward,
		likes,
		fmt.Sprintf("%d", issue.Comments),
		age,
	}
}

func (m *Model) updateTableSize() {
	tableHeight := max(min(len(m.displayed), maxTableRows)+1, 2)
	m.table.SetHeight(tableHeight)
	if m.width <= 0 {
		return
	}

	columns := m.table.Columns()
	fixed := 0
	for _, c := range columns[1:] {
		fixed += c.Width
	}
	// borders and cell padding
	columns[0].Width = max(20, m.width-fixed-2*len(columns)-4)
	m.table.SetColumns(columns)
}

func (m *Model) isNewIssue(issue model.Issue) bool {
	if m.changes == nil {
		return false
	}
	for _, n := range m.changes.NewIssues {
		if n.ID == issue.Key() {
			return true
		}
	}
	return false
}

func (m *Model) isChangedIssue(issue model.Issue) bool {
	if m.changes == nil {
		return false
	}
	_, exists := m.changes.ChangedIssues[issue.Key()]
	return exists
}

// updateSelectionStyle colors the selection by what happened to the issue
// since the last visit
func (m *Model) updateSelectionStyle() {
	issue, ok := m.selected()
	if !ok {
		return
	}

	var backgroundColor lipgloss.Color
	switch {
	case m.isNewIssue(issue):
		backgroundColor = lipgloss.Color("22")
	case m.isChangedIssue(issue):
		backgroundColor = lipgloss.Color("130")
	default:
		backgroundColor = lipgloss.Color("240")
	}

	styles := table.DefaultStyles()
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("230")).
		Background(backgroundColor).
		Bold(true)
	m.table.SetStyles(styles)
}

// View renders the model
func (m Model) View() string {
	var s strings.Builder

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	infoStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	s.WriteString(headerStyle.Render("Civic issue feed"))
	s.WriteString("\n")

	radius := fmt.Sprintf("Radius: %d km", m.feed.Randomizer().RadiusKm())
	if m.feed.Randomizer().Shuffling() {
		radius += "  " + m.spinner.View() + " Shuffling feed…"
	}
	s.WriteString(infoStyle.Render(radius))
	s.WriteString("\n")

	if m.changes != nil && compare.HasChanges(*m.changes) {
		summary := fmt.Sprintf("Changes: %d new, %d changed, %d removed",
			len(m.changes.NewIssues), len(m.changes.ChangedIssues), len(m.changes.RemovedIssues))
		if last := m.changes.Snapshot.LastFetched; !last.IsZero() {
			summary = fmt.Sprintf("Changes since %s (%s ago): ", last.Format("2006-01-02 15:04"), formatDuration(time.Since(last))) +
				strings.TrimPrefix(summary, "Changes: ")
		}
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Render(summary))
		s.WriteString("\n")
	}

	if len(m.displayed) == 0 {
		s.WriteString(infoStyle.Render("No issues yet"))
		s.WriteString("\n")
	} else {
		s.WriteString(m.table.View())
		s.WriteString("\n")
		if len(m.displayed) > maxTableRows {
			s.WriteString(infoStyle.Italic(true).Render(fmt.Sprintf("Showing %d of %d issues - use arrow keys to scroll", maxTableRows, len(m.displayed))))
			s.WriteString("\n")
		}
	}

	if issue, ok := m.selected(); ok {
		s.WriteString(m.renderDetail(issue))
	}

	if m.commenting {
		s.WriteString("\n")
		s.WriteString(m.input.View())
		s.WriteString("\n")
	}

	if m.status != "" {
		s.WriteString("\n")
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render(m.status))
		s.WriteString("\n")
	}

	help := "l like • c comment • enter comments • +/- radius • r reshuffle • s share • q quit"
	if m.commenting {
		help = "enter send • esc cancel"
	}
	s.WriteString("\n")
	s.WriteString(infoStyle.Render(help))
	return s.String()
}

func (m Model) renderDetail(issue model.Issue) string {
	var s strings.Builder
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))

	s.WriteString("\n")
	s.WriteString(lipgloss.NewStyle().Bold(true).Render(issue.Title))
	s.WriteString("\n")
	if issue.Description != "" {
		s.WriteString(labelStyle.Render(issue.Description))
		s.WriteString("\n")
	}
	if issue.Location != "" {
		s.WriteString(labelStyle.Render("Location: " + issue.Location))
		s.WriteString("\n")
	}
	if issue.Category != "" {
		category := "Category: " + issue.Category
		if c := model.FormatConfidence(issue.AIConfidence); c != "" {
			category += " (AI " + c + ")"
		}
		s.WriteString(labelStyle.Render(category))
		s.WriteString("\n")
	}
	s.WriteString(renderTimeline(issue.EffectiveStatus()))
	s.WriteString("\n")

	switch {
	case m.isNewIssue(issue):
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true).Render("NEW SINCE LAST VISIT"))
		s.WriteString("\n")
	case m.isChangedIssue(issue):
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true).Render("CHANGED SINCE LAST VISIT"))
		s.WriteString("\n")
		for _, change := range m.changes.ChangedIssues[issue.Key()] {
			s.WriteString(fmt.Sprintf("  • %s changed from '%s' to '%s'\n", change.Field, change.OldValue, change.NewValue))
		}
	}

	if m.loader != nil && m.loader.IssueID() == issue.Key() {
		s.WriteString(m.renderComments())
	}
	return s.String()
}

func renderTimeline(status model.Status) string {
	if status == model.StatusRejected {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Render("Rejected")
	}
	reached := model.TimelineIndex(status)
	var steps []string
	for i, step := range model.Timeline {
		marker := "○"
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
		if i <= reached {
			marker = "●"
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
		}
		steps = append(steps, style.Render(marker+" "+step.Label()))
	}
	return strings.Join(steps, " → ")
}

func (m Model) renderComments() string {
	var s strings.Builder
	s.WriteString("\n")
	switch {
	case m.commentState.Loading && !m.commentState.Loaded:
		s.WriteString(m.spinner.View() + " Loading comments…\n")
	case m.commentState.Err != nil:
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Render("Failed to fetch comments"))
		s.WriteString("\n")
	case len(m.commentState.Comments) == 0:
		s.WriteString("No comments yet\n")
	default:
		for _, c := range m.commentState.Comments {
			author := c.AuthorName
			if author == "" {
				author = "Anonymous"
			}
			s.WriteString(fmt.Sprintf("%s: %s\n", lipgloss.NewStyle().Bold(true).Render(author), c.Text))
		}
	}
	return s.String()
}
