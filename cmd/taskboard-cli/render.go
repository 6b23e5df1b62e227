package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/example/taskboard/client"
	"github.com/example/taskboard/domain/metrics"
	"github.com/example/taskboard/domain/task"
	"github.com/example/taskboard/modules/api"
)

const (
	columnWidth = 34
	barWidth    = 30
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	noticeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	stateStyles = map[client.State]lipgloss.Style{
		client.StateDisconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		client.StateConnecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		client.StateSyncing:      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		client.StateLive:         lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	}

	priorityStyles = map[task.Priority]lipgloss.Style{
		task.PriorityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		task.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		task.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	}
)

var columnStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("8")).
	Padding(0, 1).
	Width(columnWidth)

var columnTitles = map[task.Status]string{
	task.StatusTodo:       "To Do",
	task.StatusInProgress: "In Progress",
	task.StatusDone:       "Done",
}

// renderBoard draws the three columns side by side.
func renderBoard(v client.View) string {
	cols := client.Columns(v.Tasks)

	rendered := make([]string, 0, len(task.Statuses))
	for _, s := range task.Statuses {
		rendered = append(rendered, renderColumn(s, cols[s]))
	}

	header := titleStyle.Render("Taskboard") + "  " + stateStyles[v.State].Render(v.State.String())
	parts := []string{header, lipgloss.JoinHorizontal(lipgloss.Top, rendered...)}
	if v.Notice != "" {
		parts = append(parts, noticeStyle.Render("! "+v.Notice))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
}

func renderColumn(s task.Status, tasks []task.Task) string {
	lines := []string{headerStyle.Render(fmt.Sprintf("%s (%d)", columnTitles[s], len(tasks)))}
	for _, t := range tasks {
		lines = append(lines, renderCard(t))
	}
	return columnStyle.Render(strings.Join(lines, "\n"))
}

func renderCard(t task.Task) string {
	title := truncate(t.Title, columnWidth-10)
	line := priorityStyles[t.Priority].Render(fmt.Sprintf("%-6s", t.Priority)) + " " + title

	meta := shortID(t.ID) + " " + string(t.Category)
	if a := t.AssigneeName(); a != "" {
		meta += " @" + a
	}
	return line + "\n" + mutedStyle.Render(truncate(meta, columnWidth-2))
}

// renderTask prints one task as key/value lines.
func renderTask(t task.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", titleStyle.Render(t.Title), mutedStyle.Render(t.ID))
	fmt.Fprintf(&b, "  %-10s %s\n", "status:", t.Status)
	fmt.Fprintf(&b, "  %-10s %s\n", "priority:", priorityStyles[t.Priority].Render(string(t.Priority)))
	fmt.Fprintf(&b, "  %-10s %s\n", "category:", t.Category)
	if a := t.AssigneeName(); a != "" {
		fmt.Fprintf(&b, "  %-10s %s\n", "assignee:", a)
	}
	if t.Description != "" {
		fmt.Fprintf(&b, "  %-10s %s\n", "details:", t.Description)
	}
	for _, h := range t.StatusHistory {
		fmt.Fprintf(&b, "  %-10s %s %s\n", "history:", h.ChangedAt.Format("2006-01-02 15:04"), h.Status)
	}
	return b.String()
}

func renderStatusAt(r api.StatusAtResponse) string {
	at := r.At.Format("2006-01-02 15:04:05 MST")
	if !r.Known {
		return fmt.Sprintf("%s did not exist at %s\n", r.TaskID, at)
	}
	return fmt.Sprintf("%s was %s at %s\n", r.TaskID, titleStyle.Render(string(r.Status)), at)
}

// renderDashboard prints the summary, category table, throughput bars and
// aging work in progress.
func renderDashboard(d metrics.Dashboard) string {
	var b strings.Builder
	s := d.Summary
	r := d.Report

	fmt.Fprintf(&b, "%s %s\n\n", titleStyle.Render("Flow metrics"),
		mutedStyle.Render(fmt.Sprintf("%s .. %s (%d days)", r.From, r.To, r.WindowDays)))

	b.WriteString(headerStyle.Render("Summary") + "\n")
	fmt.Fprintf(&b, "  %-18s %d (todo %d, in progress %d, done %d)\n", "tasks:", s.Total, s.Todo, s.InProgress, s.Done)
	fmt.Fprintf(&b, "  %-18s %d%%\n", "completion rate:", s.CompletionRate)
	fmt.Fprintf(&b, "  %-18s %.1f days\n", "avg lead time:", s.AvgLeadDays)
	fmt.Fprintf(&b, "  %-18s %.1f days\n", "avg cycle time:", s.AvgCycleDays)
	fmt.Fprintf(&b, "  %-18s %d%%\n\n", "flow efficiency:", s.AvgFlowEfficiency)

	if len(d.Categories) > 0 {
		b.WriteString(headerStyle.Render("Categories") + "\n")
		for _, c := range d.Categories {
			fmt.Fprintf(&b, "  %-14s %3d/%-3d %3d%%  %s\n", c.Category, c.Completed, c.Total, c.CompletionPct, c.Velocity)
		}
		b.WriteString("\n")
	}

	b.WriteString(headerStyle.Render("Throughput") + "\n")
	peak := 0
	for _, p := range r.Throughput {
		peak = max(peak, p.Completed)
	}
	for _, p := range r.Throughput {
		fmt.Fprintf(&b, "  %s %s %d\n", p.Date, barStyle.Render(bar(p.Completed, peak)), p.Completed)
	}

	if len(r.AgingWIP) > 0 {
		b.WriteString("\n" + headerStyle.Render("Aging work in progress") + "\n")
		for _, a := range r.AgingWIP {
			who := a.Assignee
			if who == "" {
				who = "unassigned"
			}
			fmt.Fprintf(&b, "  %3dd  %-30s %s\n", a.AgeDays, truncate(a.Title, 30), mutedStyle.Render(who))
		}
	}
	return b.String()
}

// bar scales n against peak into at most barWidth cells.
func bar(n, peak int) string {
	if peak <= 0 || n <= 0 {
		return ""
	}
	return strings.Repeat("█", max(1, n*barWidth/peak))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
