package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/example/taskboard/domain/task"
)

// RecentLimit is how many recently updated tasks the dashboard lists.
const RecentLimit = 5

// UnassignedLabel groups tasks with no assignee.
const UnassignedLabel = "Unassigned"

// Velocity labels for category performance.
const (
	VelocityHigh   = "High"
	VelocityMedium = "Medium"
	VelocityLow    = "Low"
)

// Summary holds the headline numbers of the board.
type Summary struct {
	Total             int     `json:"total"`
	Todo              int     `json:"todo"`
	InProgress        int     `json:"inprogress"`
	Done              int     `json:"done"`
	Active            int     `json:"active"`
	CompletionRate    int     `json:"completionRate"`
	AvgLeadDays       float64 `json:"avgLeadDays"`
	AvgCycleDays      float64 `json:"avgCycleDays"`
	AvgFlowEfficiency int     `json:"avgFlowEfficiency"`
}

// CategoryStats is the per-category performance row.
type CategoryStats struct {
	Category      task.Category `json:"category"`
	Total         int           `json:"total"`
	Completed     int           `json:"completed"`
	CompletionPct int           `json:"completionPct"`
	Velocity      string        `json:"velocity"`
}

// Bucket is one slice of a distribution.
type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Dashboard bundles the summary tables with the time-series report.
type Dashboard struct {
	GeneratedAt time.Time       `json:"generatedAt"`
	Summary     Summary         `json:"summary"`
	Categories  []CategoryStats `json:"categories"`
	ByAssignee  []Bucket        `json:"byAssignee"`
	ByPriority  []Bucket        `json:"byPriority"`
	Recent      []task.Task     `json:"recent"`
	Report      Report          `json:"report"`
}

// BuildDashboard computes the report and every summary table.
func BuildDashboard(tasks []task.Task, windowDays int, now time.Time) Dashboard {
	report := Compute(tasks, windowDays, now)
	return Dashboard{
		GeneratedAt: now,
		Summary:     Summarize(tasks, report.Timings),
		Categories:  ByCategory(tasks),
		ByAssignee:  ByAssignee(tasks),
		ByPriority:  ByPriority(tasks),
		Recent:      Recent(tasks, RecentLimit),
		Report:      report,
	}
}

// Summarize counts tasks per status and averages the completed timings.
func Summarize(tasks []task.Task, timings []Timing) Summary {
	s := Summary{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case task.StatusTodo:
			s.Todo++
		case task.StatusInProgress:
			s.InProgress++
		case task.StatusDone:
			s.Done++
		}
	}
	s.Active = s.Todo + s.InProgress
	s.CompletionRate = percent(s.Done, s.Total)

	if len(timings) > 0 {
		var lead, cycle, eff int
		for _, tm := range timings {
			lead += tm.LeadDays
			cycle += tm.CycleDays
			eff += tm.FlowEfficiency
		}
		n := float64(len(timings))
		s.AvgLeadDays = roundTenth(float64(lead) / n)
		s.AvgCycleDays = roundTenth(float64(cycle) / n)
		s.AvgFlowEfficiency = int(math.Round(float64(eff) / n))
	}
	return s
}

// ByCategory reports every category, including empty ones, in fixed order.
func ByCategory(tasks []task.Task) []CategoryStats {
	index := make(map[task.Category]int, len(task.Categories))
	out := make([]CategoryStats, len(task.Categories))
	for i, c := range task.Categories {
		index[c] = i
		out[i].Category = c
	}
	for _, t := range tasks {
		i, ok := index[t.Category]
		if !ok {
			continue
		}
		out[i].Total++
		if t.Status == task.StatusDone {
			out[i].Completed++
		}
	}
	for i := range out {
		out[i].CompletionPct = percent(out[i].Completed, out[i].Total)
		out[i].Velocity = velocity(out[i].Completed)
	}
	return out
}

// ByAssignee counts tasks per assignee, largest group first.
func ByAssignee(tasks []task.Task) []Bucket {
	counts := make(map[string]int)
	for _, t := range tasks {
		label := t.AssigneeName()
		if label == "" {
			label = UnassignedLabel
		}
		counts[label]++
	}
	out := make([]Bucket, 0, len(counts))
	for label, n := range counts {
		out = append(out, Bucket{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// ByPriority counts tasks per priority from high to low.
func ByPriority(tasks []task.Task) []Bucket {
	out := make([]Bucket, len(task.Priorities))
	index := make(map[task.Priority]int, len(task.Priorities))
	for i := range task.Priorities {
		p := task.Priorities[len(task.Priorities)-1-i]
		index[p] = i
		out[i].Label = string(p)
	}
	for _, t := range tasks {
		if i, ok := index[t.Priority]; ok {
			out[i].Count++
		}
	}
	return out
}

// Recent returns up to limit tasks, most recently updated first.
func Recent(tasks []task.Task, limit int) []task.Task {
	sorted := make([]task.Task, len(tasks))
	for i, t := range tasks {
		sorted[i] = t.Clone()
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func velocity(completed int) string {
	switch {
	case completed > 2:
		return VelocityHigh
	case completed > 0:
		return VelocityMedium
	}
	return VelocityLow
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
