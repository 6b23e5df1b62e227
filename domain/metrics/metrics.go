// Package metrics derives workflow charts from task status histories.
//
// Every function here is pure: the caller supplies the task set and the
// reference time, so identical inputs always produce identical reports.
package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/example/taskboard/domain/task"
)

// DefaultWindowDays is the trailing window used when none is requested.
const DefaultWindowDays = 30

// MaxWindowDays bounds the window a caller may request.
const MaxWindowDays = 365

const day = 24 * time.Hour

// DateLayout formats the calendar-day keys of every series.
const DateLayout = "2006-01-02"

// FlowPoint is one day of the cumulative flow diagram.
type FlowPoint struct {
	Date       string `json:"date"`
	Todo       int    `json:"todo"`
	InProgress int    `json:"inprogress"`
	Done       int    `json:"done"`
}

// BurndownPoint is the number of tasks not yet completed by the end of a day.
type BurndownPoint struct {
	Date      string `json:"date"`
	Remaining int    `json:"remaining"`
}

// ThroughputPoint counts tasks completed on a day.
type ThroughputPoint struct {
	Date      string `json:"date"`
	Completed int    `json:"completed"`
}

// WIPPoint counts tasks in progress at the end of a day.
type WIPPoint struct {
	Date       string `json:"date"`
	InProgress int    `json:"inprogress"`
}

// Timing holds lead and cycle time for one completed task.
type Timing struct {
	TaskID         string    `json:"taskId"`
	Title          string    `json:"title"`
	CompletedAt    time.Time `json:"completedAt"`
	LeadDays       int       `json:"leadDays"`
	CycleDays      int       `json:"cycleDays"`
	FlowEfficiency int       `json:"flowEfficiency"`
}

// AgingItem is an in-progress task and how long it has been there.
type AgingItem struct {
	TaskID   string        `json:"taskId"`
	Title    string        `json:"title"`
	Assignee string        `json:"assignee"`
	Priority task.Priority `json:"priority"`
	Since    time.Time     `json:"since"`
	AgeDays  int           `json:"ageDays"`
}

// Report is the full set of time-bucketed series for one window.
type Report struct {
	WindowDays     int               `json:"windowDays"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	CumulativeFlow []FlowPoint       `json:"cumulativeFlow"`
	Burndown       []BurndownPoint   `json:"burndown"`
	Throughput     []ThroughputPoint `json:"throughput"`
	WIP            []WIPPoint        `json:"wip"`
	Timings        []Timing          `json:"timings"`
	AgingWIP       []AgingItem       `json:"agingWip"`
}

// ClampWindow maps a requested window onto the supported range.
func ClampWindow(days int) int {
	switch {
	case days <= 0:
		return DefaultWindowDays
	case days > MaxWindowDays:
		return MaxWindowDays
	}
	return days
}

// DaysBetween returns the whole days from a to b, rounding half up.
// Negative spans count as zero.
func DaysBetween(a, b time.Time) int {
	d := math.Floor(b.Sub(a).Hours()/24 + 0.5)
	if d < 0 {
		return 0
	}
	return int(d)
}

// FlowEfficiency is cycle time as a rounded percentage of lead time, and 100
// for tasks completed the day they were created.
func FlowEfficiency(leadDays, cycleDays int) int {
	if leadDays == 0 {
		return 100
	}
	return int(math.Round(float64(cycleDays) / float64(leadDays) * 100))
}

// Window returns the UTC start of each day in the trailing window ending on
// the day containing now.
func Window(windowDays int, now time.Time) []time.Time {
	windowDays = ClampWindow(windowDays)
	today := startOfDay(now)
	days := make([]time.Time, windowDays)
	for i := range days {
		days[i] = today.AddDate(0, 0, i-(windowDays-1))
	}
	return days
}

// Compute builds every series for the window ending on the day of now.
// A day is evaluated at its last instant, so anything that happened on that
// calendar day counts toward it.
func Compute(tasks []task.Task, windowDays int, now time.Time) Report {
	days := Window(windowDays, now)
	r := Report{
		WindowDays:     len(days),
		From:           days[0].Format(DateLayout),
		To:             days[len(days)-1].Format(DateLayout),
		CumulativeFlow: make([]FlowPoint, len(days)),
		Burndown:       make([]BurndownPoint, len(days)),
		Throughput:     make([]ThroughputPoint, len(days)),
		WIP:            make([]WIPPoint, len(days)),
	}

	histories := make([]task.History, len(tasks))
	completions := make([]time.Time, len(tasks))
	completed := make([]bool, len(tasks))
	for i, t := range tasks {
		histories[i] = task.HistoryOf(t)
		completions[i], completed[i] = t.CompletionTime()
	}

	for di, d := range days {
		key := d.Format(DateLayout)
		endOfDay := d.Add(day - time.Nanosecond)
		next := d.Add(day)

		flow := FlowPoint{Date: key}
		doneBy, doneOn := 0, 0
		for i := range tasks {
			switch s, ok := histories[i].StatusAt(endOfDay); {
			case !ok:
			case s == task.StatusTodo:
				flow.Todo++
			case s == task.StatusInProgress:
				flow.InProgress++
			case s == task.StatusDone:
				flow.Done++
			}
			if completed[i] && completions[i].Before(next) {
				doneBy++
				if !completions[i].Before(d) {
					doneOn++
				}
			}
		}

		r.CumulativeFlow[di] = flow
		r.WIP[di] = WIPPoint{Date: key, InProgress: flow.InProgress}
		r.Burndown[di] = BurndownPoint{Date: key, Remaining: len(tasks) - doneBy}
		r.Throughput[di] = ThroughputPoint{Date: key, Completed: doneOn}
	}

	r.Timings = Timings(tasks)
	r.AgingWIP = AgingWIP(tasks, now)
	return r
}

// Timings returns lead time, cycle time and flow efficiency for every task
// currently in done, oldest completion first. Reopened tasks keep their
// completedAt but are not counted.
func Timings(tasks []task.Task) []Timing {
	out := make([]Timing, 0)
	for _, t := range tasks {
		if t.Status != task.StatusDone {
			continue
		}
		completedAt, ok := t.CompletionTime()
		if !ok {
			continue
		}
		lead := DaysBetween(t.CreatedAt, completedAt)
		cycle := DaysBetween(CycleStart(t), completedAt)
		out = append(out, Timing{
			TaskID:         t.ID,
			Title:          t.Title,
			CompletedAt:    completedAt,
			LeadDays:       lead,
			CycleDays:      cycle,
			FlowEfficiency: FlowEfficiency(lead, cycle),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.Before(out[j].CompletedAt)
	})
	return out
}

// CycleStart is when active work began: startedAt, else the first
// inprogress entry in the history, else creation.
func CycleStart(t task.Task) time.Time {
	if t.StartedAt != nil {
		return *t.StartedAt
	}
	if at, ok := task.HistoryOf(t).FirstEntered(task.StatusInProgress); ok {
		return at
	}
	return t.CreatedAt
}

// AgingWIP lists tasks currently in progress, longest-open first.
func AgingWIP(tasks []task.Task, now time.Time) []AgingItem {
	out := make([]AgingItem, 0)
	for _, t := range tasks {
		if t.Status != task.StatusInProgress {
			continue
		}
		since, ok := task.HistoryOf(t).LastEntered(task.StatusInProgress)
		if !ok {
			since = t.CreatedAt
		}
		out = append(out, AgingItem{
			TaskID:   t.ID,
			Title:    t.Title,
			Assignee: t.AssigneeName(),
			Priority: t.Priority,
			Since:    since,
			AgeDays:  DaysBetween(since, now),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AgeDays != out[j].AgeDays {
			return out[i].AgeDays > out[j].AgeDays
		}
		return out[i].Since.Before(out[j].Since)
	})
	return out
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
