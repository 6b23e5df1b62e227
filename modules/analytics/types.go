package analytics

import (
	"github.com/example/taskboard/domain/metrics"
	"github.com/example/taskboard/modules/board"
)

// DashboardRequest is the request for the dashboard service.
type DashboardRequest struct {
	WindowDays int `json:"window_days"`
}

// DashboardResponse is the response for the dashboard service.
type DashboardResponse struct {
	board.Result
	Dashboard *metrics.Dashboard `json:"dashboard,omitempty"`
	Cached    bool               `json:"cached"`
}
