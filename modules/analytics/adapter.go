package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/taskboard/domain/metrics"
	"github.com/example/taskboard/domain/task"
)

// AnalyticsPort is the dashboard query available to driving adapters.
type AnalyticsPort interface {
	Dashboard(ctx context.Context, windowDays int) (metrics.Dashboard, error)
}

// analyticsAdapter implements AnalyticsPort over the analytics module's
// services.
type analyticsAdapter struct {
	container mono.ServiceContainer
}

// NewAnalyticsAdapter creates a new adapter for analytics services.
func NewAnalyticsAdapter(container mono.ServiceContainer) AnalyticsPort {
	if container == nil {
		panic("analytics adapter requires non-nil ServiceContainer")
	}
	return &analyticsAdapter{container: container}
}

// Dashboard fetches the dashboard via the dashboard service.
func (a *analyticsAdapter) Dashboard(ctx context.Context, windowDays int) (metrics.Dashboard, error) {
	req := DashboardRequest{WindowDays: windowDays}
	var resp DashboardResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		"dashboard",
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return metrics.Dashboard{}, fmt.Errorf("%w: dashboard service call failed: %w", task.ErrStore, err)
	}
	if err := resp.Err(); err != nil {
		return metrics.Dashboard{}, err
	}
	if resp.Dashboard == nil {
		return metrics.Dashboard{}, fmt.Errorf("%w: empty dashboard response", task.ErrStore)
	}
	return *resp.Dashboard, nil
}
