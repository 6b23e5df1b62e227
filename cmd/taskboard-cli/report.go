package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/example/taskboard/domain/metrics"
	"github.com/example/taskboard/modules/api"
)

// getJSON fetches a REST endpoint and decodes a 2xx body into out. Error
// bodies are decoded as api.ErrorResponse.
func getJSON(o *options, path string, query url.Values, out any) ([]byte, error) {
	endpoint, err := o.apiURL(path, query)
	if err != nil {
		return nil, err
	}

	code, body, errs := fiber.Get(endpoint).Timeout(o.timeout).Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("GET %s: %w", endpoint, errors.Join(errs...))
	}

	if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
		var e api.ErrorResponse
		if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
			return nil, fmt.Errorf("server: %s (%d)", e.Message, code)
		}
		return nil, fmt.Errorf("server: unexpected status %d", code)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return body, nil
}

func metricsCmd(o *options) *cobra.Command {
	var (
		window int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show the flow metrics dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if window < 1 || window > metrics.MaxWindowDays {
				return fmt.Errorf("window must be between 1 and %d days", metrics.MaxWindowDays)
			}

			var d metrics.Dashboard
			body, err := getJSON(o, "/metrics", url.Values{"window": {strconv.Itoa(window)}}, &d)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				fmt.Fprintln(out, string(body))
				return nil
			}
			fmt.Fprint(out, renderDashboard(d))
			return nil
		},
	}

	cmd.Flags().IntVarP(&window, "window", "w", metrics.DefaultWindowDays, "Window in days (1-365)")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")

	return cmd
}

func statusAtCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status-at <id> <time>",
		Short: "Show the status a task held at a point in time",
		Long: `Reconstruct a task's status from its history.

The time is either an RFC3339 timestamp or a date (YYYY-MM-DD), which
is read as the end of that day in UTC.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseAt(args[1])
			if err != nil {
				return err
			}

			var resp api.StatusAtResponse
			query := url.Values{"at": {at.Format(time.RFC3339Nano)}}
			if _, err := getJSON(o, "/tasks/"+url.PathEscape(args[0])+"/status", query, &resp); err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), renderStatusAt(resp))
			return nil
		},
	}
}

// parseAt accepts RFC3339 or a calendar date meaning the end of that day.
func parseAt(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse(metrics.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC3339 or YYYY-MM-DD", raw)
	}
	return d.Add(24*time.Hour - time.Nanosecond), nil
}
