package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var Version = "dev"

// options are the persistent flags shared by every command.
type options struct {
	server  string
	timeout time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "taskboard",
		Short:         "Command line client for the real-time task board",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultServer := os.Getenv("TASKBOARD_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:3000"
	}
	rootCmd.PersistentFlags().StringVarP(&opts.server, "server", "s", defaultServer, "Server base URL (env TASKBOARD_SERVER)")
	rootCmd.PersistentFlags().DurationVarP(&opts.timeout, "timeout", "t", 10*time.Second, "Timeout for connecting and for each request")

	// Add subcommands
	rootCmd.AddCommand(watchCmd(opts))
	rootCmd.AddCommand(createCmd(opts))
	rootCmd.AddCommand(updateCmd(opts))
	rootCmd.AddCommand(moveCmd(opts))
	rootCmd.AddCommand(deleteCmd(opts))
	rootCmd.AddCommand(syncCmd(opts))
	rootCmd.AddCommand(metricsCmd(opts))
	rootCmd.AddCommand(statusAtCmd(opts))

	return rootCmd
}

// wsURL derives the websocket endpoint from the server URL.
func (o *options) wsURL() (string, error) {
	u, err := o.parseServer()
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// apiURL builds a REST endpoint URL under /api/v1.
func (o *options) apiURL(path string, query url.Values) (string, error) {
	u, err := o.parseServer()
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1" + path
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (o *options) parseServer() (*url.URL, error) {
	u, err := url.Parse(o.server)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", o.server, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http, https, ws or wss", o.server)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: missing host", o.server)
	}
	return u, nil
}
