package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/taskboard/client"
	"github.com/example/taskboard/domain/task"
)

const clearScreen = "\033[H\033[2J"

func newSession(o *options) (*client.Session, error) {
	wsURL, err := o.wsURL()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return client.NewSession(client.NewWSDialer(wsURL), client.WithLogger(logger))
}

// withSession connects, waits for the first snapshot and runs fn with a
// request-scoped context.
func withSession(ctx context.Context, o *options, fn func(ctx context.Context, s *client.Session) error) error {
	s, err := newSession(o)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	waitCtx, waitCancel := context.WithTimeout(ctx, o.timeout)
	defer waitCancel()
	if err := s.WaitLive(waitCtx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", o.server, err)
	}

	opCtx, opCancel := context.WithTimeout(ctx, o.timeout)
	defer opCancel()
	return fn(opCtx, s)
}

func watchCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show the live board until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(o)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = s.Run(ctx)
			}()

			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					<-done
					return nil
				case v := <-s.Views():
					fmt.Fprint(out, clearScreen+renderBoard(v))
				}
			}
		},
	}
}

// taskFlags are the editable task fields shared by create and update.
type taskFlags struct {
	title       string
	description string
	status      string
	priority    string
	category    string
	assignee    string
}

func (f *taskFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "Task title")
	cmd.Flags().StringVar(&f.description, "description", "", "Task description")
	cmd.Flags().StringVar(&f.status, "status", "", "Status (todo, inprogress, done)")
	cmd.Flags().StringVar(&f.priority, "priority", "", "Priority (low, medium, high)")
	cmd.Flags().StringVar(&f.category, "category", "", "Category (bug, feature, enhancement, design, refactor, documentation, testing)")
	cmd.Flags().StringVar(&f.assignee, "assignee", "", "Assignee; empty to unassign on update")
}

var taskFlagNames = []string{"title", "description", "status", "priority", "category", "assignee"}

func (f *taskFlags) anyChanged(cmd *cobra.Command) bool {
	for _, name := range taskFlagNames {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

func (f *taskFlags) createIntent(cmd *cobra.Command) task.CreateIntent {
	in := task.CreateIntent{
		Title:       f.title,
		Description: f.description,
		Status:      task.Status(f.status),
		Priority:    task.Priority(f.priority),
		Category:    task.Category(f.category),
	}
	if cmd.Flags().Changed("assignee") {
		a := f.assignee
		in.Assignee = &a
	}
	return in
}

// updateIntent sets only the fields whose flags were given.
func (f *taskFlags) updateIntent(cmd *cobra.Command, id string) task.UpdateIntent {
	in := task.UpdateIntent{ID: id}
	changed := cmd.Flags().Changed
	if changed("title") {
		in.Title = task.Some(f.title)
	}
	if changed("description") {
		in.Description = task.Some(f.description)
	}
	if changed("status") {
		in.Status = task.Some(task.Status(f.status))
	}
	if changed("priority") {
		in.Priority = task.Some(task.Priority(f.priority))
	}
	if changed("category") {
		in.Category = task.Some(task.Category(f.category))
	}
	if changed("assignee") {
		var a *string
		if f.assignee != "" {
			a = &f.assignee
		}
		in.Assignee = task.Some(a)
	}
	return in
}

func createCmd(o *options) *cobra.Command {
	flags := &taskFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := flags.createIntent(cmd)
			if err := in.Validate(); err != nil {
				return err
			}
			return withSession(cmd.Context(), o, func(ctx context.Context, s *client.Session) error {
				ack, err := s.Create(ctx, in)
				if err != nil {
					return err
				}
				if ack.Task != nil {
					fmt.Fprint(cmd.OutOrStdout(), renderTask(*ack.Task))
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func updateCmd(o *options) *cobra.Command {
	flags := &taskFlags{}
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !flags.anyChanged(cmd) {
				return errors.New("nothing to update: pass at least one field flag")
			}
			in := flags.updateIntent(cmd, args[0])
			if err := in.Validate(); err != nil {
				return err
			}
			return withSession(cmd.Context(), o, func(ctx context.Context, s *client.Session) error {
				ack, err := s.Update(ctx, in)
				if err != nil {
					return err
				}
				if ack.Task != nil {
					fmt.Fprint(cmd.OutOrStdout(), renderTask(*ack.Task))
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func moveCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <status>",
		Short: "Move a task to another column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := task.MoveIntent{TaskID: args[0], NewStatus: task.Status(args[1])}
			if err := in.Validate(); err != nil {
				return err
			}
			return withSession(cmd.Context(), o, func(ctx context.Context, s *client.Session) error {
				ack, err := s.Move(ctx, in.TaskID, in.NewStatus)
				if err != nil {
					return err
				}
				if ack.Task != nil {
					fmt.Fprint(cmd.OutOrStdout(), renderTask(*ack.Task))
				}
				return nil
			})
		},
	}
}

func deleteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), o, func(ctx context.Context, s *client.Session) error {
				ack, err := s.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", ack.TaskID)
				return nil
			})
		},
	}
}

func syncCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch a fresh snapshot and print the board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), o, func(ctx context.Context, s *client.Session) error {
				if _, err := s.Resync(ctx); err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderBoard(s.View()))
				return nil
			})
		},
	}
}
