package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"remindd/internal/store"
)

// EventResult is the output of add and delete.
type EventResult struct {
	Action string    `json:"action"`
	ID     string    `json:"id"`
	Name   string    `json:"name,omitempty"`
	Date   string    `json:"date,omitempty"`
	When   time.Time `json:"when,omitzero"`
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <id> <name> <date>",
		Short: "Add or update an event",
		Long: `Write an event to the store. An existing event with the same id is replaced.

The date is ISO-8601. Dates without a UTC offset are read in scheduler.timezone.
A running daemon picks the event up on its next resync or store watch.

Example:
  remindd add abc "Team sync" 2030-05-01T10:00:00
  remindd add launch Launch 2030-05-01T10:00:00+02:00`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := addEvent(cmd.Context(), rootOpts, store.EventRecord{ID: args[0], Name: args[1], Date: args[2]})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), rootOpts.Format, res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "added %s %q at %s\n", res.ID, res.Name, res.When.Format(time.RFC3339))
				return err
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an event",
		Long: `Remove an event from the store. Reminders already scheduled by a running
daemon still fire but find no event and are skipped.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := deleteEvent(cmd.Context(), rootOpts, args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), rootOpts.Format, res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "deleted %s\n", res.ID)
				return err
			})
		},
	}
}

func addEvent(ctx context.Context, opts *RootOptions, rec store.EventRecord) (*EventResult, error) {
	cfg, st, err := opts.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid timezone", err)
	}
	when, err := store.ParseDate(rec.Date, loc)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid date", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := st.Put(ctx, rec); err != nil {
		return nil, WrapExitError(ExitFailure, "failed to write event", err)
	}
	return &EventResult{Action: "added", ID: rec.ID, Name: rec.Name, Date: rec.Date, When: when.In(loc)}, nil
}

func deleteEvent(ctx context.Context, opts *RootOptions, id string) (*EventResult, error) {
	_, st, err := opts.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ok, err := st.Delete(ctx, id)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to delete event", err)
	}
	if !ok {
		return nil, NewExitError(ExitFailure, fmt.Sprintf("event %q not found", id))
	}
	return &EventResult{Action: "deleted", ID: id}, nil
}
