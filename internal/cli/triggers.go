package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"remindd/internal/reminder"
)

// TriggersOptions holds flags for the triggers command.
type TriggersOptions struct {
	*RootOptions

	// Now overrides the current time (for testing).
	Now func() time.Time
}

// TriggerView is one row of triggers output.
type TriggerView struct {
	ID      string    `json:"id"`
	EventID string    `json:"event_id"`
	Tag     string    `json:"tag"`
	FireAt  time.Time `json:"fire_at"`
}

// TriggersResult is the triggers command output.
type TriggersResult struct {
	Events   int               `json:"events"`
	Pending  []TriggerView     `json:"pending"`
	Dropped  int               `json:"dropped"`
	Failures map[string]string `json:"failures,omitempty"`
}

// NewTriggersCommand creates the triggers command.
func NewTriggersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TriggersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "triggers",
		Short: "List the reminders that would be pending now",
		Long: `Load every event from the store and print the reminders a daemon started
now would schedule. Nothing fires.

Example:
  remindd triggers --config ./remindd.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := listTriggers(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), opts.Format, res, func(w io.Writer) error {
				return writeTriggersText(w, res)
			})
		},
	}
	return cmd
}

func listTriggers(ctx context.Context, opts *TriggersOptions) (*TriggersResult, error) {
	cfg, st, err := opts.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid timezone", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	events, err := st.All(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read events", err)
	}

	// An engine without a running loop only computes the pending set.
	eng := reminder.NewEngine(reminder.Config{Location: loc}, reminder.Options{
		Clock: opts.Now,
		Log:   opts.logger(),
	})
	rep := eng.Rehydrate(events)

	res := &TriggersResult{Events: rep.Events, Dropped: rep.Dropped, Pending: []TriggerView{}}
	for _, t := range eng.Pending() {
		res.Pending = append(res.Pending, TriggerView{
			ID:      t.ID,
			EventID: t.EventID,
			Tag:     t.Offset.Tag,
			FireAt:  t.FireAt.In(loc),
		})
	}
	if len(rep.Failed) > 0 {
		res.Failures = make(map[string]string, len(rep.Failed))
		for id, ferr := range rep.Failed {
			res.Failures[id] = ferr.Error()
		}
	}
	return res, nil
}

func writeTriggersText(w io.Writer, res *TriggersResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTAG\tFIRE AT")
	for _, t := range res.Pending {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Tag, t.FireAt.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d events, %d pending, %d dropped\n", res.Events, len(res.Pending), res.Dropped)

	ids := make([]string, 0, len(res.Failures))
	for id := range res.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "failed %s: %s\n", id, res.Failures[id])
	}
	return nil
}
