package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"remindd/internal/app"
)

const stopTimeout = 15 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// AppOptions are passed to app.New (for testing).
	AppOptions []app.Option
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reminder daemon",
		Long: `Run the reminder daemon until SIGINT or SIGTERM.

On start every event in the store is loaded and its pending reminders are
scheduled. Reminders whose time already passed are dropped.

Example:
  remindd run --config ./remindd.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), opts)
		},
	}
	return cmd
}

func runDaemon(parent context.Context, opts *RunOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	a, err := app.New(cfg, opts.AppOptions...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build app", err)
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer stopCancel()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return WrapExitError(ExitFailure, "failed to start", err)
	}

	reason := app.StopAppStop
	select {
	case sig := <-sigChan:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		if a.Err() != nil {
			reason = app.StopFatalError
		}
	case <-ctx.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	runErr := a.Err()
	if err := a.Stop(stopCtx, reason); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "daemon stopped with error", runErr)
	}
	return nil
}
