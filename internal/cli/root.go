package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"remindd/internal/app"
	"remindd/internal/config"
	"remindd/internal/store"
	"remindd/pkg/logx"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Config  string
	Verbose bool
	Format  string // "text" | "json"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the remindd command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "remindd",
		Short: "remindd - event reminder daemon",
		Long:  "Schedules a 24-hour and a 1-hour reminder for every future event in the event store.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to config file (json|yaml); empty uses defaults")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTriggersCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))

	return cmd
}

// logger returns a stderr logger for one-shot commands; quiet unless --verbose.
func (o *RootOptions) logger() logx.Logger {
	if !o.Verbose {
		return logx.Nop()
	}
	return logx.NewWriter(logx.Stderr(), "debug")
}

func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// openStore loads the config and opens its store.
func (o *RootOptions) openStore() (*config.Config, store.Store, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := app.OpenStore(cfg, o.logger())
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open event store", err)
	}
	return cfg, st, nil
}
