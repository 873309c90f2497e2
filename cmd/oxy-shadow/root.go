package main

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type rootOptions struct {
	verbosity int
	console   bool
	log       logr.Logger
	sync      func() error
}

func newRootCommand() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Run headless shadow and reflective shadow map pipelines",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setupLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.sync != nil {
				_ = o.sync()
			}
		},
	}
	cmd.PersistentFlags().CountVarP(&o.verbosity, "verbose", "v", "log verbosity, repeat for more detail")
	cmd.PersistentFlags().BoolVar(&o.console, "console", true, "human readable log lines instead of JSON")

	cmd.AddCommand(newRunCommand(o), newFormatsCommand(o), newSettingsCommand(o))
	return cmd
}

// setupLogger builds the zap logger behind every component's logr.Logger.
// Each -v lowers the zap level by one so V(n) lines appear at -v repeated n times.
func (o *rootOptions) setupLogger() error {
	cfg := zap.NewProductionConfig()
	if o.console {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-o.verbosity))
	if o.verbosity == 0 {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	z, err := cfg.Build()
	if err != nil {
		return err
	}
	o.log = zapr.NewLogger(z).WithName(appName)
	o.sync = z.Sync
	return nil
}
