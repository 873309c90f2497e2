package main

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-shadow/engine/frame"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting"
	"github.com/Carmen-Shannon/oxy-shadow/engine/lighting/pool"
	"github.com/Carmen-Shannon/oxy-shadow/internal/config"
	"github.com/Carmen-Shannon/oxy-shadow/internal/report"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

type settingsOptions struct {
	*rootOptions
	settings string
	profile  string
}

func newSettingsCommand(root *rootOptions) *cobra.Command {
	o := &settingsOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Validate a shadow settings file against a capability profile and list the usable entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}
	cmd.Flags().StringVar(&o.settings, "settings", "", "shadow settings properties file, empty for the built-in table")
	cmd.Flags().StringVar(&o.profile, "capabilities", "desktop", "capability profile: desktop or minimal")
	return cmd
}

func (o *settingsOptions) run(cmd *cobra.Command) error {
	desc := &config.Scene{Capabilities: o.profile}
	r, err := desc.NewRenderer(o.log)
	if err != nil {
		return err
	}

	opts := []lighting.ManagerBuilderOption{lighting.WithLogger(o.log)}
	if o.settings != "" {
		opts = append(opts, lighting.WithShadowSettingsFile(o.settings))
	}
	m := lighting.NewManager(frame.NewContext(r, frame.NewClock(), o.log), opts...)
	if err := m.BeginShadowConfigure(pool.DefaultConfig()); err != nil {
		return err
	}
	loadErr := m.EndShadowConfigure()

	report.Settings(cmd.OutOrStdout(), m.ShadowSettings())
	for _, e := range multierr.Errors(loadErr) {
		fmt.Fprintf(cmd.ErrOrStderr(), "rejected: %v\n", e)
	}
	if loadErr != nil {
		return fmt.Errorf("%d settings problems", len(multierr.Errors(loadErr)))
	}
	return nil
}
