package main

import (
	"github.com/Carmen-Shannon/oxy-shadow/internal/config"
	"github.com/Carmen-Shannon/oxy-shadow/internal/report"
	"github.com/spf13/cobra"
)

func newFormatsCommand(root *rootOptions) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List the buffer formats a capability profile supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caps, err := config.Capabilities(profile)
			if err != nil {
				return err
			}
			report.Formats(cmd.OutOrStdout(), caps)
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "capabilities", "desktop", "capability profile: desktop or minimal")
	return cmd
}
