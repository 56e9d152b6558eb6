package cli

import (
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/socialload/internal/output"
)

func newReportCmd(g *globalOptions) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "report FILE",
		Short: "Print the summary of a saved JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := output.ReadArtifact(args[0])
			if err != nil {
				return err
			}

			console := output.NewConsole(output.ConsoleConfig{
				Writer:  cmd.OutOrStdout(),
				NoColor: g.noColor,
			})
			console.PrintArtifact(a)

			if check && !a.Passed {
				return ErrThresholdsFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "exit with status 1 if the saved run failed its thresholds")
	return cmd
}
