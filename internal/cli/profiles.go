package cli

import (
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/socialload/internal/output"
	"github.com/wesleyorama2/socialload/internal/profile"
)

func newProfilesCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in load profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			console := output.NewConsole(output.ConsoleConfig{
				Writer:  cmd.OutOrStdout(),
				NoColor: g.noColor,
			})
			console.PrintProfiles(profile.Builtins())
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show NAME",
		Short: "Print a built-in profile as a YAML profile file",
		Long: `Print a built-in profile in the format accepted by 'socialload run --file'.
Redirect it to a file to use it as the starting point of a custom profile:

  socialload profiles show spike > my-spike.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := profile.Get(args[0])
			if err != nil {
				return err
			}
			data, err := profile.Marshal(p)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	return cmd
}
