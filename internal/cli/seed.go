package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/socialload/internal/engine"
	"github.com/wesleyorama2/socialload/internal/profile"
)

func newSeedCmd(g *globalOptions) *cobra.Command {
	var (
		profileName string
		seedUserID  int64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register the seed user without generating load",
		Long: `Register the seed user that follows every user created during a run.
A 400 response means the user already exists and is not an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, logger, err := g.resolve(cmd)
			if err != nil {
				return err
			}

			p, err := profile.Get(profileName)
			if err != nil {
				return err
			}
			if seedUserID > 0 {
				p.Workload.SeedUserID = seedUserID
			}

			eng, err := engine.NewEngine(p, engine.Options{
				BaseURL: env.BaseURL,
				Logger:  logger,
			})
			if err != nil {
				return err
			}

			seed, err := eng.Setup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seed user %d ready at %s\n", seed.SeedUserID, env.BaseURL)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", DefaultProfile, "profile whose workload settings to use")
	cmd.Flags().Int64Var(&seedUserID, "seed-user-id", 0, "seed user id (default from the profile, normally 1)")
	return cmd
}
