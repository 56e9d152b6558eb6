// Package cli wires the socialload commands together.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/socialload/internal/config"
	"github.com/wesleyorama2/socialload/internal/log"
)

var version = "0.1.0"

// ErrThresholdsFailed is returned by run when at least one threshold did
// not hold. The summary has already been printed.
var ErrThresholdsFailed = errors.New("thresholds failed")

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	baseURL   string
	logLevel  string
	logFormat string
	noColor   bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:     "socialload",
		Short:   "Load generator for the DeathStarBench social network",
		Version: version,
		Long: `socialload drives the /wrk2-api endpoints of the DeathStarBench social
network with virtual users: it registers users, has the seed user follow
them, composes posts and reads timelines, then reports latency, status
codes and threshold results.

The target is taken from BASE_URL (default http://localhost:8080) unless
--base-url is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			_ = cmd.Help()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.baseURL, "base-url", "", "social network front end (overrides BASE_URL)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides SOCIALLOAD_LOG_LEVEL)")
	pf.StringVar(&g.logFormat, "log-format", "", "log format: console or json (overrides SOCIALLOAD_LOG_FORMAT)")
	pf.BoolVar(&g.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(newRunCmd(g))
	cmd.AddCommand(newProfilesCmd(g))
	cmd.AddCommand(newSeedCmd(g))
	cmd.AddCommand(newReportCmd(g))
	return cmd
}

// Execute runs the command line and prints any error to stderr.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, ErrThresholdsFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

// resolve reads the environment, applies flag overrides and builds the
// logger.
func (g *globalOptions) resolve(cmd *cobra.Command) (*config.Env, logr.Logger, error) {
	env, err := config.Parse()
	if err != nil {
		return nil, logr.Discard(), fmt.Errorf("invalid environment: %w", err)
	}

	if g.baseURL != "" {
		env.BaseURL = g.baseURL
	}
	if g.logLevel != "" {
		env.LogLevel = g.logLevel
	}
	if g.logFormat != "" {
		env.LogFormat = g.logFormat
	}
	if err := env.Validate(); err != nil {
		return nil, logr.Discard(), err
	}

	logger, err := log.NewZapr(log.Options{
		Level:  env.LogLevel,
		JSON:   env.LogFormat == "json",
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, logr.Discard(), err
	}
	return env, logger, nil
}
