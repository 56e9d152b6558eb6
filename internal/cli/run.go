package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/socialload/internal/engine"
	"github.com/wesleyorama2/socialload/internal/output"
	"github.com/wesleyorama2/socialload/internal/profile"
	"github.com/wesleyorama2/socialload/internal/runtime/executor"
)

// DefaultProfile is run when neither --profile nor --file is given.
const DefaultProfile = "load"

// interactiveProgressInterval is the redraw rate of the live view on a
// terminal. Piped output uses engine.DefaultProgressInterval.
const interactiveProgressInterval = time.Second

type runOptions struct {
	profile     string
	file        string
	output      string
	quiet       bool
	metricsAddr string
	seed        uint64
	timeout     time.Duration

	vus      int
	duration time.Duration
	stages   string
}

func newRunCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load profile against the social network",
		Long: `Run a built-in profile or a YAML profile file against the social network.

The seed user is registered first, then virtual users run the profile's
workload mix until the executor finishes. A summary is printed and the
results are written as JSON to the results directory. The command exits
with status 1 when a threshold fails.

Examples:
  socialload run --profile quick
  BASE_URL=http://nginx:8080 socialload run --profile spike --output results/
  socialload run --file read-heavy.yaml --metrics-addr :9090
  socialload run --profile load --stages "30s:10,1m:10,30s:0"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile(cmd, g, o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.profile, "profile", "p", DefaultProfile, "built-in profile to run (see 'socialload profiles')")
	f.StringVarP(&o.file, "file", "f", "", "YAML profile file (replaces --profile)")
	f.StringVarP(&o.output, "output", "o", "", "directory for the JSON results (overrides SOCIALLOAD_RESULTS_DIR)")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "only print pass/fail")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run (overrides SOCIALLOAD_METRICS_ADDR)")
	f.Uint64Var(&o.seed, "seed", 0, "random seed for reproducible workloads (0 = random)")
	f.DurationVar(&o.timeout, "timeout", 0, "per-request timeout (overrides SOCIALLOAD_REQUEST_TIMEOUT and the profile)")
	f.IntVar(&o.vus, "vus", 0, "run a constant number of virtual users instead of the profile's executor")
	f.DurationVar(&o.duration, "duration", 0, "duration of a constant-vus run")
	f.StringVar(&o.stages, "stages", "", "ramping stages as duration:target pairs, e.g. \"30s:10,2m:10,30s:0\"")
	return cmd
}

func runProfile(cmd *cobra.Command, g *globalOptions, o *runOptions) error {
	env, logger, err := g.resolve(cmd)
	if err != nil {
		return err
	}

	p, err := o.loadProfile(cmd)
	if err != nil {
		return err
	}
	if err := o.applyOverrides(cmd, p); err != nil {
		return err
	}

	resultsDir := env.ResultsDir
	if o.output != "" {
		resultsDir = o.output
	}
	metricsAddr := env.MetricsAddr
	if o.metricsAddr != "" {
		metricsAddr = o.metricsAddr
	}
	timeout := env.RequestTimeout
	if o.timeout > 0 {
		timeout = o.timeout
	}

	console := output.NewConsole(output.ConsoleConfig{
		Writer:  cmd.OutOrStdout(),
		Quiet:   o.quiet,
		NoColor: g.noColor,
	})

	opts := engine.Options{
		BaseURL:        env.BaseURL,
		RequestTimeout: timeout,
		MetricsAddr:    metricsAddr,
		Seed:           o.seed,
		Logger:         logger,
	}
	if !o.quiet {
		opts.OnProgress = console.Update
		if console.IsTTY() {
			opts.ProgressInterval = interactiveProgressInterval
		}
	}

	eng, err := engine.NewEngine(p, opts)
	if err != nil {
		return err
	}

	console.PrintHeader(p, env.BaseURL)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stopSignals := stopOnSignal(eng, cancel, logger)
	defer stopSignals()

	result, runErr := eng.Run(ctx)
	if result == nil {
		return runErr
	}

	console.PrintSummary(result)

	path, err := output.WriteArtifact(resultsDir, p.ResultFileName(), result)
	if err != nil {
		logger.Error(err, "failed to write results")
	} else if !o.quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Results written to: %s\n", path)
	}

	if runErr != nil {
		return runErr
	}
	if !result.Passed {
		return ErrThresholdsFailed
	}
	return nil
}

// loadProfile picks the profile from --file or --profile.
func (o *runOptions) loadProfile(cmd *cobra.Command) (*profile.Profile, error) {
	if o.file != "" {
		if cmd.Flags().Changed("profile") {
			return nil, fmt.Errorf("--profile and --file are mutually exclusive")
		}
		return profile.LoadFile(o.file)
	}
	return profile.Get(o.profile)
}

// applyOverrides replaces the profile's executor settings with the ones
// given on the command line.
func (o *runOptions) applyOverrides(cmd *cobra.Command, p *profile.Profile) error {
	flags := cmd.Flags()
	constant := flags.Changed("vus") || flags.Changed("duration")

	if o.stages != "" {
		if constant {
			return fmt.Errorf("--stages cannot be combined with --vus or --duration")
		}
		stages, err := parseStages(o.stages)
		if err != nil {
			return fmt.Errorf("invalid stages format: %w", err)
		}
		p.Executor.Type = executor.TypeRampingVUs
		p.Executor.Stages = stages
		p.Executor.VUs = 0
		p.Executor.Duration = 0
		return nil
	}
	if !constant {
		return nil
	}

	if p.Executor.Type != executor.TypeConstantVUs {
		if !flags.Changed("vus") || !flags.Changed("duration") {
			return fmt.Errorf("profile %s ramps its VUs; give both --vus and --duration to run it at a constant level", p.Name)
		}
		p.Executor.Type = executor.TypeConstantVUs
		p.Executor.Stages = nil
	}
	if flags.Changed("vus") {
		p.Executor.VUs = o.vus
	}
	if flags.Changed("duration") {
		p.Executor.Duration = o.duration
	}
	return nil
}

// stopOnSignal stops the run gracefully on the first interrupt and aborts
// it on the second.
func stopOnSignal(eng *engine.Engine, cancel context.CancelFunc, logger logr.Logger) (stop func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}
		logger.Info("interrupt received, stopping; interrupt again to abort")
		go func() {
			_ = eng.Stop(context.Background())
		}()

		select {
		case <-sigCh:
			logger.Info("aborting")
			cancel()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
