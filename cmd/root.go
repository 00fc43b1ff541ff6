package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ehn4602/tag2tag-simulator/sim"
	"github.com/ehn4602/tag2tag-simulator/sim/observability"
	"github.com/ehn4602/tag2tag-simulator/sim/scenario"
)

var (
	// CLI flags shared by every subcommand
	scenarioPath string // JSON scenario: exciter, tags, states, events
	configPath   string // Optional YAML engine config
	logLevel     string // Log verbosity level
	logFormat    string // Log record format (text or json)
	logFile      string // Log destination, default stderr

	// Engine overrides; explicit flags win over the YAML config
	horizon          float64 // Simulated seconds to run for
	feedbackInterval float64 // Channel sampling period in seconds, 0 disables
	seed             int64   // Master RNG seed
	noiseStd         float64 // Detector noise standard deviation in volts
	solver           string  // Channel model: self-consistent or single-bounce

	// CLI flags for the run subcommand
	metricsAddr string // Optional prometheus /metrics listen address
	savePath    string // Optional path to write the final scenario snapshot
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "tag2tag-sim",
	Short: "Discrete-event simulator for backscatter tag networks",
}

// setupLogging configures the global logger from the CLI flags and
// returns it.
func setupLogging() *logrus.Logger {
	log := logrus.StandardLogger()
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	log.SetLevel(level)

	switch logFormat {
	case "text":
		// logrus default
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.Fatalf("Invalid log format %q (want text or json)", logFormat)
	}

	if logFile != "" {
		f, err := os.Create(logFile)
		if err != nil {
			logrus.Fatalf("Cannot open log file: %v", err)
		}
		log.SetOutput(f)
	}
	return log
}

// engineConfig assembles the engine configuration: the YAML file when
// given, with any explicitly set flag overriding its fields.
func engineConfig() (sim.Config, error) {
	cfg := sim.Config{
		Horizon:          horizon,
		FeedbackInterval: feedbackInterval,
		Seed:             seed,
		NoiseStd:         noiseStd,
		Solver:           solver,
	}
	if configPath == "" {
		return cfg, nil
	}
	loaded, err := sim.LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	flags := rootCmd.PersistentFlags()
	if flags.Changed("horizon") {
		loaded.Horizon = horizon
	}
	if flags.Changed("feedback-interval") {
		loaded.FeedbackInterval = feedbackInterval
	}
	if flags.Changed("seed") {
		loaded.Seed = seed
	}
	if flags.Changed("noise-std") {
		loaded.NoiseStd = noiseStd
	}
	if flags.Changed("solver") {
		loaded.Solver = solver
	}
	return *loaded, nil
}

// buildSimulation loads the scenario and assembles the simulation with
// the simulated-time logging hook attached.
func buildSimulation(log *logrus.Logger) (*sim.Simulation, error) {
	if scenarioPath == "" {
		return nil, fmt.Errorf("no scenario given, use --scenario")
	}
	cfg, err := engineConfig()
	if err != nil {
		return nil, err
	}
	sc, err := scenario.LoadFile(scenarioPath)
	if err != nil {
		return nil, err
	}
	s, err := sc.Build(cfg, log)
	if err != nil {
		return nil, err
	}
	log.AddHook(sim.NewClockHook(s.Now))
	return s, nil
}

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tag network simulation",
	Run: func(cmd *cobra.Command, args []string) {
		log := setupLogging()

		s, err := buildSimulation(log)
		if err != nil {
			logrus.Fatalf("Cannot build simulation: %v", err)
		}

		if metricsAddr != "" {
			if err := observability.Serve(metricsAddr, observability.NewCollector(s.Metrics), log); err != nil {
				logrus.Fatalf("Cannot start metrics listener: %v", err)
			}
		}

		logrus.Infof("Starting simulation: %d tags, horizon=%gs, feedback interval=%gs",
			s.Manager.Len(), s.Horizon, s.Feedback.Interval())
		startTime := time.Now()

		if err := s.Run(); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		s.Metrics.Print(s.Clock, s.Manager.Engine().Stats())

		if savePath != "" {
			if err := scenario.SaveFile(savePath, s); err != nil {
				logrus.Fatalf("Cannot save scenario snapshot: %v", err)
			}
			logrus.Infof("Final scenario written to %s", savePath)
		}
		logrus.Infof("Simulation complete in %s.", time.Since(startTime).Round(time.Millisecond))
	},
}

// validateCmd runs every load- and prepare-time check without advancing
// simulated time, so configuration errors surface on their own.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a scenario and engine config without running",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		s, err := buildSimulation(logrus.StandardLogger())
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		if err := s.ValidateEvents(); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		fmt.Printf("Scenario OK: %d tag(s), %d state(s), %d event(s)\n",
			s.Manager.Len(), s.States.Len(), len(s.DomainEvents()))
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&scenarioPath, "scenario", "", "Path to the JSON scenario file")
	pf.StringVar(&configPath, "config", "", "Path to an optional YAML engine config")
	pf.StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	pf.StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	pf.StringVar(&logFile, "log-file", "", "Log destination file (default stderr)")

	pf.Float64Var(&horizon, "horizon", 500, "Simulated time to run for, in seconds")
	pf.Float64Var(&feedbackInterval, "feedback-interval", 0.1, "Channel sampling period in seconds (0 disables)")
	pf.Int64Var(&seed, "seed", 42, "Master RNG seed for detector noise")
	pf.Float64Var(&noiseStd, "noise-std", 0, "Detector noise standard deviation in volts")
	pf.StringVar(&solver, "solver", sim.SolverSelfConsistent, "Channel model (self-consistent, single-bounce)")

	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")
	runCmd.Flags().StringVar(&savePath, "save", "", "Write the final scenario snapshot to this path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
