package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/paulaanasilva/mazephases/internal/config"
	"github.com/paulaanasilva/mazephases/internal/version"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Run overrides
	playgroundFlag bool
	testAppFlag    bool
	itemToPlayFlag bool
	automaticFlag  bool
	itemIDFlag     string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mazephases",
	Short: "Phase loader for the maze puzzle game",
	Long: `mazephases decides which phases a run of the maze game plays.

Phases come from the playground item service when the run asks for it and
fall back to the built-in set otherwise. The serve command hands them out
over HTTP one at a time.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to mazephases.yaml (default: built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	addRunFlags(serveCmd)
	addRunFlags(loadCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(versionCmd)
}

// addRunFlags registers the per-run switches that override the run: section.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&playgroundFlag, "playground", false, "Load the configured playground item")
	cmd.Flags().BoolVar(&testAppFlag, "test-application", false, "Send the game client to the first test application item")
	cmd.Flags().BoolVar(&itemToPlayFlag, "item-to-play", false, "Load a single item to play")
	cmd.Flags().BoolVar(&automaticFlag, "automatic-testing", false, "Use the automatic testing phase set on fallback")
	cmd.Flags().StringVar(&itemIDFlag, "item-id", "", "Playground item id")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config, or the defaults when it is not given, and
// applies the run flags the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("playground") {
		cfg.Run.PlaygroundTest = playgroundFlag
	}
	if flags.Changed("test-application") {
		cfg.Run.TestApplication = testAppFlag
	}
	if flags.Changed("item-to-play") {
		cfg.Run.ItemToPlay = itemToPlayFlag
	}
	if flags.Changed("automatic-testing") {
		cfg.Run.AutomaticTesting = automaticFlag
	}
	if flags.Changed("item-id") {
		cfg.Run.ItemID = itemIDFlag
	}
	return cfg, nil
}
