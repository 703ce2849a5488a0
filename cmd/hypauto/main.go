// Command hypauto completes HYP screening and follow-up tasks on the portal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hypauto/internal/config"
	"hypauto/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hypauto",
	Short: "Automates HYP screening and follow-up protocols",
	Long: `hypauto drives the HYP clinical portal through the screening and
follow-up protocols of the hypertension, diabetes, obesity, cardiovascular
risk and elderly health programmes, within the monthly targets you set.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		if err := logging.Initialize(logging.Options{
			Dir:        cfg.LogsDir(),
			DebugMode:  cfg.Logging.DebugMode,
			Categories: cfg.Logging.Categories,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
		}); err != nil {
			return fmt.Errorf("failed to initialize debug logs: %w", err)
		}

		zc := zap.NewProductionConfig()
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.Boot("hypauto starting: %s", cmd.CommandPath())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Configuration file")

	rootCmd.AddCommand(runCmd, patientCmd, listenCmd)
	rootCmd.AddCommand(targetsCmd, cacheCmd, optOutCmd, historyCmd)
	rootCmd.AddCommand(pinCmd, classifyCmd, updateCmd)
}

func defaultConfigPath() string {
	if p := os.Getenv("HYPAUTO_CONFIG"); p != "" {
		return p
	}
	return "hypauto.yaml"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
