package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sanonone/vektor/internal/logging"
	"github.com/sanonone/vektor/pkg/config"
	"github.com/sanonone/vektor/pkg/engine"
)

var (
	cfgFile string
	dataDir string
	envFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vektor",
	Short: "Vektor - file-backed HNSW vector search",
	Long: `Vektor stores fixed-dimension vectors with optional JSON metadata in a
data directory and answers approximate nearest-neighbor queries by cosine
similarity. Every command opens the directory, does its work and releases it,
so the CLI and a running server can share one directory.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides config and VEKTOR_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading VEKTOR_* variables")

	rootCmd.AddCommand(serveCmd, insertCmd, deleteCmd, searchCmd, optimizeCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the configuration: defaults, then the YAML file, then
// the environment (including the dotenv file), then --data-dir.
func loadConfig() (config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return config.Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// openDB loads the configuration and opens the data directory. Logs go to
// stderr so command output on stdout stays machine readable.
func openDB() (*engine.DB, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	db, err := engine.Open(cfg, engine.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return db, logger, nil
}
