package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yourorg/arca/internal/api"
	"github.com/yourorg/arca/internal/config"
)

var (
	configPath   string
	logLevel     string
	stateBackend string
	envFile      string

	notifySend   bool
	notifyDryRun bool
	generatePDF  bool
	serveAddr    string
	keygenAlgo   string

	cfg *config.Config
)

var (
	rootCmd = &cobra.Command{
		Use:   "arca",
		Short: "Compliance change notifier for the ARCA agents",
		Long: `arca watches the researcher, generator and auditor outputs, classifies
auditor findings by severity and notifies subscribers of what changed.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
	notifyCmd = &cobra.Command{
		Use:   "notify",
		Short: "Detect upstream changes and send the newsletter",
		Long:  `Runs one notification cycle. Without --send the newsletter is rendered and archived but not delivered.`,
		Args:  cobra.NoArgs,
		RunE:  runNotify,
	}
	generateCmd = &cobra.Command{
		Use:   "generate",
		Short: "Build the compliance report from the auditor findings",
		Args:  cobra.NoArgs,
		RunE:  runGenerate,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest report, tracker state and journal over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	keygenCmd = &cobra.Command{
		Use:   "keygen",
		Short: "Generate an API key and the hash to put in server.api_key_hash",
		Args:  cobra.NoArgs,
		RunE:  runKeygen,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&stateBackend, "state-backend", "", "tracker state backend: file, redis or memory")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	notifyCmd.Flags().BoolVar(&notifySend, "send", false, "deliver the newsletter over SMTP")
	notifyCmd.Flags().BoolVar(&notifyDryRun, "dry-run", false, "render and archive only; wins over --send")
	generateCmd.Flags().BoolVar(&generatePDF, "pdf", false, "also render the report to PDF")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server.addr)")
	keygenCmd.Flags().StringVar(&keygenAlgo, "algorithm", string(api.AlgorithmBcrypt), "bcrypt or argon2")

	rootCmd.AddCommand(notifyCmd, generateCmd, serveCmd, keygenCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	if stateBackend != "" {
		loaded.State.Backend = stateBackend
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	slog.SetDefault(newLogger(cfg.LogLevel))
	slog.Debug("configuration loaded", "config", configPath, "root", cfg.Paths.Root, "stateBackend", cfg.State.Backend)
	return nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
