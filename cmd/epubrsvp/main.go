package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuanying/epubrsvp/internal/store"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// Environment variables consulted when the matching flag is not set.
const (
	envDataDir  = "EPUBRSVP_DATA_DIR"
	envStore    = "EPUBRSVP_STORE"
	envLogLevel = "EPUBRSVP_LOG_LEVEL"
)

type cliOptions struct {
	DataDir string
	Store   string
	Logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epubrsvp",
		Short: "Speed-read EPUB books one word at a time",
		Long: `epubrsvp imports EPUB, plain text and Markdown books into a local library
and plays them back with Rapid Serial Visual Presentation: one word at a
time, pivoted on its optimal recognition point, at a steady words-per-minute
rate. The reading position is saved after every word.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("data-dir", "", "Directory holding the library (default: <user config dir>/epubrsvp)")
	flags.String("store", store.BackendBadger, "Storage backend: badger, sqlite or memory")
	flags.String("log-level", defaultLogLevel, "Log level: debug, info, warn, error")
	flags.String("log-format", defaultLogFormat, "Log format: text or json")
	flags.BoolP("verbose", "v", false, "Enable debug logging (same as --log-level debug)")

	cmd.AddCommand(
		newImportCmd(),
		newListCmd(),
		newDeleteCmd(),
		newInspectCmd(),
		newPageCmd(),
		newReadCmd(),
		newPositionCmd(),
		newSearchCmd(),
		newSettingsCmd(),
		newCoverCmd(),
		newServeCmd(),
		newWatchCmd(),
	)
	return cmd
}

// readCLIOptions resolves the global options of cmd: flags win over the
// environment, which wins over defaults.
func readCLIOptions(cmd *cobra.Command, _ []string) (cliOptions, error) {
	logLevel := strings.ToLower(stringOption(cmd, "log-level", envLogLevel))
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return cliOptions{}, fmt.Errorf("invalid --log-level %q (must be debug, info, warn, or error)", logLevel)
	}

	logFormat := strings.ToLower(stringOption(cmd, "log-format", ""))
	switch logFormat {
	case "text", "json":
	default:
		return cliOptions{}, fmt.Errorf("invalid --log-format %q (must be text or json)", logFormat)
	}

	backend := strings.ToLower(stringOption(cmd, "store", envStore))
	switch backend {
	case store.BackendBadger, store.BackendSQLite, store.BackendMemory:
	default:
		return cliOptions{}, fmt.Errorf("invalid --store %q (must be badger, sqlite, or memory)", backend)
	}

	if verbose, _ := strconv.ParseBool(flagValue(cmd, "verbose")); verbose {
		logLevel = "debug"
	}

	dataDir := stringOption(cmd, "data-dir", envDataDir)
	if dataDir == "" {
		dataDir = defaultDataDir()
	}

	return cliOptions{
		DataDir: dataDir,
		Store:   backend,
		Logger:  buildLogger(os.Stderr, logLevel, logFormat),
	}, nil
}

// stringOption returns the flag value if it was set, else the environment
// variable env if non-empty, else the flag default.
func stringOption(cmd *cobra.Command, name, env string) string {
	f := cmd.Flag(name)
	if f == nil {
		return ""
	}
	if !f.Changed && env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return f.Value.String()
}

func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".epubrsvp"
	}
	return filepath.Join(dir, "epubrsvp")
}

func buildLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
