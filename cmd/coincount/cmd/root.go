// Package cmd implements the coincount command line interface.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/coincount/internal/config"
	"github.com/MeKo-Tech/coincount/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app carries the configuration state of one command tree.
type app struct {
	v       *viper.Viper
	loader  *config.Loader
	cfgFile string
	cfg     *config.Config

	// flagKeys holds the viper bindings of each subcommand. Subcommands share
	// keys, so only the executing command is bound.
	flagKeys map[*cobra.Command]map[string]string
}

// rootCmd is the command tree used by Execute.
var rootCmd = NewRootCommand()

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

// NewRootCommand builds a fresh command tree with its own viper instance, so
// tests can execute commands repeatedly without leaking flag state.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New(), flagKeys: make(map[*cobra.Command]map[string]string)}
	a.loader = config.NewLoaderWithViper(a.v)

	root := &cobra.Command{
		Use:   "coincount",
		Short: "Count coins and other round objects in photographs",
		Long: `coincount segments a photograph of objects lying on a contrasting background,
counts the objects and draws a fitted ellipse around each one.

The pipeline is: grayscale, 15x15 Gaussian blur, inverted adaptive Gaussian
threshold, morphological closing, external contours, area band filter and
ellipse fitting. Every stage parameter can be set in coincount.yaml, through
COINCOUNT_* environment variables or with flags.

Examples:
  coincount count coins.jpg
  coincount count https://example.com/coins.jpg --format json
  coincount batch photos/ --recursive --annotated-dir out/
  coincount serve --port 8080`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.String())
				return nil
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.bind(cmd.Flags(), a.flagKeys[cmd])
			if err := a.loadConfig(); err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), a.cfg)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "",
		"config file (default is search in ., $HOME, $XDG_CONFIG_HOME/coincount, /etc/coincount)")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.Flags().Bool("version", false, "print version information and exit")

	a.bind(root.PersistentFlags(), map[string]string{
		"verbose":   "verbose",
		"log_level": "log-level",
	})

	root.AddCommand(
		newCountCommand(a),
		newBatchCommand(a),
		newServeCommand(a),
		newConfigCommand(a),
		newBenchmarkCommand(a),
	)
	return root
}

// loadConfig resolves file, environment, flag and default values.
func (a *app) loadConfig() error {
	cfg, err := a.loader.LoadWithFile(a.cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	a.cfg = cfg
	return nil
}

// register records viper bindings for cmd's local flags.
func (a *app) register(cmd *cobra.Command, keys map[string]string) {
	if a.flagKeys[cmd] == nil {
		a.flagKeys[cmd] = make(map[string]string)
	}
	for k, v := range keys {
		a.flagKeys[cmd][k] = v
	}
}

// bind connects flags to viper keys. keys maps viper key to flag name.
func (a *app) bind(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %q: %v", name, err))
		}
	}
}

// setupLogging installs the JSON slog handler at the configured level.
func setupLogging(w io.Writer, cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}
