// Package cli provides the command-line interface for panelfs.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/panelfs/panelfs/internal/config"
	"github.com/panelfs/panelfs/internal/logging"
	"github.com/panelfs/panelfs/internal/version"
)

var (
	// Global flags
	cfgFile  string
	apiKey   string
	panelURL string
	logFile  string
	verbose  bool
	debug    bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "panelfs",
		Short: "Browse and edit a game panel server's files from the command line",
		Long: `panelfs ` + version.Version + `
Work with the files of a server hosted on a Pterodactyl-style panel.

Run 'panelfs connect' once to pick a server. Paths are absolute on the
server, e.g. /plugins/config.yml.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Panel client API key (overrides all other sources)")
	rootCmd.PersistentFlags().StringVar(&panelURL, "panel-url", "", "Panel base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this rotating file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = version.Version

	rootCmd.AddCommand(newCompletionCmd(rootCmd))
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

func newCompletionCmd(rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate a shell completion script",
		Long: `Generate a shell completion script.

  bash:       source <(panelfs completion bash)
  zsh:        panelfs completion zsh > "${fpath[1]}/_panelfs"
  fish:       panelfs completion fish | source
  powershell: panelfs completion powershell | Out-String | Invoke-Expression`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			case "fish":
				return rootCmd.GenFishCompletion(out, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletion(out)
			}
			return fmt.Errorf("unsupported shell %q", args[0])
		},
	}
}

// initLogger builds the global logger from flags and the [logging] section.
func initLogger() {
	level := "info"
	file := logFile
	if cfg, err := config.Load(configPath()); err == nil {
		if cfg.Logging.Level != "" {
			level = cfg.Logging.Level
		}
		if file == "" {
			file = cfg.Logging.File
		}
	}
	if verbose || debug {
		level = "debug"
	}
	// A bare file name lands in the per-user log directory.
	if file != "" && filepath.Base(file) == file {
		if err := config.EnsureLogDirectory(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		file = filepath.Join(config.LogDirectory(), file)
	}
	logging.SetGlobalLevel(logging.ParseLevel(level))
	logger = logging.NewLogger(logging.Options{LogFile: file})
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, stopping...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.ExecuteContext(rootContext)

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newDisconnectCmd())
	rootCmd.AddCommand(newConfigCmd())

	AddFileCommands(rootCmd)

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newPowerCmd())
	rootCmd.AddCommand(newServeWebDAVCmd())
	rootCmd.AddCommand(newMountCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// configPath is --config or the default location.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}
