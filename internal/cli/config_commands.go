package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/panelfs/panelfs/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage panelfs configuration",
		Long: `Configuration management commands for panelfs.

Commands:
  show  - Display current configuration
  set   - Change one setting
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigSetCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// secretKeys are never printed.
var secretKeys = map[string]bool{
	"panel.api_key":  true,
	"proxy.password": true,
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the configuration merged from the config file, the token file,
PANELFS_API_KEY and the --panel-url / --api-key flags.

Priority: flags > config file > token file > environment`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			cfg, err := loadMergedConfig(path)
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)

			fmt.Fprintf(cmd.OutOrStdout(), "\nConfiguration file: %s\n", path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "  (file does not exist - using defaults)")
			}
			return nil
		},
	}
}

func printConfig(out io.Writer, cfg *config.Config) {
	for _, key := range config.Keys {
		value, _ := cfg.Get(key)
		if secretKeys[key] {
			if value == "" {
				value = "<not set>"
			} else {
				value = fmt.Sprintf("<set (%d chars)>", len(value))
			}
		}
		fmt.Fprintf(out, "%-20s %s\n", key, value)
	}
}

// newConfigSetCmd creates the 'config set' command.
func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Long: `Change one setting in the configuration file.

Keys:
  panel.url, panel.server_id, panel.api_key,
  proxy.mode, proxy.host, proxy.port, proxy.user, proxy.password,
  proxy.no_proxy, proxy.rewrite_base,
  logging.level, logging.file,
  status.enabled, status.notify_power

Examples:
  panelfs config set proxy.mode ntlm
  panelfs config set status.notify_power true`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: config.Keys,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.ValidateProxy(); err != nil {
				GetLogger().Warn().Err(err).Msg("proxy settings are incomplete")
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			shown := args[1]
			if secretKeys[args[0]] {
				shown = "<hidden>"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], shown)
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := configPath()
			fmt.Fprintln(out, path)

			if fileInfo, err := os.Stat(path); err == nil {
				fmt.Fprintf(out, "Size:     %d bytes\n", fileInfo.Size())
				fmt.Fprintf(out, "Modified: %s\n", fileInfo.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status:   file does not exist; create it with 'panelfs connect'")
			}
			return nil
		},
	}
}
