package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panelfs/panelfs/internal/config"
	"github.com/panelfs/panelfs/internal/connect"
)

// newConnectCmd creates the 'connect' command.
func newConnectCmd() *cobra.Command {
	var serverID string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Sign in to a panel and select a server",
		Long: `Validate a client API key against the panel, pick one of the servers it
can access and save the choice to the configuration file.

The key is read without echo. --panel-url, --api-key and --server skip the
matching prompt.

Examples:
  panelfs connect
  panelfs connect --panel-url panel.example.com --server a1b2c3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			flow := &connect.Flow{
				API:        a.client,
				Prompter:   connect.NewTerminalPrompter(),
				State:      a.state,
				ConfigPath: a.cfgPath,
				Logger:     a.logger.Named("connect"),
				PanelURL:   panelURL,
				APIKey:     apiKey,
				ServerID:   serverID,
			}
			res, err := flow.Run(GetContext(), a.currentConfig())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signed in as %s\n", res.Account.Username)
			fmt.Fprintf(out, "Connected to %q (%s)\n", res.Server.Name, res.Server.Identifier)
			fmt.Fprintf(out, "Configuration saved to %s\n", a.cfgPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverID, "server", "", "Server identifier to select without prompting")
	return cmd
}

// newDisconnectCmd creates the 'disconnect' command.
func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the selected server and API key",
		Long: `Remove the server and API key from the configuration file. The panel URL
is kept as the default for the next 'connect'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.Panel.ServerID = ""
			cfg.Panel.APIKey = ""
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Disconnected.")
			return nil
		},
	}
}
