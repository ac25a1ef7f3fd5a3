package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/panelfs/panelfs/internal/config"
	"github.com/panelfs/panelfs/internal/events"
	"github.com/panelfs/panelfs/internal/models"
	"github.com/panelfs/panelfs/internal/status"
)

// newPoller builds a poller over the app's client and connection state.
func newPoller(a *app, indicator status.Indicator) *status.Poller {
	return status.NewPoller(status.Options{
		API:       a.client,
		State:     a.state,
		Indicator: indicator,
		Confirmer: a.notifier,
		Check:     a.check,
		Logger:    a.logger.Named("status"),
	})
}

// printStatus writes one status as "Text" followed by the tooltip lines.
func printStatus(out io.Writer, s status.Status) {
	fmt.Fprintln(out, s.Text)
	if s.Tooltip != "" {
		for _, line := range strings.Split(s.Tooltip, "\n") {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
}

// newStatusCmd creates the 'status' command.
func newStatusCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the server state and resource usage",
		Long: `Show the state of the selected server with its CPU, memory, disk and
network usage.

With --watch the status is refreshed every few seconds and re-printed when
it changes. Edits to the configuration file are picked up while watching.

Examples:
  panelfs status
  panelfs status --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			if !watch {
				printStatus(out, newPoller(a, nil).Refresh(GetContext()))
				return nil
			}
			if !a.currentConfig().Status.Enabled {
				return fmt.Errorf("status polling is disabled; run 'panelfs config set status.enabled true'")
			}
			return watchStatus(GetContext(), a, out)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep refreshing until interrupted")
	return cmd
}

// watchStatus runs the poller until ctx is done. Each distinct status is
// printed and published on the bus.
func watchStatus(ctx context.Context, a *app, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu   sync.Mutex
		last status.Status
	)
	busIndicator := status.BusIndicator{Bus: a.bus}
	poller := newPoller(a, status.IndicatorFunc(func(s status.Status) {
		busIndicator.ShowStatus(s)
		mu.Lock()
		defer mu.Unlock()
		if s == last {
			return
		}
		last = s
		fmt.Fprintf(out, "[%s] ", time.Now().Format("15:04:05"))
		printStatus(out, s)
	}))

	watcher, err := config.NewWatcher(a.cfgPath, a.bus)
	if err != nil {
		a.logger.Warn().Err(err).Msg("config changes will not be picked up")
	} else {
		go watcher.Run(ctx)
	}

	configChanged := a.bus.Subscribe(events.EventConfigChanged)
	authFailed := a.bus.Subscribe(events.EventAuthFailed)
	defer a.bus.Unsubscribe(events.EventConfigChanged, configChanged)
	defer a.bus.Unsubscribe(events.EventAuthFailed, authFailed)

	go poller.Run(ctx)
	defer poller.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-configChanged:
			if !ok {
				return nil
			}
			if err := a.reload(); err != nil {
				a.logger.Warn().Err(err).Msg("failed to reload config")
			}
			poller.RequestRefresh()
		case _, ok := <-authFailed:
			if !ok {
				return nil
			}
			poller.RequestRefresh()
		}
	}
}

// newPowerCmd creates the 'power' command.
func newPowerCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "power <start|stop|restart|kill>",
		Short: "Send a power signal to the server",
		Long: `Send a power signal to the selected server.

With --wait the status is printed once the panel has had time to apply
the signal.

Examples:
  panelfs power restart
  panelfs power stop --wait`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"start", "stop", "restart", "kill"},
		RunE: func(cmd *cobra.Command, args []string) error {
			signal, ok := models.ParsePowerSignal(args[0])
			if !ok {
				return fmt.Errorf("unknown power signal %q (want start, stop, restart or kill)", args[0])
			}

			return withApp(func(ctx context.Context, a *app) error {
				updates := make(chan status.Status, 1)
				poller := newPoller(a, status.IndicatorFunc(func(s status.Status) {
					select {
					case updates <- s:
					default:
					}
				}))
				defer poller.Stop()

				if err := poller.SendPowerSignal(ctx, signal); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Sent %s signal\n", signal)

				if !wait {
					return nil
				}
				select {
				case s := <-updates:
					printStatus(out, s)
				case <-time.After(powerWaitTimeout):
					return fmt.Errorf("timed out waiting for the server status")
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Print the status after the signal has been applied")
	return cmd
}

// powerWaitTimeout bounds 'power --wait': the delayed refresh plus one fetch.
var powerWaitTimeout = 15 * time.Second
