package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/panelfs/panelfs/internal/localfs"
	"github.com/panelfs/panelfs/internal/mount"
	"github.com/panelfs/panelfs/internal/webdav"
)

const shutdownTimeout = 5 * time.Second

// newServeWebDAVCmd creates the 'serve-webdav' command.
func newServeWebDAVCmd() *cobra.Command {
	var (
		addr   string
		prefix string
	)

	cmd := &cobra.Command{
		Use:   "serve-webdav",
		Short: "Serve the server's files over WebDAV",
		Long: `Serve the selected server's file tree over WebDAV so it can be opened in
a file manager or mounted with davfs2. Prometheus metrics are served at
/metrics on the same address.

Examples:
  panelfs serve-webdav
  panelfs serve-webdav --addr 127.0.0.1:9000 --prefix /dav`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				logger := a.logger.Named("webdav")
				srv := &http.Server{
					Addr:              addr,
					Handler:           webdav.NewHandler(a.fs, prefix, logger),
					ReadHeaderTimeout: 10 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					errCh <- srv.ListenAndServe()
				}()
				logger.Info().Str("addr", addr).Str("prefix", prefix).Msg("WebDAV server listening")
				fmt.Fprintf(cmd.OutOrStdout(), "Serving WebDAV on http://%s%s (Ctrl+C to stop)\n", addr, prefix)

				select {
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return fmt.Errorf("webdav server: %w", err)
				case <-ctx.Done():
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn().Err(err).Msg("WebDAV server did not shut down cleanly")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().StringVar(&prefix, "prefix", "", "URL path prefix for the WebDAV tree")
	return cmd
}

// newMountCmd creates the 'mount' command.
func newMountCmd() *cobra.Command {
	var (
		allowOther bool
		debugFuse  bool
	)

	cmd := &cobra.Command{
		Use:   "mount <dir>",
		Short: "Mount the server's files with FUSE",
		Long: `Mount the selected server's file tree at dir. The command runs until it
is interrupted, then unmounts.

Files are read whole when opened and uploaded whole when closed.

Examples:
  panelfs mount ~/server`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				logger := a.logger.Named("mount")
				dir, err := localfs.ResolvePath(args[0])
				if err != nil {
					return err
				}
				server, err := mount.Mount(a.fs, dir, mount.Options{
					Logger:     logger,
					AllowOther: allowOther,
					Debug:      debugFuse,
				})
				if err != nil {
					return err
				}
				logger.Info().Str("dir", dir).Msg("mounted")
				fmt.Fprintf(cmd.OutOrStdout(), "Mounted at %s (Ctrl+C to unmount)\n", dir)

				go func() {
					<-ctx.Done()
					if err := server.Unmount(); err != nil {
						logger.Warn().Err(err).Msg("unmount failed; run 'fusermount -u' manually")
					}
				}()
				server.Wait()
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&allowOther, "allow-other", false, "Allow other users to access the mount")
	cmd.Flags().BoolVar(&debugFuse, "debug-fuse", false, "Log every FUSE request")
	return cmd
}
