package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/panelfs/panelfs/internal/events"
	"github.com/panelfs/panelfs/internal/localfs"
	"github.com/panelfs/panelfs/internal/progress"
	"github.com/panelfs/panelfs/internal/remotefs"
	"github.com/panelfs/panelfs/internal/status"
	"github.com/panelfs/panelfs/internal/tree"
)

// AddFileCommands adds the remote file commands to the root command.
func AddFileCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newStatCmd())
	rootCmd.AddCommand(newCatCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newPutCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newRmCmd())
	rootCmd.AddCommand(newMvCmd())
	rootCmd.AddCommand(newCpCmd())
	rootCmd.AddCommand(newMoveIntoCmd())
	rootCmd.AddCommand(newTreeCmd())
}

// withApp builds the app, checks the connection and runs fn.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.requireConnection(); err != nil {
		return err
	}
	return fn(GetContext(), a)
}

func argOr(args []string, i int, def string) string {
	if len(args) > i {
		return args[i]
	}
	return def
}

// newReporter draws a bar on an interactive stderr unless quiet is set.
func newReporter(quiet bool) progress.Reporter {
	if quiet || !term.IsTerminal(int(os.Stderr.Fd())) {
		return progress.NoOpProgress{}
	}
	return progress.NewCLIProgress(os.Stderr)
}

// intoDir resolves dst to dst/<base of src> when dst names an existing
// directory.
func intoDir(ctx context.Context, a *app, src, dst string) string {
	dst = remotefs.Clean(dst)
	if m, err := a.fs.Stat(ctx, dst); err == nil && m.Kind.IsDir() {
		return path.Join(dst, path.Base(src))
	}
	return dst
}

func kindLetter(k remotefs.EntryKind) string {
	switch k {
	case remotefs.EntryDirectory:
		return "d"
	case remotefs.EntrySymlinkFile, remotefs.EntrySymlinkDirectory:
		return "l"
	}
	return "-"
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a remote directory",
		Long: `List a remote directory, directories first.

Examples:
  panelfs ls
  panelfs ls /plugins`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				entries, err := a.fs.ListDirectory(ctx, argOr(args, 0, "/"))
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, e := range entries {
					name := e.Name
					if e.Kind.IsDir() {
						name += "/"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
						kindLetter(e.Kind), status.FormatBytes(e.Metadata.Size),
						e.Metadata.ModTime.Local().Format("2006-01-02 15:04"), name)
				}
				return tw.Flush()
			})
		},
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show metadata for a remote path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				m, err := a.fs.Stat(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Path:      %s\n", remotefs.Clean(args[0]))
				fmt.Fprintf(out, "Kind:      %s\n", m.Kind)
				fmt.Fprintf(out, "Size:      %s (%d bytes)\n", status.FormatBytes(m.Size), m.Size)
				if m.Mode != "" {
					fmt.Fprintf(out, "Mode:      %s\n", m.Mode)
				}
				fmt.Fprintf(out, "Read-only: %t\n", m.ReadOnly)
				if !m.ModTime.IsZero() {
					fmt.Fprintf(out, "Modified:  %s\n", m.ModTime.Local().Format(time.RFC3339))
				}
				if !m.CreatedAt.IsZero() {
					fmt.Fprintf(out, "Created:   %s\n", m.CreatedAt.Local().Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a remote file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				data, err := a.fs.ReadFile(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
}

func newGetCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "get <remote> [local]",
		Short: "Download a remote file",
		Long: `Download a remote file. The local name defaults to the remote base name;
a local directory receives the file under that name.

Examples:
  panelfs get /server.properties
  panelfs get /logs/latest.log ./logs/`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				remote := remotefs.Clean(args[0])
				local, err := localfs.DownloadTarget(argOr(args, 1, ""), remote)
				if err != nil {
					return err
				}
				if m, err := a.fs.Stat(ctx, remote); err == nil {
					if m.Kind.IsDir() {
						return fmt.Errorf("%s is a directory", remote)
					}
					if err := localfs.CheckFreeSpace(local, m.Size, localfs.DownloadMargin); err != nil {
						return err
					}
				}

				data, err := a.fs.ReadFile(ctx, remote)
				if err != nil {
					return err
				}
				f, err := os.Create(local)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", local, err)
				}
				defer f.Close()

				if _, err := progress.Copy(f, bytes.NewReader(data), int64(len(data)), path.Base(remote), newReporter(quiet)); err != nil {
					return fmt.Errorf("failed to write %s: %w", local, err)
				}
				a.logger.Debug().Str("remote", remote).Str("local", local).Int("bytes", len(data)).Msg("downloaded")
				return f.Close()
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not draw a progress bar")
	return cmd
}

func newPutCmd() *cobra.Command {
	var quiet, noClobber bool

	cmd := &cobra.Command{
		Use:   "put <local> [remote]",
		Short: "Upload a local file",
		Long: `Upload a local file. The remote path defaults to /<base name>; a remote
directory receives the file under the local base name.

Examples:
  panelfs put server.properties
  panelfs put Essentials.jar /plugins`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				local, err := localfs.ResolvePath(args[0])
				if err != nil {
					return err
				}
				f, err := os.Open(local)
				if err != nil {
					return err
				}
				defer f.Close()
				fi, err := f.Stat()
				if err != nil {
					return err
				}
				if fi.IsDir() {
					return fmt.Errorf("%s is a directory", local)
				}

				remote := intoDir(ctx, a, filepath.Base(local), argOr(args, 1, "/"+filepath.Base(local)))
				var buf bytes.Buffer
				if _, err := progress.Copy(&buf, f, fi.Size(), filepath.Base(local), newReporter(quiet)); err != nil {
					return fmt.Errorf("failed to read %s: %w", local, err)
				}
				err = a.fs.WriteFile(ctx, remote, buf.Bytes(), remotefs.WriteOptions{Create: true, Overwrite: !noClobber})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", local, remote)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not draw a progress bar")
	cmd.Flags().BoolVarP(&noClobber, "no-clobber", "n", false, "Fail instead of replacing an existing remote file")
	return cmd
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>...",
		Short: "Create remote directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				for _, p := range args {
					if err := a.fs.CreateDirectory(ctx, p); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newRmCmd() *cobra.Command {
	var recursive, yes bool

	cmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete remote files or directories",
		Long: `Delete remote files. Directories must be empty unless -r is given;
recursive deletes ask for confirmation unless --yes is set.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if recursive && !yes {
					ok, err := confirmAction(cmd.InOrStdin(), cmd.ErrOrStderr(),
						fmt.Sprintf("Delete %s and everything below?", strings.Join(args, ", ")))
					if err != nil {
						return err
					}
					if !ok {
						return nil
					}
				}
				for _, p := range args {
					if err := a.fs.Delete(ctx, p, remotefs.DeleteOptions{Recursive: recursive}); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Delete directories and their contents")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newMvCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "mv <from> <to>",
		Short: "Rename or move a remote path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				to := intoDir(ctx, a, args[0], args[1])
				return a.fs.Rename(ctx, args[0], to, remotefs.RenameOptions{Overwrite: force})
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace an existing destination")
	return cmd
}

func newCpCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "cp <from> <to>",
		Short: "Copy a remote file",
		Long: `Copy a remote file. Copying into the source's own directory keeps the
panel's "<name> copy" naming.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				to := intoDir(ctx, a, args[0], args[1])
				return a.fs.Copy(ctx, args[0], to, remotefs.CopyOptions{Overwrite: force})
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace an existing destination")
	return cmd
}

// newEngine builds a tree engine over the app's bridge.
func newEngine(a *app) *tree.Engine {
	return tree.NewEngine(tree.Options{
		Lister:   a.fs,
		Mover:    a.fs,
		Notifier: a.bus,
		Logger:   a.logger.Named("tree"),
	})
}

func newMoveIntoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move-into <target-dir> <path>...",
		Short: "Move files into a directory",
		Long: `Move files into a directory by copying their content and deleting the
original. Directories are skipped, as are files already in the target.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				target := remotefs.Clean(args[0])
				m, err := a.fs.Stat(ctx, target)
				if err != nil {
					return err
				}
				if !m.Kind.IsDir() {
					return fmt.Errorf("%s is not a directory", target)
				}

				var nodes []tree.RenderNode
				for _, p := range args[1:] {
					p = remotefs.Clean(p)
					meta, err := a.fs.Stat(ctx, p)
					if err != nil {
						return err
					}
					nodes = append(nodes, tree.NodeOf(path.Dir(p), remotefs.DirEntry{Name: meta.Name, Kind: meta.Kind, Metadata: meta}))
				}

				engine := newEngine(a)
				failed := 0
				for _, res := range engine.MoveInto(ctx, nodes, target) {
					switch {
					case errors.Is(res.Err, tree.ErrDirectoryMove):
						fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %v\n", res.Node.Path(), res.Err)
					case res.Skipped:
						fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: already in %s\n", res.Node.Path(), target)
					case res.Err != nil:
						failed++
						fmt.Fprintf(cmd.ErrOrStderr(), "failed %s: %v\n", res.Node.Path(), res.Err)
					default:
						fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", res.Node.Path(), res.Target)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d moves failed", failed, len(nodes))
				}
				return nil
			})
		},
	}
}

func newTreeCmd() *cobra.Command {
	var depth int
	var reveal bool

	cmd := &cobra.Command{
		Use:   "tree [path]",
		Short: "Print a remote directory tree",
		Long: `Print a remote directory tree. Each directory is listed once.

With --reveal, only the given directory is shown and its entries appear one
at a time, the way an explorer view fills in.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				engine := newEngine(a)
				defer func() {
					engine.Refresh()
					engine.Wait()
				}()

				root := remotefs.Clean(argOr(args, 0, "/"))
				out := cmd.OutOrStdout()
				if reveal {
					return revealDir(ctx, a.bus, engine, root, out)
				}
				fmt.Fprintln(out, root)
				return printTree(ctx, engine, root, "", depth, out)
			})
		},
	}
	cmd.Flags().IntVarP(&depth, "depth", "L", 0, "Descend at most this many levels (0 = unlimited)")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Show entries of one directory as they are revealed")
	return cmd
}

func printTree(ctx context.Context, e *tree.Engine, dir, indent string, depth int, out io.Writer) error {
	nodes, err := e.Load(ctx, dir)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintf(out, "%s└── [error: %v]\n", indent, err)
		return nil
	}
	for i, n := range nodes {
		branch, next := "├── ", "│   "
		if i == len(nodes)-1 {
			branch, next = "└── ", "    "
		}
		label := n.Label
		if n.IsDir() {
			label += "/"
		}
		fmt.Fprintf(out, "%s%s%s\n", indent, branch, label)
		if n.IsDir() && (depth == 0 || depth > 1) {
			d := depth
			if d > 0 {
				d--
			}
			if err := printTree(ctx, e, n.Path(), indent+next, d, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// revealDir prints children of dir as change notifications reveal them.
func revealDir(ctx context.Context, bus *events.EventBus, e *tree.Engine, dir string, out io.Writer) error {
	changes := bus.Subscribe(events.EventNodeChanged)
	defer bus.Unsubscribe(events.EventNodeChanged, changes)

	total := -1
	shown := 0
	show := func() {
		children := e.GetChildren(dir)
		for ; shown < len(children); shown++ {
			fmt.Fprintln(out, children[shown].Label)
		}
	}
	show()
	for total < 0 || shown < total {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-changes:
			if !ok {
				return nil
			}
			if nc, isNode := ev.(*events.NodeChangedEvent); !isNode || nc.Path != dir {
				continue
			}
		case <-time.After(time.Second):
		}
		if total < 0 {
			all, err := e.Load(ctx, dir)
			if err != nil {
				return err
			}
			total = len(all)
		}
		show()
	}
	return nil
}
