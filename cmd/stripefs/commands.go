package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/stripefs/pkg/config"
	"github.com/marmos91/stripefs/pkg/gc"
	"github.com/marmos91/stripefs/pkg/layout"
	"github.com/marmos91/stripefs/pkg/mount"
)

// copyChunk is the size of the reads and writes issued by put and get.
const copyChunk = 4 << 20

func newInitCommand() *cobra.Command {
	var force bool
	var target string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if target != "" {
				if err := config.InitConfigToPath(target, force); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", target)
				return nil
			}

			written, err := config.InitConfig(force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", written)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	cmd.Flags().StringVar(&target, "path", "", "Write to this path instead of the default location")
	return cmd
}

// ============================================================================
// Namespace
// ============================================================================

func newLsCommand(opts *globalOptions) *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) == 1 {
				dir = args[0]
			}
			return opts.withMount(cmd.Context(), func(m *mount.Mount) error {
				names, err := m.Listdir(cmd.Context(), dir)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, name := range names {
					if !long {
						fmt.Fprintln(out, name)
						continue
					}
					st, err := m.Lstat(cmd.Context(), path.Join(dir, name))
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s %12d %s %s\n", modeString(st), st.Size, st.Mtime.Format(time.DateTime), name)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show mode, size and modification time")
	return cmd
}

func newMkdirCommand(opts *globalOptions) *cobra.Command {
	var parents bool
	var mode uint32

	cmd := &cobra.Command{
		Use:   "mkdir <path>...",
		Short: "Create directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withMount(cmd.Context(), func(m *mount.Mount) error {
				for _, p := range args {
					var err error
					if parents {
						err = m.Mkdirs(cmd.Context(), p, mode)
					} else {
						err = m.Mkdir(cmd.Context(), p, mode)
					}
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "Create missing parents")
	cmd.Flags().Uint32Var(&mode, "mode", 0o755, "Permission bits")
	return cmd
}

func newRmCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>...",
		Short: "Remove files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withMount(cmd.Context(), func(m *mount.Mount) error {
				for _, p := range args {
					if err := m.Unlink(cmd.Context(), p); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newRmdirCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <path>...",
		Short: "Remove empty directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withMount(cmd.Context(), func(m *mount.Mount) error {
				for _, p := range args {
					if err := m.Rmdir(cmd.Context(), p); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newMvCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <from> <to>",
		Short: "Rename a file or directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withMount(cmd.Context(), func(m *mount.Mount) error {
				return m.Rename(cmd.Context(), args[0], args[1])
			})
		},
	}
}

func newStatCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show file attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withMount(cmd.Context(), func(m *mount.Mount) error {
				st, err := m.Lstat(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "  Path: %s\n", args[0])
				fmt.Fprintf(out, " Inode: %d\n", st.Ino)
				fmt.Fprintf(out, "  Mode: %s (%04o)\n", modeString(st), st.Mode&0o7777)
				fmt.Fprintf(out, " Links: %d\n", st.Nlink)
				fmt.Fprintf(out, "   Uid: %d  Gid: %d\n", st.UID, st.GID)
				fmt.Fprintf(out, "  Size: %d  Blocks: %d  IO Block: %d\n", st.Size, st.Blocks, st.Blksize)
				fmt.Fprintf(out, "Access: %s\n", st.Atime.Format(time.RFC3339Nano))
				fmt.Fprintf(out, "Modify: %s\n", st.Mtime.Format(time.RFC3339Nano))
				fmt.Fprintf(out, "Change: %s\n", st.Ctime.Format(time.RFC3339Nano))
				return nil
			})
		},
	}
}

func newStatfsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "statfs [path]",
		Short: "Show filesystem statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := "/"
			if len(args) == 1 {
				p = args[0]
			}
			return opts.withMount(cmd.Context(), func(m *mount.Mount) error {
				st, err := m.Statfs(cmd.Context(), p)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Block size: %d\n", st.Bsize)
				fmt.Fprintf(out, "Blocks: total %d, free %d, available %d\n", st.Blocks, st.Bfree, st.Bavail)
				fmt.Fprintf(out, "Inodes: used %d, free %d\n", st.Files, st.Ffree)
				fmt.Fprintf(out, "Fsid: %d  Namemax: %d\n", st.Fsid, st.Namemax)
				return nil
			})
		},
	}
}

// ============================================================================
// Data
// ============================================================================

func newPutCommand(opts *globalOptions) *cobra.Command {
	var mode uint32
	var stripeUnit, stripeCount, objectSize int

	cmd := &cobra.Command{
		Use:   "put <local> <remote>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			ctx := cmd.Context()
			return opts.withMount(ctx, func(m *mount.Mount) error {
				if stripeUnit > 0 {
					if err := m.SetDefaultFileStripeUnit(stripeUnit); err != nil {
						return fmt.Errorf("stripe unit: %w", err)
					}
				}
				if stripeCount > 0 {
					if err := m.SetDefaultFileStripeCount(stripeCount); err != nil {
						return fmt.Errorf("stripe count: %w", err)
					}
				}
				if objectSize > 0 {
					if err := m.SetDefaultObjectSize(objectSize); err != nil {
						return fmt.Errorf("object size: %w", err)
					}
				}

				fd, err := m.Open(ctx, args[1], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
				if err != nil {
					return err
				}
				defer m.Close(fd)

				buf := make([]byte, copyChunk)
				var total int64
				for {
					n, readErr := src.Read(buf)
					if n > 0 {
						if _, err := m.Write(ctx, fd, buf[:n], -1); err != nil {
							return err
						}
						total += int64(n)
					}
					if errors.Is(readErr, io.EOF) {
						break
					}
					if readErr != nil {
						return readErr
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d bytes written to %s\n", total, args[1])
				return nil
			})
		},
	}
	cmd.Flags().Uint32Var(&mode, "mode", 0o644, "Permission bits of a created file")
	cmd.Flags().IntVar(&stripeUnit, "stripe-unit", 0, "Stripe unit of a created file")
	cmd.Flags().IntVar(&stripeCount, "stripe-count", 0, "Stripe count of a created file")
	cmd.Flags().IntVar(&objectSize, "object-size", 0, "Object size of a created file")
	return cmd
}

func newGetCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote> <local>",
		Short: "Download a file (use - for stdout)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withMount(ctx, func(m *mount.Mount) error {
				fd, err := m.Open(ctx, args[0], os.O_RDONLY, 0)
				if err != nil {
					return err
				}
				defer m.Close(fd)

				var dst io.Writer = cmd.OutOrStdout()
				if args[1] != "-" {
					f, err := os.Create(args[1])
					if err != nil {
						return err
					}
					defer f.Close()
					dst = f
				}

				buf := make([]byte, copyChunk)
				for {
					n, err := m.Read(ctx, fd, buf, -1)
					if err != nil {
						return err
					}
					if n == 0 {
						return nil
					}
					if _, err := dst.Write(buf[:n]); err != nil {
						return err
					}
				}
			})
		},
	}
}

func newLayoutCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "layout [path]",
		Short: "Show the layout of a file, or the default layout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withMount(ctx, func(m *mount.Mount) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					l, err := m.DefaultLayout()
					if err != nil {
						return err
					}
					printLayout(out, l, -1)
					return nil
				}

				fd, err := m.Open(ctx, args[0], os.O_RDONLY, 0)
				if err != nil {
					return err
				}
				defer m.Close(fd)

				var l layout.FileLayout
				unit, err := m.GetFileStripeUnit(fd)
				if err != nil {
					return err
				}
				count, err := m.GetFileStripeCount(fd)
				if err != nil {
					return err
				}
				size, err := m.GetFileObjectSize(fd)
				if err != nil {
					return err
				}
				if l.Pool, err = m.GetFilePool(fd); err != nil {
					return err
				}
				replication, err := m.GetFileReplication(fd)
				if err != nil {
					return err
				}
				l.StripeUnit, l.StripeCount, l.ObjectSize = uint32(unit), uint32(count), uint32(size)
				printLayout(out, l, replication)
				return nil
			})
		},
	}
}

func newProbeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <path>",
		Short: "Find the end of a file's data by probing its objects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withMount(ctx, func(m *mount.Mount) error {
				st, err := m.Lstat(ctx, args[0])
				if err != nil {
					return err
				}
				size, err := m.ProbeSize(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded %d, probed %d\n", st.Size, size)
				return nil
			})
		},
	}
}

// ============================================================================
// Maintenance
// ============================================================================

func newGCCommand(opts *globalOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove objects that belong to no file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg

			meta, err := config.CreateMetadataStore(ctx, &cfg.Metadata)
			if err != nil {
				return err
			}
			defer meta.Close()

			pool, err := config.CreateObjectStore(ctx, &cfg.Objects, nil)
			if err != nil {
				return err
			}
			defer pool.Close()

			collector, err := gc.NewCollector(meta, pool, gc.Config{
				BatchSize: cfg.GC.BatchSize,
				DryRun:    dryRun || cfg.GC.DryRun,
			})
			if err != nil {
				return err
			}

			stats, err := collector.RunNow(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), stats.Summary())
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report orphans without removing them")
	return cmd
}

// ============================================================================
// Formatting
// ============================================================================

func printLayout(out io.Writer, l layout.FileLayout, replication int) {
	fmt.Fprintf(out, "stripe_unit:  %d\n", l.StripeUnit)
	fmt.Fprintf(out, "stripe_count: %d\n", l.StripeCount)
	fmt.Fprintf(out, "object_size:  %d\n", l.ObjectSize)
	fmt.Fprintf(out, "pool:         %s\n", l.Pool)
	if replication > 0 {
		fmt.Fprintf(out, "replication:  %d\n", replication)
	}
}

func modeString(st *mount.Stat) string {
	const rwx = "rwxrwxrwx"
	buf := []byte("----------")
	if st.IsDir() {
		buf[0] = 'd'
	}
	for i := range 9 {
		if st.Mode&(1<<uint(8-i)) != 0 {
			buf[i+1] = rwx[i]
		}
	}
	return string(buf)
}

