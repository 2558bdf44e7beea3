package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/stripefs/internal/logger"
	"github.com/marmos91/stripefs/pkg/config"
	"github.com/marmos91/stripefs/pkg/mount"
)

// globalOptions holds the flags shared by every command.
type globalOptions struct {
	configPath string
	id         string
	root       string
	logLevel   string

	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "stripefs",
		Short:         "Client for a striped, replicated filesystem",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return nil
			}
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/stripefs/config.yaml)")
	flags.StringVar(&opts.id, "id", "", "Client id (default: from config)")
	flags.StringVar(&opts.root, "root", "", "Directory to mount (default: from config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")

	root.AddCommand(
		newInitCommand(),
		newLsCommand(opts),
		newMkdirCommand(opts),
		newRmCommand(opts),
		newRmdirCommand(opts),
		newMvCommand(opts),
		newStatCommand(opts),
		newStatfsCommand(opts),
		newPutCommand(opts),
		newGetCommand(opts),
		newLayoutCommand(opts),
		newProbeCommand(opts),
		newGCCommand(opts),
	)
	return root
}

// load reads the configuration and configures logging from it.
func (o *globalOptions) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	if err := logger.Configure(level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	if o.id != "" {
		cfg.Client.ID = o.id
	}
	o.cfg = cfg
	return nil
}

// withMount mounts a handle for the duration of fn.
func (o *globalOptions) withMount(ctx context.Context, fn func(m *mount.Mount) error) (err error) {
	m := mount.New(o.cfg.Client.ID, mount.WithConfig(o.cfg))
	if err := m.Mount(ctx, o.root); err != nil {
		return err
	}
	logger.Debug("mounted %s as %s (instance %s)", o.cfg.Client.Root, m.ID(), m.InstanceID())

	defer func() {
		if shutdownErr := m.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}()
	return fn(m)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "stripefs: %v\n", err)
		stop()
		os.Exit(1)
	}
}
