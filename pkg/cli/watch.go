package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/filesentry/filesentry/pkg/config"
	"github.com/filesentry/filesentry/pkg/logger"
	"github.com/filesentry/filesentry/pkg/sentry"
	"github.com/filesentry/filesentry/pkg/types"
)

func newWatchCmd() *cobra.Command {
	var patterns []string
	var excludes []string
	var recursive bool
	var directories bool

	cmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Watch a path and print change events to stdout",
		Long: `Run a single in-process watcher and print every surviving change event
as a JSON line. Useful for trying out include/exclude patterns before
configuring the service.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(args[0], patterns, excludes, recursive, directories)
		},
	}

	cmd.Flags().StringSliceVarP(&patterns, "pattern", "p", nil, "include glob patterns (default: everything)")
	cmd.Flags().StringSliceVarP(&excludes, "exclude", "x", nil, "exclude glob patterns")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", true, "watch subdirectories")
	cmd.Flags().BoolVar(&directories, "directories", false, "report directory events")

	return cmd
}

func runWatch(path string, patterns, excludes []string, recursive, directories bool) error {
	cfg := config.Default()
	log := logger.CreateLogger("", verbosity)
	console := logger.NewConsoleLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core := sentry.New(cfg, log)
	if err := core.Start(ctx); err != nil {
		return err
	}
	defer core.Stop()

	sub := core.Broadcaster().Subscribe("", nil)
	defer core.Broadcaster().Unsubscribe(sub.ID())

	_, err := core.Registry().Create(types.WatcherConfig{
		ID:                 "cli",
		Path:               path,
		Patterns:           patterns,
		ExcludePatterns:    excludes,
		Recursive:          recursive,
		IncludeDirectories: directories,
		AutoStart:          true,
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	console.Info(fmt.Sprintf("Watching %s (Ctrl-C to stop)", path))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-sigCh:
			console.Info("Stopping")
			return nil

		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			if msg.Type == types.MessageFileChange {
				enc.Encode(msg)
			}
		}
	}
}
