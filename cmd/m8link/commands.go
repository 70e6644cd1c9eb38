package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/m8test/m8link/internal/peer"
	"github.com/m8test/m8link/internal/tui"
	"github.com/m8test/m8link/pkg/client"
	"github.com/m8test/m8link/pkg/config"
	"github.com/m8test/m8link/pkg/errors"
	"github.com/m8test/m8link/pkg/logview"
	"github.com/m8test/m8link/pkg/stream"
	"github.com/spf13/cobra"
)

func newClient(flags *config.Flags, opts client.Options) (*client.Client, error) {
	cfg, err := flags.Load()
	if err != nil {
		return nil, err
	}
	return client.New(cfg, opts), nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newRootPathCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "root",
		Short: "Print the project root configured on the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(flags, client.Options{})
			if err != nil {
				return err
			}
			defer c.Close()

			root, err := c.ProjectRoot(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), root)
			return nil
		},
	}
}

func newStartCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "start [argument...]",
		Short: "Start the project script, optionally passing an argument",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(flags, client.Options{})
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.SendStartCommand(cmd.Context(), strings.Join(args, " ")); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "script started")
			return nil
		},
	}
}

func newInterruptCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "interrupt",
		Short: "Interrupt the running project script",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(flags, client.Options{})
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.SendInterruptCommand(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "script interrupted")
			return nil
		},
	}
}

func newLogsCmd(flags *config.Flags) *cobra.Command {
	var (
		level   string
		search  string
		plugin  bool
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Stream the device console to stdout until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			levelFilter, err := logview.ParseLevelFilter(level)
			if err != nil {
				return err
			}

			out := logview.NewWriterRenderer(cmd.OutOrStdout(), noColor)
			renderers := map[logview.Destination]logview.Renderer{logview.DestScript: out}
			if plugin {
				renderers[logview.DestPlugin] = out
			}

			c, err := newClient(flags, client.Options{Renderers: renderers})
			if err != nil {
				return err
			}
			defer c.Close()

			if levelFilter != logview.LevelAll {
				c.SetFilter(levelFilter)
			}
			if search != "" {
				c.SetSearch(search)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			fatal := make(chan error, 1)
			onError := func(err error) {
				if errors.Is(err, stream.ErrReconnectExhausted) {
					select {
					case fatal <- err:
					default:
					}
				}
			}

			if err := c.ConnectStream(ctx, nil, onError); err != nil && !errors.Retryable(err) {
				return err
			}

			select {
			case <-ctx.Done():
				return nil
			case err := <-fatal:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&level, "level", "ALL", "minimum level to show (ALL, DEBUG, VERBOSE, INFO, WARN, ERROR, ASSERT)")
	cmd.Flags().StringVar(&search, "search", "", "only show lines containing this text (case-insensitive)")
	cmd.Flags().BoolVar(&plugin, "plugin", false, "also show the client's own log")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable color output")
	return cmd
}

func newTUICmd(flags *config.Flags) *cobra.Command {
	var (
		noColor bool
		connect bool
	)

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// diagnostics go to the plugin tab only; stderr would tear the screen
			c, err := newClient(flags, client.Options{BaseHandler: slog.NewTextHandler(io.Discard, nil)})
			if err != nil {
				return err
			}
			defer c.Close()

			return tui.Run(cmd.Context(), c, noColor, connect)
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable color output")
	cmd.Flags().BoolVar(&connect, "connect", true, "connect the log stream on start")
	return cmd
}

func newPeerCmd() *cobra.Command {
	var (
		addr string
		root string
	)

	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Run a local stand-in for the device's debug endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			slog.SetDefault(logger)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return peer.New(peer.Options{Root: root, Logger: logger}).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", fmt.Sprintf(":%d", config.DefaultDebugPort), "listen address")
	cmd.Flags().StringVar(&root, "root", peer.DefaultRoot, "project root reported to clients")
	return cmd
}
