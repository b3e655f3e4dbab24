package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"FOCUS_TRACKER/go-backend/internal/client"
	"FOCUS_TRACKER/go-backend/internal/config"
	"FOCUS_TRACKER/go-backend/internal/focus"
	"FOCUS_TRACKER/go-backend/internal/services"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "focus-client",
		Short:         "Report focus sessions to a focus tracker server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
	root.AddCommand(runCmd(&verbose), healthCmd())
	return root
}

func newLogger(verbose bool) slog.Logger {
	logger := slog.Make(sloghuman.Sink(os.Stderr))
	if verbose {
		return logger.Leveled(slog.LevelDebug)
	}
	return logger.Leveled(slog.LevelInfo)
}

func runCmd(verbose *bool) *cobra.Command {
	var (
		configPath string
		server     string
		userID     string
		input      string
		clientID   string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream detector frames as one tracked session",
		Long: "Reads JSON-lines frames (timestamp, landmarks or features) from --input or stdin,\n" +
			"reports debounced focus changes and prints the server's session summary.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadClientConfig(configPath)
			if err != nil {
				return err
			}
			if server != "" {
				cfg.Server = server
			}
			if userID != "" {
				cfg.UserID = userID
			}

			var frames io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return xerrors.Errorf("open frames: %w", err)
				}
				defer f.Close()
				frames = f
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := newLogger(*verbose)
			transport, err := client.Dial(ctx, cfg.Server, clientID)
			if err != nil {
				return err
			}
			logger.Info(ctx, "connected", slog.F("server", cfg.Server), slog.F("user_id", cfg.UserID))

			tracker := client.NewTracker(logger, transport, nil, client.Options{
				UserID:    cfg.UserID,
				Debounce:  cfg.Debounce,
				Heartbeat: cfg.Heartbeat,
				Thresholds: focus.Thresholds{
					EAR:        cfg.Thresholds.EAR,
					HeadOffset: cfg.Thresholds.HeadOffset,
					WindowSize: cfg.Thresholds.WindowSize,
				},
			})
			data, err := tracker.Run(ctx, client.NewJSONLinesSource(frames, nil))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session summary for %s\n", cfg.UserID)
			fmt.Fprintf(out, "  total:     %.2fs\n", data.TotalTime)
			fmt.Fprintf(out, "  focused:   %.2fs\n", data.FocusedTime)
			fmt.Fprintf(out, "  unfocused: %.2fs\n", data.UnfocusedTime)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "client YAML config file")
	cmd.Flags().StringVar(&server, "server", "", "websocket URL, e.g. ws://localhost:8000/ws")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id to report sessions for")
	cmd.Flags().StringVarP(&input, "input", "i", "", "frames file, - or empty for stdin")
	cmd.Flags().StringVar(&clientID, "client-id", "", "connection id sent as ?clientId=")
	return cmd
}

func healthCmd() *cobra.Command {
	var (
		target  string
		service string
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the server's gRPC health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			hc, err := services.NewHealthClient(target)
			if err != nil {
				return err
			}
			defer hc.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			status, err := hc.Status(ctx, service)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			if status != "SERVING" {
				return xerrors.Errorf("%s is %s", target, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "localhost:50051", "gRPC host:port")
	cmd.Flags().StringVar(&service, "service", services.HealthServiceName, "health service name, empty for the whole server")
	return cmd
}
