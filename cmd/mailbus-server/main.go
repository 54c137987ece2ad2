// Package main provides the mailbus server executable: an HTTP front end,
// the domain-partitioned broker and the RabbitMQ consumer process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coregx/mailbus/adapters/zerologger"
	"github.com/coregx/mailbus/cmd/mailbus-server/internal/config"
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg     config.Config
	cfgPath string
	logger  *zerologger.Adapter
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{cfg: config.Default()}

	root := &cobra.Command{
		Use:   "mailbus-server",
		Short: "Route emails by recipient domain and persist them per bucket",
		Long: `mailbus accepts emails over HTTP, routes each one by the domain of its
recipient address and persists it into a per-domain bucket. Dedicated
domains get their own bucket; every other domain shares "other".`,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Load(cmd.Flags(), &a.cfg, a.cfgPath); err != nil {
				return err
			}
			a.logger = zerologger.New(a.cfg.LogLevel)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "path to a TOML config file (or MAILBUS_CONFIG)")
	config.BindFlags(root.PersistentFlags(), &a.cfg)

	root.AddCommand(
		newServeCommand(a),
		newConsumeCommand(a),
		newPublishCommand(a),
	)
	return root
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runE runs a command body under a context cancelled by SIGINT or SIGTERM.
func runE(fn func(ctx context.Context) error) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()
		return fn(ctx)
	}
}
