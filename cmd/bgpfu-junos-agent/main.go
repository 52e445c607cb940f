// Command bgpfu-junos-agent reads operator-authored RPSL filter expressions
// from a Junos device's running configuration, resolves them against an
// IRRd whois server, and pushes the resulting prefix filters into the
// device's ephemeral configuration datastore (spec.md §1).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bgpfu/junos-agent/internal/config"
	"github.com/bgpfu/junos-agent/internal/log"
	"github.com/bgpfu/junos-agent/netconf"
	"github.com/bgpfu/junos-agent/updater"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Logger.WithField("error", err).Error("fatal error")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := config.Defaults()

	cmd := &cobra.Command{
		Use:           "bgpfu-junos-agent",
		Short:         "Synthesize and push Junos route-filter policy from RPSL mp-filter expressions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg)
		},
	}
	config.BindFlags(cmd.Flags(), cfg)
	return cmd
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	if err := config.MergeYAML(cfg, cfg.ConfigFile, cmd.Flags().Changed); err != nil {
		return err
	}
	if err := log.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	tlsCfg, err := cfg.NetconfTLSConfig()
	if err != nil {
		return err
	}

	uc := updater.Config{
		TLS:             tlsCfg,
		IRRAddr:         cfg.IRRDAddr(),
		EphemeralDBName: cfg.EphemeralDB,
		Sync:            netconf.JunosSyncNone,
	}

	ctx := context.Background()
	if cfg.Frequency == 0 {
		log.Logger.Info("running one-shot update")
		if err := updater.Run(ctx, uc); err != nil {
			return fmt.Errorf("one-shot run failed: %w", err)
		}
		return nil
	}

	period := time.Duration(cfg.Frequency) * time.Second
	log.Logger.WithField("period", period).Info("starting daemon")
	return updater.RunDaemon(ctx, uc, period)
}
