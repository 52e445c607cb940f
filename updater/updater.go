// Package updater orchestrates one-shot and periodic runs of the
// IRR-resolve / NETCONF-diff / NETCONF-commit cycle (spec.md §4.5).
package updater

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bgpfu/junos-agent/internal/irr"
	"github.com/bgpfu/junos-agent/internal/log"
	"github.com/bgpfu/junos-agent/netconf"
	"github.com/bgpfu/junos-agent/policy"
)

// Config carries everything one Run needs to open its own connections. A
// fresh Session and IRR Client are opened per run — ticks never share
// transport state (spec.md §4.5 "the tick's session is force-closed; the
// next tick retries from scratch").
type Config struct {
	TLS            netconf.TLSConfig
	IRRAddr        string
	EphemeralDBName string
	PeerAS         string
	Sync           netconf.JunosSyncMode
}

// Run performs exactly one connect/evaluate/diff/commit cycle (spec.md §4.5
// "One-shot run"). Every step's error aborts the run; already-opened
// resources are released on every exit path.
func Run(ctx context.Context, cfg Config) error {
	sess, err := netconf.Open(cfg.TLS)
	if err != nil {
		return fmt.Errorf("updater: opening netconf session: %w", err)
	}
	defer sess.Close()

	db, err := sess.OpenDB(ctx, cfg.EphemeralDBName)
	if err != nil {
		return fmt.Errorf("updater: opening ephemeral database: %w", err)
	}
	defer db.Close(ctx)

	candidateReply, err := sess.GetConfig(ctx, netconf.Running, `<policy-options/>`)
	if err != nil {
		return fmt.Errorf("updater: reading candidate configuration: %w", err)
	}
	candidates, failedParse, err := policy.ParseCandidates(candidateReply.Data)
	if err != nil {
		return fmt.Errorf("updater: parsing candidate configuration: %w", err)
	}

	installedReply, err := db.GetConfig(ctx, `<policy-options/>`)
	if err != nil {
		return fmt.Errorf("updater: reading installed configuration: %w", err)
	}
	installed, err := policy.ParseInstalled(installedReply.Data)
	if err != nil {
		return fmt.Errorf("updater: parsing installed configuration: %w", err)
	}

	irrClient, err := irr.Dial(cfg.IRRAddr)
	if err != nil {
		return fmt.Errorf("updater: connecting to IRRd: %w", err)
	}
	defer irrClient.Close()

	ev := policy.NewEvaluator(irrClient, cfg.PeerAS)
	ev.Warn = func(msg string, fields logrus.Fields) {
		log.Logger.WithFields(fields).Warn(msg)
	}

	evaluated := policy.Evaluate(ev, candidates)
	policy.MarkFailed(evaluated, failedParse)

	updates := policy.Differences(installed, evaluated, time.Now())
	if len(updates) > 0 {
		rendered, err := policy.Render(updates)
		if err != nil {
			return fmt.Errorf("updater: rendering configuration update: %w", err)
		}
		if _, err := db.LoadConfig(ctx, netconf.LoadXML, rendered); err != nil {
			return fmt.Errorf("updater: loading configuration update: %w", err)
		}
	}

	// A commit is always issued, even with no candidate changes (spec.md §9
	// Open Question disposition #1, recorded in DESIGN.md).
	if _, err := db.Commit(ctx, netconf.CommitOptions{}, cfg.Sync); err != nil {
		return fmt.Errorf("updater: committing ephemeral database: %w", err)
	}
	return nil
}
