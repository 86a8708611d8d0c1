// Package threatfilter implements the Threat / Risk Filter (spec.md §4.G):
// a gate every signal and edge passes through before leaving its stage.
package threatfilter

import (
	"context"
	"time"

	"github.com/arbfarm/swarm/internal/domain/edge"
	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/domain/policy"
	"github.com/arbfarm/swarm/internal/domain/signal"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
)

// WalletThreatChecker reports whether a wallet's on-chain activity profile
// is flagged "high threat" (spec.md §4.G's "wallet analysis" collaborator
// for copy-trades).
type WalletThreatChecker interface {
	IsHighThreat(ctx context.Context, wallet string) (bool, error)
}

// ProgramExtractor pulls the program IDs an edge's route touches out of its
// route_data, so they can be checked against the allowed-program set.
type ProgramExtractor func(routeData map[string]interface{}) []string

// Verdict is the outcome of a threat check.
type Verdict struct {
	Allowed bool
	Reason  string
}

func allow() Verdict { return Verdict{Allowed: true} }
func deny(reason string) Verdict { return Verdict{Allowed: false, Reason: reason} }

// Filter holds the blocklist/whitelist and policy used to gate signals and
// edges (spec.md §4.G).
type Filter struct {
	bus          *eventbus.Bus
	log          *logging.Logger
	wallets      WalletThreatChecker
	programsOf   ProgramExtractor
	pol          policy.ArbFarmPolicy
	usage        *policy.DailyUsage

	blocklist map[string]bool
	whitelist map[string]bool
}

// New constructs a Filter. wallets and programsOf may be nil if their
// respective checks are not applicable to the deployment (e.g. no
// copy-trade strategies registered).
func New(bus *eventbus.Bus, log *logging.Logger, pol policy.ArbFarmPolicy, wallets WalletThreatChecker, programsOf ProgramExtractor) *Filter {
	return &Filter{
		bus:        bus,
		log:        log,
		wallets:    wallets,
		programsOf: programsOf,
		pol:        pol,
		usage:      &policy.DailyUsage{},
		blocklist:  make(map[string]bool),
		whitelist:  make(map[string]bool),
	}
}

// Blocklist adds a token mint to the blocklist.
func (f *Filter) Blocklist(mint string) { f.blocklist[mint] = true }

// Whitelist adds a token mint to the whitelist. Whitelist overrides
// blocklist (spec.md §4.G).
func (f *Filter) Whitelist(mint string) { f.whitelist[mint] = true }

// CheckSignal gates a signal before the Strategy Engine consumes it
// (spec.md §4.G: mint blocklist check).
func (f *Filter) CheckSignal(ctx context.Context, sig signal.Signal) Verdict {
	if f.whitelist[sig.TokenMint] {
		return allow()
	}
	if f.blocklist[sig.TokenMint] {
		return f.block(ctx, "signal", sig.TokenMint, "token mint is blocklisted")
	}
	return allow()
}

// CheckEdge gates an edge before it reaches the Approval Manager (spec.md
// §4.G: mint, wallet-threat, program, and daily-usage checks). On a
// failing verdict the edge's Status is NOT mutated here — callers flip it
// to Rejected and persist, since threatfilter only judges, it doesn't own
// edge state.
func (f *Filter) CheckEdge(ctx context.Context, ed edge.Edge, kolWallet string, amountSol float64) Verdict {
	if f.whitelist[ed.TokenMint] {
		return allow()
	}
	if f.blocklist[ed.TokenMint] {
		return f.block(ctx, "edge", ed.TokenMint, "token mint is blocklisted")
	}

	if f.wallets != nil && kolWallet != "" {
		highThreat, err := f.wallets.IsHighThreat(ctx, kolWallet)
		if err != nil {
			f.log.WithContext(ctx).WithField("wallet", kolWallet).WithError(err).Warn("wallet threat check failed")
		} else if highThreat {
			return f.block(ctx, "edge", ed.TokenMint, "copy-trade wallet flagged high threat")
		}
	}

	if f.programsOf != nil {
		for _, programID := range f.programsOf(ed.RouteData) {
			if !f.pol.ProgramAllowed(programID) {
				return f.block(ctx, "edge", ed.TokenMint, "route references disallowed program "+programID)
			}
		}
	}

	if !f.usage.CanExecute(f.pol, amountSol, time.Now().UTC()) {
		return f.block(ctx, "edge", ed.TokenMint, "daily usage limit exceeded")
	}

	return allow()
}

// RecordExecution commits amountSol against the daily usage ledger once an
// edge actually executes.
func (f *Filter) RecordExecution(amountSol float64) {
	f.usage.RecordTransaction(amountSol, time.Now().UTC())
}

func (f *Filter) block(ctx context.Context, stage, mint, reason string) Verdict {
	evt, err := event.New("threat.blocked", event.AgentSource(event.AgentThreatDetector), event.TopicThreatBlocked, map[string]interface{}{
		"stage":  stage,
		"mint":   mint,
		"reason": reason,
	})
	if err == nil {
		if pubErr := f.bus.Publish(ctx, evt); pubErr != nil {
			f.log.WithContext(ctx).WithError(pubErr).Error("failed to publish threat.blocked event")
		}
	}
	return deny(reason)
}
