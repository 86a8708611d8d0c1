// Package orchestrator wires the Edge→Consensus→Approval leg of spec.md
// §2's pipeline (`Edge created (A) → Threat filter (G) → Approval Manager
// (I) [optionally ← Consensus Oracle (H)]`). Nothing upstream of this
// package already calls approvalmanager.Manager.CreateApproval — strategy
// engine only publishes TopicEdgeDetected — so EdgeApprovalBridge is the
// missing connective tissue between the two, grounded on
// system/events/handlers.go's subscribe-dispatch-call shape already reused
// by internal/persistence.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/approvalmanager"
	"github.com/arbfarm/swarm/internal/consensus"
	"github.com/arbfarm/swarm/internal/domain/approval"
	domainconsensus "github.com/arbfarm/swarm/internal/domain/consensus"
	"github.com/arbfarm/swarm/internal/domain/edge"
	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
)

// DefaultPositionSizeSol is used when an edge's RouteData carries no
// explicit amount_sol entry (venue adapters that would normally size a
// quote are external collaborators — see internal/domain/venue's doc
// comment — so this is the best a venue-less deployment can do).
const DefaultPositionSizeSol = 0.05

// DefaultModel names the chat-completions model requested of every
// configured LLM provider.
const DefaultModel = "gpt-4o-mini"

// EdgeApprovalBridge subscribes to newly detected edges, optionally runs
// them through the Consensus Oracle, and creates a pending approval.
type EdgeApprovalBridge struct {
	bus      *eventbus.Bus
	log      *logging.Logger
	manager  *approvalmanager.Manager
	voting   *consensus.VotingEngine
	providers []consensus.ConsensusProvider
	records  domainconsensus.Repository

	sub *eventbus.Subscription
}

// New constructs an EdgeApprovalBridge. providers may be empty to skip
// consensus entirely and go straight to CreateApproval (spec.md §4.H:
// consensus is optional). records may be nil to skip persisting decisions.
func New(bus *eventbus.Bus, log *logging.Logger, manager *approvalmanager.Manager, voting *consensus.VotingEngine, providers []consensus.ConsensusProvider, records domainconsensus.Repository) *EdgeApprovalBridge {
	return &EdgeApprovalBridge{bus: bus, log: log, manager: manager, voting: voting, providers: providers, records: records}
}

// Start subscribes to TopicEdgeDetected and runs until ctx is cancelled.
func (b *EdgeApprovalBridge) Start(ctx context.Context) {
	b.sub = b.bus.Subscribe(event.TopicEdgeDetected)

	go func() {
		defer b.sub.Unsubscribe()
		for {
			evt, ok := b.sub.Recv(ctx)
			if !ok {
				return
			}
			b.handle(ctx, evt)
		}
	}()
}

func (b *EdgeApprovalBridge) handle(ctx context.Context, evt event.ArbEvent) {
	var ed edge.Edge
	if err := json.Unmarshal(evt.Payload, &ed); err != nil {
		b.log.WithContext(ctx).WithError(err).Warn("edge approval bridge: failed to decode edge")
		return
	}

	confidence := 1 - float64(ed.RiskScore)/100
	amountSol := positionSizeSol(ed)

	if len(b.providers) > 0 {
		approved, cErr := b.runConsensus(ctx, ed)
		if cErr != nil {
			b.log.WithContext(ctx).WithField("edge_id", ed.ID).WithError(cErr).Warn("consensus query failed, falling through to approval manager")
		} else if !approved {
			return
		}
	}

	if _, err := b.manager.CreateApproval(ctx, ed, approval.TypeEntry, amountSol, confidence); err != nil {
		b.log.WithContext(ctx).WithField("edge_id", ed.ID).WithError(err).Warn("failed to create approval")
	}
}

func (b *EdgeApprovalBridge) runConsensus(ctx context.Context, ed edge.Edge) (bool, error) {
	prompt := consensus.GenerateTradePrompt(edgeContext(ed))
	votes, weights, err := consensus.QueryAll(ctx, b.providers, prompt, "You are a disciplined trading risk reviewer.", DefaultModel, 512)
	if err != nil {
		return false, err
	}

	result := b.voting.CalculateConsensus(votes, weights)

	if b.records != nil {
		record := domainconsensus.Record{
			ID:                 uuid.New(),
			EdgeID:             ed.ID,
			Approved:           result.Approved,
			AgreementScore:     result.AgreementScore,
			WeightedConfidence: result.WeightedConfidence,
			ReasoningSummary:   result.ReasoningSummary,
			TotalLatencyMs:     result.TotalLatencyMs,
			DecidedAt:          time.Now().UTC(),
		}
		for _, v := range result.Votes {
			record.Votes = append(record.Votes, domainconsensus.VoteRecord{
				Provider:       v.Provider,
				Approved:       v.Approved,
				Confidence:     v.Confidence,
				Reasoning:      v.Reasoning,
				RiskAssessment: v.RiskAssessment,
				LatencyMs:      v.LatencyMs,
			})
		}
		if err := b.records.Save(ctx, record); err != nil {
			b.log.WithContext(ctx).WithField("edge_id", ed.ID).WithError(err).Warn("failed to persist consensus record")
		}
	}

	return result.Approved, nil
}

func positionSizeSol(ed edge.Edge) float64 {
	if ed.RouteData != nil {
		if v, ok := ed.RouteData["amount_sol"].(float64); ok && v > 0 {
			return v
		}
	}
	return DefaultPositionSizeSol
}

func edgeContext(ed edge.Edge) string {
	return fmt.Sprintf(
		"Edge %s: type=%s token_mint=%s estimated_profit_lamports=%d risk_score=%d atomicity=%s expires_at=%s",
		ed.ID, ed.EdgeType, ed.TokenMint, ed.EstimatedProfitLamports, ed.RiskScore, ed.Atomicity, ed.ExpiresAt,
	)
}
