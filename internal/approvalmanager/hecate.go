package approvalmanager

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/approval"
	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
)

// HecateClient requests an advisory recommendation from the external
// Hecate agents service, grounded on
// original_source/.../agents/hecate_notifier.rs's
// request_hecate_recommendation (same "build a prompt, POST it, parse a
// recommendation object back" shape; the actual HTTP transport is left to
// the concrete implementation wired in cmd/arbfarm).
type HecateClient interface {
	Recommend(ctx context.Context, approvalID uuid.UUID, approvalType string, tradeContext map[string]interface{}) (approval.HecateRecommendation, error)
}

// HecateNotifier subscribes to arb.approval.hecate.notified and forwards
// each request to a HecateClient, recording the response back onto the
// Manager — the Go analogue of hecate_notifier.rs's
// broadcast-receive-loop (there: tokio::sync::broadcast::Receiver; here:
// an eventbus.Subscription).
type HecateNotifier struct {
	bus     *eventbus.Bus
	client  HecateClient
	manager *Manager
	log     *logging.Logger
}

// NewHecateNotifier constructs a notifier. client may be nil in
// deployments that never enable require_hecate_approval, in which case
// Start is a no-op.
func NewHecateNotifier(bus *eventbus.Bus, client HecateClient, manager *Manager, log *logging.Logger) *HecateNotifier {
	return &HecateNotifier{bus: bus, client: client, manager: manager, log: log}
}

// Start runs the notify loop until ctx is cancelled, mirroring
// hecate_notifier.rs's `while let Ok(event) = self.event_rx.recv().await`.
func (n *HecateNotifier) Start(ctx context.Context) {
	if n.client == nil {
		return
	}

	sub := n.bus.Subscribe(event.TopicApprovalHecateNotified)
	go func() {
		defer sub.Unsubscribe()
		for {
			evt, ok := sub.Recv(ctx)
			if !ok {
				return
			}
			n.handle(ctx, evt)
		}
	}()
}

func (n *HecateNotifier) handle(ctx context.Context, evt event.ArbEvent) {
	var payload struct {
		ApprovalID   uuid.UUID              `json:"approval_id"`
		ApprovalType string                 `json:"approval_type"`
		Context      map[string]interface{} `json:"context"`
	}
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		n.log.WithContext(ctx).WithError(err).Warn("malformed hecate.notified event")
		return
	}

	rec, err := n.client.Recommend(ctx, payload.ApprovalID, payload.ApprovalType, payload.Context)
	if err != nil {
		n.log.WithContext(ctx).WithField("approval_id", payload.ApprovalID).WithError(err).Warn("failed to notify Hecate")
		rec = approval.HecateRecommendation{
			Decision:  false,
			Reasoning: "could not reach Hecate service: " + err.Error(),
		}
	}

	if _, err := n.manager.RecordHecateRecommendation(ctx, payload.ApprovalID, rec); err != nil {
		n.log.WithContext(ctx).WithField("approval_id", payload.ApprovalID).WithError(err).Warn("failed to record Hecate recommendation")
	}
}

// DefaultRecommendationTimeout bounds a single HecateClient.Recommend
// call, matching the request/response nature of
// hecate_notifier.rs's reqwest call (no explicit timeout there beyond the
// HTTP client default; this package gives callers an explicit one to
// compose into their context).
const DefaultRecommendationTimeout = 15 * time.Second
