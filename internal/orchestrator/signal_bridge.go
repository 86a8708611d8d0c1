package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/domain/signal"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
	"github.com/arbfarm/swarm/internal/strategyengine"
)

// SignalStrategyBridge subscribes to the Scanner's published signals and
// feeds each one to the Strategy Engine (spec.md §2: `Signal detected (E) →
// Strategy match (F)`). Nothing else in the swarm calls
// strategyengine.Engine.ProcessSignal — the Scanner only publishes to the
// bus — so this is the matching connective tissue for the Signal→Strategy
// leg, grounded on the same system/events/handlers.go subscribe-dispatch-
// call shape EdgeApprovalBridge uses for the Edge→Approval leg.
type SignalStrategyBridge struct {
	bus    *eventbus.Bus
	log    *logging.Logger
	engine *strategyengine.Engine
	sub    *eventbus.Subscription
}

// NewSignalStrategyBridge constructs a SignalStrategyBridge.
func NewSignalStrategyBridge(bus *eventbus.Bus, log *logging.Logger, engine *strategyengine.Engine) *SignalStrategyBridge {
	return &SignalStrategyBridge{bus: bus, log: log, engine: engine}
}

// Start subscribes to TopicScannerSignalDetect and runs until ctx is
// cancelled.
func (b *SignalStrategyBridge) Start(ctx context.Context) {
	b.sub = b.bus.Subscribe(event.TopicScannerSignalDetect)

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

func (b *SignalStrategyBridge) handle(ctx context.Context, evt event.ArbEvent) {
	var sig signal.Signal
	if err := json.Unmarshal(evt.Payload, &sig); err != nil {
		b.log.WithContext(ctx).WithError(err).Warn("signal strategy bridge: failed to decode signal")
		return
	}
	b.engine.ProcessSignal(ctx, sig)
}
