package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/domain/signal"
	"github.com/arbfarm/swarm/internal/domain/strategy"
	"github.com/arbfarm/swarm/internal/domain/venue"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/platform/logging"
	"github.com/arbfarm/swarm/internal/strategyengine"
)

func TestSignalStrategyBridge_ScannerSignalReachesEngine(t *testing.T) {
	bus := eventbus.New(fakeEventRepo{}, logging.New("test", "error", "text"))
	log := logging.New("test", "error", "text")
	engine := strategyengine.New(bus, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	strat := &strategy.Strategy{
		ID:            uuid.New(),
		WalletAddress: "wallet1",
		Name:          "volume hunter",
		StrategyType:  "volume_hunter",
		VenueTypes:    []string{string(venue.KindDexAmm)},
		ExecutionMode: strategy.ExecutionAutonomous,
		Risk:          strategy.DefaultRiskParams(),
		IsActive:      true,
	}
	engine.RegisterStrategy(ctx, strat)

	edgeSub := bus.Subscribe(event.TopicEdgeDetected)
	defer edgeSub.Unsubscribe()

	bridge := NewSignalStrategyBridge(bus, log, engine)
	bridge.Start(ctx)

	sig := signal.Signal{
		ID:                uuid.New(),
		SignalType:        signal.TypeVolumeSpike,
		VenueID:           "venue1",
		VenueType:         venue.KindDexAmm,
		TokenMint:         "mint1",
		EstimatedProfitBp: 100,
		Confidence:        0.9,
		Significance:      signal.SignificanceHigh,
		DetectedAt:        time.Now(),
		ExpiresAt:         time.Now().Add(time.Hour),
	}
	evt, err := event.New("scanner.signal", event.SystemSource(), event.TopicScannerSignalDetect, sig)
	if err != nil {
		t.Fatalf("event.New: %v", err)
	}
	if err := bus.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	recvCtx, recvCancel := context.WithTimeout(ctx, 2*time.Second)
	defer recvCancel()
	if _, ok := edgeSub.Recv(recvCtx); !ok {
		t.Fatal("expected an edge.detected event produced from the matched signal")
	}
}

func TestSignalStrategyBridge_MalformedPayloadIsIgnored(t *testing.T) {
	bus := eventbus.New(fakeEventRepo{}, logging.New("test", "error", "text"))
	log := logging.New("test", "error", "text")
	engine := strategyengine.New(bus, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewSignalStrategyBridge(bus, log, engine)
	bridge.Start(ctx)

	evt := event.ArbEvent{
		ID:        uuid.New(),
		EventType: "scanner.signal",
		Source:    event.SystemSource(),
		Topic:     event.TopicScannerSignalDetect,
		Payload:   []byte("not json"),
		Timestamp: time.Now(),
	}
	if err := bus.Publish(ctx, evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
}
