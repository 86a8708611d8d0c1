package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/edge"
	"github.com/arbfarm/swarm/internal/domain/position"
	"github.com/arbfarm/swarm/internal/domain/venue"
)

type fakePositionManager struct {
	opened []position.OpenPosition
}

func (f *fakePositionManager) Open(ctx context.Context, pos position.OpenPosition) {
	f.opened = append(f.opened, pos)
}

type fakePositionStore struct {
	saved []position.OpenPosition
}

func (f *fakePositionStore) Save(ctx context.Context, p position.OpenPosition) error {
	f.saved = append(f.saved, p)
	return nil
}

func TestPositionOpener_OpensAndPersists(t *testing.T) {
	manager := &fakePositionManager{}
	store := &fakePositionStore{}
	opener := NewPositionOpener(manager, store)

	ed := edge.Edge{ID: uuid.New(), TokenMint: "mint1"}
	quote := venue.Quote{InputAmount: 1_000_000_000, OutputAmount: 500, ExpiresAt: time.Now().Add(time.Minute)}

	pos, err := opener.Open(context.Background(), ed, quote, "sig1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if pos.EdgeID != ed.ID {
		t.Errorf("EdgeID = %s, want %s", pos.EdgeID, ed.ID)
	}
	if pos.EntryTxSignature != "sig1" {
		t.Errorf("EntryTxSignature = %s, want sig1", pos.EntryTxSignature)
	}
	if pos.Quantity != quote.OutputAmount {
		t.Errorf("Quantity = %d, want %d", pos.Quantity, quote.OutputAmount)
	}
	if len(manager.opened) != 1 {
		t.Fatalf("expected 1 position opened in manager, got %d", len(manager.opened))
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected 1 position persisted, got %d", len(store.saved))
	}
}

func TestPositionOpener_NilStoreSkipsPersistence(t *testing.T) {
	manager := &fakePositionManager{}
	opener := NewPositionOpener(manager, nil)

	ed := edge.Edge{ID: uuid.New(), TokenMint: "mint1"}
	quote := venue.Quote{InputAmount: 1_000_000_000, OutputAmount: 500}

	if _, err := opener.Open(context.Background(), ed, quote, "sig1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(manager.opened) != 1 {
		t.Fatalf("expected 1 position opened in manager, got %d", len(manager.opened))
	}
}
