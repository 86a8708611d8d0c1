// Package consensus defines the persisted shape of a Consensus Oracle
// decision (spec.md §6's arb_consensus table). The live voting computation
// lives in internal/consensus; this package is only the durable record of a
// past decision, kept separate so internal/consensus has no storage
// dependency.
package consensus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// VoteRecord is one provider's stored vote, mirroring internal/consensus.Vote.
type VoteRecord struct {
	Provider       string
	Approved       bool
	Confidence     float64
	Reasoning      string
	RiskAssessment string
	LatencyMs      int64
}

// Record is one persisted consensus decision against an edge.
type Record struct {
	ID                 uuid.UUID
	EdgeID             uuid.UUID
	Approved           bool
	AgreementScore     float64
	WeightedConfidence float64
	Votes              []VoteRecord
	ReasoningSummary   string
	TotalLatencyMs     int64
	DecidedAt          time.Time
}

// Repository persists and retrieves consensus decisions.
type Repository interface {
	Save(ctx context.Context, r Record) error
	ByEdge(ctx context.Context, edgeID uuid.UUID) ([]Record, error)
}
