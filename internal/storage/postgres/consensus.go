package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/consensus"
	"github.com/arbfarm/swarm/internal/platform/apperr"
)

const consensusTable = "arb_consensus"

// ConsensusStore implements consensus.Repository over the arb_consensus
// table.
type ConsensusStore struct {
	db *sql.DB
}

// NewConsensusStore constructs a ConsensusStore.
func NewConsensusStore(db *sql.DB) *ConsensusStore {
	return &ConsensusStore{db: db}
}

// Save persists a Consensus Oracle decision, one row per call to
// VotingEngine.CalculateConsensus.
func (s *ConsensusStore) Save(ctx context.Context, r consensus.Record) (err error) {
	start := time.Now()
	defer func() { observe(consensusTable, "save", start, err) }()

	votes, marshalErr := json.Marshal(r.Votes)
	if marshalErr != nil {
		return apperr.Serialization(marshalErr)
	}

	_, err = s.db.ExecContext(ctxOrBackground(ctx), `
		INSERT INTO arb_consensus (
			id, edge_id, approved, agreement_score, weighted_confidence,
			votes, reasoning_summary, total_latency_ms, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		r.ID, r.EdgeID, r.Approved, r.AgreementScore, r.WeightedConfidence,
		votes, r.ReasoningSummary, r.TotalLatencyMs, r.DecidedAt,
	)
	if err != nil {
		return apperr.Database("save_consensus", err)
	}
	return nil
}

// ByEdge returns every consensus decision recorded against edgeID, most
// recent first (an edge may be re-evaluated if sent back through the
// pipeline after a correction).
func (s *ConsensusStore) ByEdge(ctx context.Context, edgeID uuid.UUID) (records []consensus.Record, err error) {
	start := time.Now()
	defer func() { observe(consensusTable, "by_edge", start, err) }()

	rows, queryErr := s.db.QueryContext(ctxOrBackground(ctx), `
		SELECT id, edge_id, approved, agreement_score, weighted_confidence,
			votes, reasoning_summary, total_latency_ms, decided_at
		FROM arb_consensus
		WHERE edge_id = $1
		ORDER BY decided_at DESC
	`, edgeID)
	if queryErr != nil {
		err = apperr.Database("consensus_by_edge", queryErr)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r     consensus.Record
			votes []byte
		)
		if scanErr := rows.Scan(
			&r.ID, &r.EdgeID, &r.Approved, &r.AgreementScore, &r.WeightedConfidence,
			&votes, &r.ReasoningSummary, &r.TotalLatencyMs, &r.DecidedAt,
		); scanErr != nil {
			err = apperr.Database("scan_consensus", scanErr)
			return nil, err
		}
		if len(votes) > 0 {
			_ = json.Unmarshal(votes, &r.Votes)
		}
		records = append(records, r)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = apperr.Database("consensus_by_edge", rowsErr)
		return nil, err
	}
	return records, nil
}
