// Package approval defines PendingApproval and the global execution policy
// that governs auto-approval (spec.md §3, §4.I).
package approval

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arbfarm/swarm/internal/domain/edge"
)

// Type enumerates approval reasons (spec.md §3).
type Type string

const (
	TypeEntry     Type = "entry"
	TypeExit      Type = "exit"
	TypeEmergency Type = "emergency"
)

// Status enumerates the approval lifecycle (spec.md §3).
type Status string

const (
	StatusPending      Status = "pending"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
	StatusExpired      Status = "expired"
	StatusAutoApproved Status = "auto_approved"
)

// Terminal reports whether status ends the approval's lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusExpired, StatusAutoApproved:
		return true
	default:
		return false
	}
}

// HecateRecommendation is the advisory LLM recommendation folded into
// PendingApproval (spec.md §3; produced by the Hecate notifier collaborator
// per SPEC_FULL.md §2.3).
type HecateRecommendation struct {
	Decision   bool
	Reasoning  string
	Confidence float64
}

// PendingApproval tracks one approval request against an edge or a position
// exit (spec.md §3).
type PendingApproval struct {
	ID                      uuid.UUID
	EdgeID                  *uuid.UUID
	PositionID              *uuid.UUID
	ApprovalType            Type
	Status                  Status
	Atomicity               edge.Atomicity
	AmountSol               float64
	RiskScore               int
	EstimatedProfitBps      int
	EstimatedProfitLamports int64
	Confidence              float64
	ExpiresAt               time.Time
	Hecate                  *HecateRecommendation
	UserDecision            *bool
	UserDecisionAt          *time.Time
}

// Expired reports whether the approval should be swept by the janitor.
func (a PendingApproval) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// GlobalExecutionConfig governs the Approval Manager's auto-approve rule
// (spec.md §4.I). Defaults are ground-truthed on
// original_source/.../models/approval.rs.
type GlobalExecutionConfig struct {
	AutoExecutionEnabled    bool
	DefaultApprovalTimeout  time.Duration
	MaxPendingApprovals     int
	AutoApproveAtomic       bool
	AutoApproveMinProfitBps int
	AutoApproveMaxRiskScore int
	AutoMinConfidence       float64
	AutoMaxPositionSol      float64
	RequireSimulation       bool
	RequireHecateApproval   bool
}

// Repository persists PendingApproval records (spec.md §6's approvals
// table).
type Repository interface {
	Save(ctx context.Context, a PendingApproval) error
	Get(ctx context.Context, id uuid.UUID) (PendingApproval, error)
	Pending(ctx context.Context) ([]PendingApproval, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
}

// DefaultGlobalExecutionConfig matches original_source/.../models/approval.rs's
// Default impl exactly.
func DefaultGlobalExecutionConfig() GlobalExecutionConfig {
	return GlobalExecutionConfig{
		AutoExecutionEnabled:    false,
		DefaultApprovalTimeout:  300 * time.Second,
		MaxPendingApprovals:     10,
		AutoApproveAtomic:       true,
		AutoApproveMinProfitBps: 100,
		AutoApproveMaxRiskScore: 30,
		AutoMinConfidence:       0.8,
		AutoMaxPositionSol:      0.5,
		RequireSimulation:       true,
		RequireHecateApproval:   false,
	}
}
