package postgres

import (
	domainapproval "github.com/arbfarm/swarm/internal/domain/approval"
	domainconsensus "github.com/arbfarm/swarm/internal/domain/consensus"
	domainedge "github.com/arbfarm/swarm/internal/domain/edge"
	domaingraduation "github.com/arbfarm/swarm/internal/domain/graduation"
	domainposition "github.com/arbfarm/swarm/internal/domain/position"
	domainstrategy "github.com/arbfarm/swarm/internal/domain/strategy"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/reporting"
)

// Compile-time interface checks, matching the teacher's
// services/automation/supabase/repository.go convention of asserting each
// concrete store against the domain interface it implements.
var (
	_ eventbus.Repository              = (*EventStore)(nil)
	_ domainedge.Repository            = (*EdgeStore)(nil)
	_ domainposition.Repository        = (*PositionStore)(nil)
	_ reporting.ClosedPositionRepository = (*PositionStore)(nil)
	_ domainstrategy.Repository         = (*StrategyStore)(nil)
	_ domaingraduation.Repository       = (*TrackedTokenStore)(nil)
	_ domainapproval.Repository         = (*ApprovalStore)(nil)
	_ domainconsensus.Repository        = (*ConsensusStore)(nil)
	_ reporting.MetricsSaver            = (*DailyMetricsStore)(nil)
)
