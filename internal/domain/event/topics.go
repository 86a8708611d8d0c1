package event

import "strings"

// Topic constants, ground-truthed on original_source/.../events/topics.rs.
const (
	TopicScannerAll           = "arb.scanner.*"
	TopicScannerSignalDetect  = "arb.scanner.signal.detected"
	TopicScannerVenueAdded    = "arb.scanner.venue.added"
	TopicScannerVenueRemoved  = "arb.scanner.venue.removed"
	TopicScannerStarted       = "arb.scanner.started"
	TopicScannerStopped       = "arb.scanner.stopped"

	TopicEdgeAll       = "arb.edge.*"
	TopicEdgeDetected  = "arb.edge.detected"
	TopicEdgeApproved  = "arb.edge.approved"
	TopicEdgeRejected  = "arb.edge.rejected"
	TopicEdgeExecuting = "arb.edge.executing"
	TopicEdgeExecuted  = "arb.edge.executed"
	TopicEdgeFailed    = "arb.edge.failed"
	TopicEdgeExpired   = "arb.edge.expired"

	TopicStrategyAll       = "arb.strategy.*"
	TopicStrategyCreated   = "arb.strategy.created"
	TopicStrategyUpdated   = "arb.strategy.updated"
	TopicStrategyDeleted   = "arb.strategy.deleted"
	TopicStrategyTriggered = "arb.strategy.triggered"
	TopicStrategyEnabled   = "arb.strategy.enabled"
	TopicStrategyDisabled  = "arb.strategy.disabled"

	TopicKolAll          = "arb.kol.*"
	TopicKolTradeDetect  = "arb.kol.trade.detected"
	TopicKolTradeCopied  = "arb.kol.trade.copied"
	TopicKolTrustUpdated = "arb.kol.trust.updated"
	TopicKolAdded        = "arb.kol.added"
	TopicKolRemoved      = "arb.kol.removed"

	TopicThreatAll         = "arb.threat.*"
	TopicThreatDetected    = "arb.threat.detected"
	TopicThreatBlocked     = "arb.threat.blocked"
	TopicThreatAlert       = "arb.threat.alert"
	TopicThreatWhitelisted = "arb.threat.whitelisted"

	TopicCurveGraduated = "arb.curve.graduated"

	TopicSwarmAll          = "arb.swarm.*"
	TopicSwarmAgentStarted = "arb.swarm.agent.started"
	TopicSwarmAgentStopped = "arb.swarm.agent.stopped"
	TopicSwarmAgentFailed  = "arb.swarm.agent.failed"
	TopicSwarmPaused       = "arb.swarm.paused"
	TopicSwarmResumed      = "arb.swarm.resumed"

	TopicConsensusAll       = "arb.consensus.*"
	TopicConsensusRequested = "arb.consensus.requested"
	TopicConsensusCompleted = "arb.consensus.completed"
	TopicConsensusFailed    = "arb.consensus.failed"

	TopicTradeAll       = "arb.trade.*"
	TopicTradeSubmitted = "arb.trade.submitted"
	TopicTradeConfirmed = "arb.trade.confirmed"
	TopicTradeFailed    = "arb.trade.failed"

	TopicApprovalAll            = "arb.approval.*"
	TopicApprovalCreated        = "arb.approval.created"
	TopicApprovalApproved       = "arb.approval.approved"
	TopicApprovalRejected       = "arb.approval.rejected"
	TopicApprovalAutoApproved   = "arb.approval.auto_approved"
	TopicApprovalExpired        = "arb.approval.expired"
	TopicApprovalBackpressured  = "arb.approval.backpressured"
	TopicApprovalHecateNotified = "arb.approval.hecate.notified"

	TopicPositionAll     = "arb.position.*"
	TopicPositionOpened  = "arb.position.opened"
	TopicPositionExited  = "arb.position.exited"
)

// MatchesPattern implements spec.md §4.A's topic-pattern rule: a pattern
// ending ".*" matches any topic sharing its prefix; otherwise exact match.
func MatchesPattern(topic, pattern string) bool {
	if strings.HasSuffix(pattern, ".*") {
		prefix := pattern[:len(pattern)-2]
		return strings.HasPrefix(topic, prefix)
	}
	return topic == pattern
}
