// Package event defines ArbEvent and its provenance taxonomy (spec.md §3).
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SourceKind distinguishes the four provenance categories named by spec.md
// §3: Agent(name), Tool(name), External(name), System.
type SourceKind string

const (
	SourceAgent    SourceKind = "agent"
	SourceTool     SourceKind = "tool"
	SourceExternal SourceKind = "external"
	SourceSystem   SourceKind = "system"
)

// Recognized agent names, supplementing spec.md's bare Source taxonomy with
// the richer provenance original_source/.../events/bus.rs carries (see
// SPEC_FULL.md §2.3). This is documentation, not a closed enum: SourceAgent's
// Name field accepts any string, but event producers within this repo use
// these constants.
const (
	AgentScanner         = "scanner"
	AgentRefiner         = "refiner"
	AgentMevHunter       = "mev_hunter"
	AgentExecutor        = "executor"
	AgentStrategyEngine  = "strategy_engine"
	AgentResearchDD      = "research_dd"
	AgentCopyTrade       = "copy_trade"
	AgentThreatDetector  = "threat_detector"
	AgentEngramHarvester = "engram_harvester"
	AgentOverseer        = "overseer"
)

// Source identifies who produced an event.
type Source struct {
	Kind SourceKind
	Name string // empty for SourceSystem
}

func AgentSource(name string) Source    { return Source{Kind: SourceAgent, Name: name} }
func ToolSource(name string) Source     { return Source{Kind: SourceTool, Name: name} }
func ExternalSource(name string) Source { return Source{Kind: SourceExternal, Name: name} }
func SystemSource() Source              { return Source{Kind: SourceSystem} }

// ArbEvent is the wire and persistence shape for every bus event (spec.md
// §3, §6: the arb_events table).
type ArbEvent struct {
	ID            uuid.UUID       `json:"id"`
	EventType     string          `json:"event_type"`
	Source        Source          `json:"source"`
	Topic         string          `json:"topic"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID *uuid.UUID      `json:"correlation_id,omitempty"`
}

// New constructs an ArbEvent with a fresh UUIDv4 and the current wall-clock
// time (persistence/exposure boundary, per spec.md §9's "wall-clock only at
// persistence and exposure boundaries").
func New(eventType string, source Source, topic string, payload interface{}) (ArbEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ArbEvent{}, err
	}
	return ArbEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Source:    source,
		Topic:     topic,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// WithCorrelation returns a copy of e carrying the given correlation ID, used
// to thread a Signal → Edge → Trade causal chain (spec.md §5).
func (e ArbEvent) WithCorrelation(id uuid.UUID) ArbEvent {
	e.CorrelationID = &id
	return e
}
