package execution

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/arbfarm/swarm/internal/domain/edge"
	"github.com/arbfarm/swarm/internal/platform/apperr"
)

// simulationTimeout bounds the simulateTransaction RPC call (spec.md
// §4.J / original_source/.../execution/simulation.rs's 30s client
// timeout).
const simulationTimeout = 30 * time.Second

// SimulationResult is the outcome of simulating one edge's transaction.
type SimulationResult struct {
	EdgeID               uuid.UUID
	Success              bool
	SimulatedProfitLamports *int64
	SimulatedGasLamports int64
	Logs                 []string
	Error                string
	Atomicity            edge.Atomicity
	ProfitGuaranteed     bool
	SimulationSlot       uint64
}

// TransactionSimulator dry-runs a signed transaction against the chain's
// simulateTransaction RPC before it is ever submitted (spec.md §4.J).
// Grounded on original_source/.../execution/simulation.rs.
type TransactionSimulator struct {
	httpClient *http.Client
	rpcURL     string
}

// NewTransactionSimulator constructs a simulator against rpcURL.
func NewTransactionSimulator(rpcURL string) *TransactionSimulator {
	return &TransactionSimulator{httpClient: &http.Client{Timeout: simulationTimeout}, rpcURL: rpcURL}
}

// Simulate calls simulateTransaction with the base64-encoded signed
// transaction, commitment=processed, replaceRecentBlockhash=true, and
// derives atomicity/profit from its logs (spec.md §4.J).
func (s *TransactionSimulator) Simulate(ctx context.Context, edgeID uuid.UUID, transactionBase64 string) (SimulationResult, error) {
	body, err := rpcCall(ctx, s.httpClient, s.rpcURL, "simulateTransaction", []interface{}{
		transactionBase64,
		map[string]interface{}{
			"encoding":               "base64",
			"commitment":             "processed",
			"replaceRecentBlockhash": true,
		},
	})
	if err != nil {
		return SimulationResult{}, err
	}

	if errResult := gjson.GetBytes(body, "error"); errResult.Exists() {
		return SimulationResult{
			EdgeID:    edgeID,
			Success:   false,
			Error:     "RPC error " + errResult.Get("code").String() + ": " + errResult.Get("message").String(),
			Atomicity: edge.AtomicityNone,
		}, nil
	}

	value := gjson.GetBytes(body, "result.value")
	if !value.Exists() {
		return SimulationResult{EdgeID: edgeID, Success: false, Error: "empty simulation result", Atomicity: edge.AtomicityNone}, nil
	}

	success := !value.Get("err").Exists()
	var logs []string
	value.Get("logs").ForEach(func(_, v gjson.Result) bool {
		logs = append(logs, v.String())
		return true
	})
	unitsConsumed := value.Get("unitsConsumed").Int()

	// 0.000001 SOL per compute unit, converted to lamports — matches
	// original_source/.../execution/simulation.rs's rough estimate.
	gasLamports := int64(float64(unitsConsumed) * 0.000001 * 1e9)

	profit, atomicity, guaranteed := analyzeSimulationLogs(logs)

	errMsg := ""
	if !success {
		errMsg = "transaction simulation failed: " + value.Get("err").Raw
	}

	return SimulationResult{
		EdgeID:                  edgeID,
		Success:                 success,
		SimulatedProfitLamports: profit,
		SimulatedGasLamports:    gasLamports,
		Logs:                    logs,
		Error:                   errMsg,
		Atomicity:               atomicity,
		ProfitGuaranteed:        guaranteed && success,
		SimulationSlot:          gjson.GetBytes(body, "result.context.slot").Uint(),
	}, nil
}

// analyzeSimulationLogs scans simulation logs for atomicity markers and a
// `profit: <lamports>` entry, exactly as
// original_source/.../execution/simulation.rs's analyze_simulation_logs
// does.
func analyzeSimulationLogs(logs []string) (*int64, edge.Atomicity, bool) {
	atomicity := edge.AtomicityNone
	guaranteed := false
	var profit *int64

	for _, log := range logs {
		if strings.Contains(log, "flash_loan") || strings.Contains(log, "FlashLoan") {
			atomicity = edge.AtomicityFully
			guaranteed = true
		}

		if strings.Contains(log, "jito") || strings.Contains(log, "bundle") {
			atomicity = edge.AtomicityFully
		}

		if strings.Contains(log, "atomic") || strings.Contains(log, "swap_exact") {
			if atomicity != edge.AtomicityFully {
				atomicity = edge.AtomicityPartial
			}
		}

		if idx := strings.Index(log, "profit:"); idx >= 0 {
			rest := strings.TrimSpace(log[idx+len("profit:"):])
			fields := strings.Fields(rest)
			if len(fields) > 0 {
				if p, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
					profit = &p
				}
			}
		}
	}

	return profit, atomicity, guaranteed
}

// ErrSimulationUnprofitable is returned by the Executor when simulation
// succeeds but fails the profit-after-gas guarantee (spec.md §4.J).
var ErrSimulationUnprofitable = apperr.New(apperr.CodeExecution, "simulation_unprofitable")
