package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbfarm/swarm/internal/domain/edge"
)

func rpcServer(t *testing.T, handler func(method string, params []interface{}) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result := handler(req.Method, req.Params)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  result,
		})
	}))
}

func TestBlockhashCache_FetchesAndCachesWithinTTL(t *testing.T) {
	calls := 0
	srv := rpcServer(t, func(method string, params []interface{}) interface{} {
		calls++
		return map[string]interface{}{
			"value": map[string]interface{}{
				"blockhash":            "hash-1",
				"lastValidBlockHeight": 1000,
			},
		}
	})
	defer srv.Close()

	cache := NewBlockhashCache(srv.URL).WithTTL(time.Minute)

	bh1, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hash-1", bh1.Blockhash)
	assert.EqualValues(t, 1000, bh1.LastValidBlockHeight)

	bh2, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bh1, bh2)
	assert.Equal(t, 1, calls, "second Get within TTL must not refetch")
}

func TestBlockhashCache_InvalidateForcesRefetch(t *testing.T) {
	calls := 0
	srv := rpcServer(t, func(method string, params []interface{}) interface{} {
		calls++
		return map[string]interface{}{"value": map[string]interface{}{"blockhash": "hash", "lastValidBlockHeight": 1}}
	})
	defer srv.Close()

	cache := NewBlockhashCache(srv.URL).WithTTL(time.Minute)
	_, err := cache.Get(context.Background())
	require.NoError(t, err)
	cache.Invalidate()
	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestBlockhashCache_RefetchesAfterTTLExpires(t *testing.T) {
	calls := 0
	srv := rpcServer(t, func(method string, params []interface{}) interface{} {
		calls++
		return map[string]interface{}{"value": map[string]interface{}{"blockhash": "hash", "lastValidBlockHeight": 1}}
	})
	defer srv.Close()

	cache := NewBlockhashCache(srv.URL).WithTTL(10 * time.Millisecond)
	_, err := cache.Get(context.Background())
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestBlockhashCache_RPCErrorSurfacesAsExternalAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cache := NewBlockhashCache(srv.URL)
	_, err := cache.Get(context.Background())
	require.Error(t, err)
}

func TestTransactionSimulator_DetectsFullyAtomicFromFlashLoanLog(t *testing.T) {
	srv := rpcServer(t, func(method string, params []interface{}) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 42},
			"value": map[string]interface{}{
				"logs":          []string{"Program log: flash_loan initiated", "Program log: profit: 50000 lamports"},
				"unitsConsumed": 20000,
			},
		}
	})
	defer srv.Close()

	sim := NewTransactionSimulator(srv.URL)
	result, err := sim.Simulate(context.Background(), uuid.New(), "base64tx")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, edge.AtomicityFully, result.Atomicity)
	assert.True(t, result.ProfitGuaranteed)
	require.NotNil(t, result.SimulatedProfitLamports)
	assert.EqualValues(t, 50000, *result.SimulatedProfitLamports)
	assert.EqualValues(t, 42, result.SimulationSlot)
}

func TestTransactionSimulator_PartiallyAtomicFromSwapExactLog(t *testing.T) {
	srv := rpcServer(t, func(method string, params []interface{}) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   map[string]interface{}{"logs": []string{"Program log: swap_exact_in executed"}},
		}
	})
	defer srv.Close()

	sim := NewTransactionSimulator(srv.URL)
	result, err := sim.Simulate(context.Background(), uuid.New(), "base64tx")
	require.NoError(t, err)
	assert.Equal(t, edge.AtomicityPartial, result.Atomicity)
	assert.False(t, result.ProfitGuaranteed)
}

func TestTransactionSimulator_FailureSetsSuccessFalse(t *testing.T) {
	srv := rpcServer(t, func(method string, params []interface{}) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   map[string]interface{}{"err": map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
		}
	})
	defer srv.Close()

	sim := NewTransactionSimulator(srv.URL)
	result, err := sim.Simulate(context.Background(), uuid.New(), "base64tx")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestPriorityFeeMonitor_FetchCachesResult(t *testing.T) {
	srv := rpcServer(t, func(method string, params []interface{}) interface{} {
		return map[string]interface{}{
			"priorityFeeLevels": map[string]interface{}{
				"min": 100, "low": 500, "medium": 1000, "high": 5000, "veryHigh": 20000, "unsafeMax": 100000,
			},
			"priorityFeeEstimate": 1500,
		}
	})
	defer srv.Close()

	mon := NewPriorityFeeMonitor(srv.URL)
	fees, err := mon.Fetch(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1500, fees.Recommended)
	assert.EqualValues(t, 20000, mon.Cached().VeryHigh)
}

func TestPriorityFeeMonitor_CachedReturnsDefaultBeforeFirstFetch(t *testing.T) {
	mon := NewPriorityFeeMonitor("http://unused")
	fees := mon.Cached()
	assert.EqualValues(t, 5000, fees.Min)
}

func TestSelectTierForProfit_ExactThresholds(t *testing.T) {
	fees := PriorityFees{Min: 1, Low: 2, Medium: 3, High: 4, VeryHigh: 5, UnsafeMax: 6}

	level, fee := SelectTierForProfit(int64(1.0*1_000_000_000), fees)
	assert.Equal(t, PriorityVeryHigh, level)
	assert.EqualValues(t, 5, fee)

	level, _ = SelectTierForProfit(int64(0.5*1_000_000_000), fees)
	assert.Equal(t, PriorityHigh, level)

	level, _ = SelectTierForProfit(int64(0.1*1_000_000_000), fees)
	assert.Equal(t, PriorityMedium, level)

	level, _ = SelectTierForProfit(int64(0.01*1_000_000_000), fees)
	assert.Equal(t, PriorityLow, level)

	level, _ = SelectTierForProfit(int64(0.001*1_000_000_000), fees)
	assert.Equal(t, PriorityMin, level)
}
