package executor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/arbfarm/swarm/internal/domain/edge"
	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/domain/position"
	"github.com/arbfarm/swarm/internal/domain/venue"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/execution"
	"github.com/arbfarm/swarm/internal/platform/apperr"
	"github.com/arbfarm/swarm/internal/platform/logging"
	"github.com/arbfarm/swarm/internal/threatfilter"
)

// DefaultMaxSubmitRetries matches spec.md §4.K's default.
const DefaultMaxSubmitRetries = 3

// TxBuilder constructs an unsigned, base64-encoded transaction from a
// venue quote and a recent blockhash. An external collaborator: actual
// instruction encoding is chain-specific and out of this repo's scope
// (spec.md §1).
type TxBuilder interface {
	Build(ctx context.Context, quote venue.Quote, blockhash execution.RecentBlockhash) (unsignedTxBase64 string, err error)
}

// Signer signs a base64-encoded unsigned transaction. An external
// collaborator (spec.md §4.K step 6: "via Signer capability").
type Signer interface {
	Sign(ctx context.Context, unsignedTxBase64 string) (signedTxBase64 string, err error)
}

// Submitter submits a signed transaction and confirms it landed. An
// external collaborator wrapping the chain's sendTransaction /
// confirmation-polling RPCs.
type Submitter interface {
	Submit(ctx context.Context, signedTxBase64 string) (signature string, err error)
	Confirm(ctx context.Context, signature string, lastValidBlockHeight uint64) (confirmed bool, err error)
}

// PositionOpener turns a confirmed trade into an open Position. An
// external collaborator so internal/executor does not need to own
// position persistence (that's internal/position's job).
type PositionOpener interface {
	Open(ctx context.Context, ed edge.Edge, quote venue.Quote, signature string) (position.OpenPosition, error)
}

// Config tunes the Executor's retry and profit-guarantee behavior
// (spec.md §4.K, §4.J).
type Config struct {
	MaxSubmitRetries      int
	RequireProfitGuarantee bool
	MinProfitAfterGasBps  int
}

// DefaultConfig returns spec.md §4.K/§4.J's defaults.
func DefaultConfig() Config {
	return Config{MaxSubmitRetries: DefaultMaxSubmitRetries, RequireProfitGuarantee: false, MinProfitAfterGasBps: 10}
}

// Result is the outcome of a successful Execute call.
type Result struct {
	Edge      edge.Edge
	Signature string
	Position  position.OpenPosition
}

// Executor carries out the pipeline of spec.md §4.K for one Approved
// edge: recheck, reserve, quote, blockhash, build, simulate, sign,
// submit, confirm. It selects no priority-fee tier: feeMonitor is stored
// but never consulted, and TxBuilder.Build receives no fee.
type Executor struct {
	bus        *eventbus.Bus
	log        *logging.Logger
	cfg        Config
	filter     *threatfilter.Filter
	capital    *CapitalManager
	blockhash  *execution.BlockhashCache
	simulator  *execution.TransactionSimulator
	feeMonitor *execution.PriorityFeeMonitor
	builder    TxBuilder
	signer     Signer
	submitter  Submitter
	opener     PositionOpener
}

// New wires an Executor from its collaborators.
func New(
	bus *eventbus.Bus,
	log *logging.Logger,
	cfg Config,
	filter *threatfilter.Filter,
	capital *CapitalManager,
	blockhash *execution.BlockhashCache,
	simulator *execution.TransactionSimulator,
	feeMonitor *execution.PriorityFeeMonitor,
	builder TxBuilder,
	signer Signer,
	submitter Submitter,
	opener PositionOpener,
) *Executor {
	return &Executor{
		bus: bus, log: log, cfg: cfg, filter: filter, capital: capital,
		blockhash: blockhash, simulator: simulator, feeMonitor: feeMonitor,
		builder: builder, signer: signer, submitter: submitter, opener: opener,
	}
}

// Execute runs the full pipeline for ed against the quote parameters
// quoteParams on venue v, reserving amountSol of capital. kolWallet is
// passed through to the threat-filter recheck for copy-trade edges
// (empty for non-copy-trade strategies).
func (x *Executor) Execute(ctx context.Context, ed edge.Edge, v venue.Venue, quoteParams venue.QuoteParams, amountSol float64, kolWallet string) (Result, error) {
	// Step 1: threat filter recheck — the edge may have expired or been
	// blocked in the interim (spec.md §4.K step 1).
	if verdict := x.filter.CheckEdge(ctx, ed, kolWallet, amountSol); !verdict.Allowed {
		x.publishFailed(ctx, ed, "threat_filter_recheck_failed: "+verdict.Reason)
		return Result{}, apperr.New(apperr.CodeThreatDetected, verdict.Reason)
	}

	// Step 2: reserve capital.
	if !x.capital.ReserveCapital(ed.ID, amountSol, time.Now().UTC()) {
		return Result{}, apperr.New(apperr.CodeExecution, "insufficient capital or daily quota exceeded")
	}

	result, err := x.executeReserved(ctx, ed, v, quoteParams, amountSol)
	if err != nil {
		x.capital.ReleaseCapital(ed.ID)
		return Result{}, err
	}

	x.filter.RecordExecution(amountSol)
	return result, nil
}

func (x *Executor) executeReserved(ctx context.Context, ed edge.Edge, v venue.Venue, quoteParams venue.QuoteParams, amountSol float64) (Result, error) {
	quoteCtx, cancel := context.WithTimeout(ctx, venue.QuoteTimeout)
	quote, err := v.GetQuote(quoteCtx, quoteParams)
	cancel()
	if err != nil {
		x.publishFailed(ctx, ed, "quote_failed")
		return Result{}, apperr.Wrap(apperr.CodeExecution, "failed to get quote", err)
	}

	signedTx, blockhash, simResult, err := x.buildSimulateAndSign(ctx, ed, quote)
	if err != nil {
		x.publishFailed(ctx, ed, "build_or_simulate_failed")
		return Result{}, err
	}

	if unprofitable := x.isUnprofitable(simResult, amountSol); unprofitable {
		x.publishFailed(ctx, ed, "simulation_unprofitable")
		return Result{}, execution.ErrSimulationUnprofitable
	}

	signature, err := x.submitWithRetry(ctx, ed, quote, signedTx, blockhash)
	if err != nil {
		x.publishFailed(ctx, ed, "submit_failed")
		return Result{}, err
	}

	x.publish(ctx, event.TopicTradeSubmitted, map[string]interface{}{"edge_id": ed.ID, "signature": signature})

	confirmed, err := x.submitter.Confirm(ctx, signature, blockhash.LastValidBlockHeight)
	if err != nil || !confirmed {
		x.publishFailed(ctx, ed, "confirmation_failed_or_timed_out")
		return Result{}, apperr.New(apperr.CodeExecution, "transaction did not confirm")
	}

	x.publish(ctx, event.TopicTradeConfirmed, map[string]interface{}{"edge_id": ed.ID, "signature": signature})

	ed.Status = edge.StatusExecuted
	pos, err := x.opener.Open(ctx, ed, quote, signature)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.CodeExecution, "trade confirmed but failed to open position", err)
	}

	return Result{Edge: ed, Signature: signature, Position: pos}, nil
}

func (x *Executor) buildSimulateAndSign(ctx context.Context, ed edge.Edge, quote venue.Quote) (string, execution.RecentBlockhash, execution.SimulationResult, error) {
	blockhash, err := x.blockhash.Get(ctx)
	if err != nil {
		return "", execution.RecentBlockhash{}, execution.SimulationResult{}, err
	}

	unsignedTx, err := x.builder.Build(ctx, quote, blockhash)
	if err != nil {
		return "", blockhash, execution.SimulationResult{}, apperr.Wrap(apperr.CodeExecution, "failed to build transaction", err)
	}

	simResult, err := x.simulator.Simulate(ctx, ed.ID, unsignedTx)
	if err != nil {
		return "", blockhash, execution.SimulationResult{}, err
	}
	if !simResult.Success {
		return "", blockhash, simResult, execution.ErrSimulationUnprofitable
	}

	signedTx, err := x.signer.Sign(ctx, unsignedTx)
	if err != nil {
		return "", blockhash, simResult, apperr.Wrap(apperr.CodeExecution, "failed to sign transaction", err)
	}

	return signedTx, blockhash, simResult, nil
}

// isUnprofitable implements spec.md §4.J's abort rule: simulation failure
// always aborts; otherwise abort only if profit-after-gas falls below
// min_profit_after_gas_bps of the position size AND the guarantee is
// required.
func (x *Executor) isUnprofitable(sim execution.SimulationResult, amountSol float64) bool {
	if !sim.Success {
		return true
	}
	if !x.cfg.RequireProfitGuarantee {
		return false
	}

	var profit int64
	if sim.SimulatedProfitLamports != nil {
		profit = *sim.SimulatedProfitLamports
	}
	netProfit := profit - sim.SimulatedGasLamports
	minProfit := int64(amountSol*1_000_000_000) * int64(x.cfg.MinProfitAfterGasBps) / 10000

	return netProfit < minProfit
}

// submitWithRetry submits signedTx, retrying with a freshly fetched
// blockhash and transaction up to cfg.MaxSubmitRetries times but only on
// transient errors (spec.md §4.K: "timeout, 5xx, blockhash-not-found").
// Business failures (slippage, account mutated) are not retried.
func (x *Executor) submitWithRetry(ctx context.Context, ed edge.Edge, quote venue.Quote, signedTx string, blockhash execution.RecentBlockhash) (string, error) {
	attempt := 0
	for {
		signature, err := x.submitter.Submit(ctx, signedTx)
		if err == nil {
			return signature, nil
		}

		attempt++
		if attempt > x.cfg.MaxSubmitRetries || !isTransientSubmitError(err) {
			return "", err
		}

		x.blockhash.Invalidate()
		fresh, rebErr := x.rebuildWithFreshBlockhash(ctx, quote)
		if rebErr != nil {
			return "", rebErr
		}
		signedTx, blockhash = fresh.signedTx, fresh.blockhash
	}
}

type rebuiltTx struct {
	signedTx  string
	blockhash execution.RecentBlockhash
}

func (x *Executor) rebuildWithFreshBlockhash(ctx context.Context, quote venue.Quote) (rebuiltTx, error) {
	blockhash, err := x.blockhash.Get(ctx)
	if err != nil {
		return rebuiltTx{}, err
	}
	unsignedTx, err := x.builder.Build(ctx, quote, blockhash)
	if err != nil {
		return rebuiltTx{}, apperr.Wrap(apperr.CodeExecution, "failed to rebuild transaction", err)
	}
	signedTx, err := x.signer.Sign(ctx, unsignedTx)
	if err != nil {
		return rebuiltTx{}, apperr.Wrap(apperr.CodeExecution, "failed to re-sign transaction", err)
	}
	return rebuiltTx{signedTx: signedTx, blockhash: blockhash}, nil
}

// isTransientSubmitError reports whether err is a retryable submission
// failure per spec.md §4.K.
func isTransientSubmitError(err error) bool {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		if appErr.Code == apperr.CodeTimeout || appErr.Code == apperr.CodeExternalAPI {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "blockhash not found") ||
		strings.Contains(msg, "5xx") ||
		strings.Contains(msg, "server error")
}

func (x *Executor) publishFailed(ctx context.Context, ed edge.Edge, reason string) {
	ed.Status = edge.StatusFailed
	x.publish(ctx, event.TopicTradeFailed, map[string]interface{}{"edge_id": ed.ID, "reason": reason})
}

func (x *Executor) publish(ctx context.Context, topic string, payload interface{}) {
	eventType := strings.TrimPrefix(topic, "arb.")
	evt, err := event.New(eventType, event.AgentSource(event.AgentExecutor), topic, payload)
	if err != nil {
		x.log.WithContext(ctx).WithError(err).Error("failed to build executor event")
		return
	}
	if err := x.bus.Publish(ctx, evt); err != nil {
		x.log.WithContext(ctx).WithError(err).Error("failed to publish executor event")
	}
}
