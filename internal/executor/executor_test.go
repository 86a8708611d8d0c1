package executor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbfarm/swarm/internal/domain/edge"
	"github.com/arbfarm/swarm/internal/domain/event"
	"github.com/arbfarm/swarm/internal/domain/policy"
	"github.com/arbfarm/swarm/internal/domain/position"
	"github.com/arbfarm/swarm/internal/domain/venue"
	"github.com/arbfarm/swarm/internal/eventbus"
	"github.com/arbfarm/swarm/internal/execution"
	"github.com/arbfarm/swarm/internal/platform/apperr"
	"github.com/arbfarm/swarm/internal/platform/logging"
	"github.com/arbfarm/swarm/internal/threatfilter"
)

type fakeRepo struct{}

func (f *fakeRepo) SaveEvent(ctx context.Context, evt event.ArbEvent) error { return nil }
func (f *fakeRepo) EventsByTopic(ctx context.Context, p string, l int) ([]event.ArbEvent, error) {
	return nil, nil
}
func (f *fakeRepo) EventsSince(ctx context.Context, id string, t []string, l int) ([]event.ArbEvent, error) {
	return nil, nil
}

type fakeVenue struct {
	quote venue.Quote
	err   error
}

func (v *fakeVenue) ID() string   { return "fake-venue" }
func (v *fakeVenue) Type() venue.Kind { return venue.KindDexAmm }
func (v *fakeVenue) Name() string { return "fake" }
func (v *fakeVenue) ScanForSignals(ctx context.Context) ([]venue.RawSignal, error) {
	return nil, nil
}
func (v *fakeVenue) EstimateProfit(ctx context.Context, sig venue.RawSignal) (venue.ProfitEstimate, error) {
	return venue.ProfitEstimate{}, nil
}
func (v *fakeVenue) GetQuote(ctx context.Context, params venue.QuoteParams) (venue.Quote, error) {
	return v.quote, v.err
}
func (v *fakeVenue) IsHealthy(ctx context.Context) bool { return true }

type fakeBuilder struct {
	built     int
	lastQuote venue.Quote
}

func (b *fakeBuilder) Build(ctx context.Context, q venue.Quote, bh execution.RecentBlockhash) (string, error) {
	b.built++
	b.lastQuote = q
	return "unsigned-" + bh.Blockhash, nil
}

type fakeSigner struct{ signed int }

func (s *fakeSigner) Sign(ctx context.Context, unsigned string) (string, error) {
	s.signed++
	return "signed-" + unsigned, nil
}

type fakeSubmitter struct {
	submitAttempts int
	failUntil      int
	transientErr   error
	confirmResult  bool
	confirmErr     error
	lastSig        string
}

func (s *fakeSubmitter) Submit(ctx context.Context, signedTx string) (string, error) {
	s.submitAttempts++
	if s.submitAttempts <= s.failUntil {
		return "", s.transientErr
	}
	s.lastSig = "sig-" + signedTx
	return s.lastSig, nil
}

func (s *fakeSubmitter) Confirm(ctx context.Context, signature string, lastValidBlockHeight uint64) (bool, error) {
	return s.confirmResult, s.confirmErr
}

type fakeOpener struct{ opened bool }

func (o *fakeOpener) Open(ctx context.Context, ed edge.Edge, quote venue.Quote, signature string) (position.OpenPosition, error) {
	o.opened = true
	return position.OpenPosition{ID: uuid.New(), EdgeID: ed.ID}, nil
}

func newTestBus() *eventbus.Bus {
	return eventbus.New(&fakeRepo{}, logging.New("test", "error", "text"))
}

func fullyAtomicEdge() edge.Edge {
	return edge.Edge{
		ID:                      uuid.New(),
		Atomicity:               edge.AtomicityFully,
		EstimatedProfitLamports: 1_000_000,
		RiskScore:               10,
		Status:                  edge.StatusDetected,
		TokenMint:               "mint1",
		CreatedAt:               time.Now(),
		ExpiresAt:               time.Now().Add(time.Minute),
	}
}

type testHarness struct {
	executor  *Executor
	filter    *threatfilter.Filter
	capital   *CapitalManager
	submitter *fakeSubmitter
	builder   *fakeBuilder
	signer    *fakeSigner
	opener    *fakeOpener
}

func newHarness(t *testing.T, submitter *fakeSubmitter) *testHarness {
	t.Helper()
	bus := newTestBus()
	log := logging.New("test", "error", "text")
	filter := threatfilter.New(bus, log, policy.Default(), nil, nil)
	capital := NewCapitalManager(10.0, 10.0)
	builder := &fakeBuilder{}
	signer := &fakeSigner{}
	opener := &fakeOpener{}

	exec := New(bus, log, DefaultConfig(), filter, capital,
		fakeBlockhashCache(t), fakeSimulatorAlwaysSuccess(t),
		execution.NewPriorityFeeMonitor("http://unused"),
		builder, signer, submitter, opener)

	return &testHarness{executor: exec, filter: filter, capital: capital, submitter: submitter, builder: builder, signer: signer, opener: opener}
}

// fakeRPCServer stands in for the chain's JSON-RPC endpoint, since
// BlockhashCache and TransactionSimulator always call out over HTTP. Every
// request gets the same reply, which serves both as a getLatestBlockhash
// result and as a successful (no "err") simulateTransaction result.
// Blockhash/simulator wiring details are covered in internal/execution's
// own tests.
func fakeRPCServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":{"blockhash":"bh","lastValidBlockHeight":100,"logs":[]}}}`))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func fakeBlockhashCache(t *testing.T) *execution.BlockhashCache {
	t.Helper()
	return execution.NewBlockhashCache(fakeRPCServer(t)).WithTTL(time.Hour)
}

func fakeSimulatorAlwaysSuccess(t *testing.T) *execution.TransactionSimulator {
	t.Helper()
	return execution.NewTransactionSimulator(fakeRPCServer(t))
}

func TestExecute_BlocksWhenThreatFilterRejects(t *testing.T) {
	bus := newTestBus()
	log := logging.New("test", "error", "text")
	filter := threatfilter.New(bus, log, policy.Default(), nil, nil)
	filter.Blocklist("blocked-mint")
	capital := NewCapitalManager(10.0, 10.0)

	exec := New(bus, log, DefaultConfig(), filter, capital,
		fakeBlockhashCache(t), fakeSimulatorAlwaysSuccess(t),
		execution.NewPriorityFeeMonitor("http://unused"),
		&fakeBuilder{}, &fakeSigner{}, &fakeSubmitter{confirmResult: true}, &fakeOpener{})

	ed := fullyAtomicEdge()
	ed.TokenMint = "blocked-mint"

	_, err := exec.Execute(context.Background(), ed, &fakeVenue{}, venue.QuoteParams{}, 0.5, "")
	require.Error(t, err)

	var appErr *apperr.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.CodeThreatDetected, appErr.Code)
	assert.Zero(t, capital.AvailableSol()-10.0)
}

func TestExecute_InsufficientCapitalReturnsError(t *testing.T) {
	h := newHarness(t, &fakeSubmitter{confirmResult: true})
	// Exhaust the budget first.
	require.True(t, h.capital.ReserveCapital(uuid.New(), 10.0, time.Now()))

	_, err := h.executor.Execute(context.Background(), fullyAtomicEdge(), &fakeVenue{}, venue.QuoteParams{}, 0.5, "")
	require.Error(t, err)
}

func TestSubmitWithRetry_RetriesOnTransientErrorThenSucceeds(t *testing.T) {
	submitter := &fakeSubmitter{failUntil: 2, transientErr: apperr.New(apperr.CodeTimeout, "rpc timeout"), confirmResult: true}
	exec := &Executor{
		cfg:       Config{MaxSubmitRetries: 3},
		blockhash: fakeBlockhashCache(t),
		builder:   &fakeBuilder{},
		signer:    &fakeSigner{},
		submitter: submitter,
	}

	sig, err := exec.submitWithRetry(context.Background(), fullyAtomicEdge(), venue.Quote{}, "signed-tx", execution.RecentBlockhash{Blockhash: "bh1"})
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
	assert.Equal(t, 3, submitter.submitAttempts)
}

func TestSubmitWithRetry_DoesNotRetryBusinessFailure(t *testing.T) {
	submitter := &fakeSubmitter{failUntil: 5, transientErr: apperr.New(apperr.CodeValidation, "slippage exceeded")}
	exec := &Executor{
		cfg:       Config{MaxSubmitRetries: 3},
		blockhash: fakeBlockhashCache(t),
		builder:   &fakeBuilder{},
		signer:    &fakeSigner{},
		submitter: submitter,
	}

	_, err := exec.submitWithRetry(context.Background(), fullyAtomicEdge(), venue.Quote{}, "signed-tx", execution.RecentBlockhash{Blockhash: "bh1"})
	require.Error(t, err)
	assert.Equal(t, 1, submitter.submitAttempts, "a business failure must not be retried")
}

func TestSubmitWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	submitter := &fakeSubmitter{failUntil: 100, transientErr: apperr.New(apperr.CodeTimeout, "rpc timeout")}
	exec := &Executor{
		cfg:       Config{MaxSubmitRetries: 2},
		blockhash: fakeBlockhashCache(t),
		builder:   &fakeBuilder{},
		signer:    &fakeSigner{},
		submitter: submitter,
	}

	_, err := exec.submitWithRetry(context.Background(), fullyAtomicEdge(), venue.Quote{}, "signed-tx", execution.RecentBlockhash{Blockhash: "bh1"})
	require.Error(t, err)
	assert.Equal(t, 3, submitter.submitAttempts, "1 initial + 2 retries")
}

// TestExecute_ThreadsVenueQuoteIntoTxBuilder guards against the quote
// fetched from the venue (spec.md §4.K step 3) being silently dropped
// before reaching the transaction builder.
func TestExecute_ThreadsVenueQuoteIntoTxBuilder(t *testing.T) {
	h := newHarness(t, &fakeSubmitter{confirmResult: true})

	wantQuote := venue.Quote{InputMint: "So11111111111111111111111111111111111111112", OutputMint: "mint1", InputAmount: 1_000_000_000, OutputAmount: 2_000_000}
	v := &fakeVenue{quote: wantQuote}

	_, err := h.executor.Execute(context.Background(), fullyAtomicEdge(), v, venue.QuoteParams{}, 0.5, "")
	require.NoError(t, err)
	assert.Equal(t, wantQuote, h.builder.lastQuote, "the venue's fetched quote must reach TxBuilder.Build")
}

func TestIsUnprofitable_AlwaysAbortsOnSimulationFailure(t *testing.T) {
	exec := &Executor{cfg: Config{RequireProfitGuarantee: false}}
	sim := execution.SimulationResult{Success: false}
	assert.True(t, exec.isUnprofitable(sim, 1.0))
}

func TestIsUnprofitable_PassesWhenGuaranteeNotRequired(t *testing.T) {
	exec := &Executor{cfg: Config{RequireProfitGuarantee: false}}
	profit := int64(1)
	sim := execution.SimulationResult{Success: true, SimulatedProfitLamports: &profit, SimulatedGasLamports: 1_000_000}
	assert.False(t, exec.isUnprofitable(sim, 1.0))
}

func TestIsUnprofitable_GatesOnMinProfitBpsWhenGuaranteeRequired(t *testing.T) {
	exec := &Executor{cfg: Config{RequireProfitGuarantee: true, MinProfitAfterGasBps: 10}}
	lowProfit := int64(100) // far below 10bps of 1 SOL (1_000_000 lamports)
	sim := execution.SimulationResult{Success: true, SimulatedProfitLamports: &lowProfit, SimulatedGasLamports: 0}
	assert.True(t, exec.isUnprofitable(sim, 1.0))

	highProfit := int64(2_000_000)
	sim2 := execution.SimulationResult{Success: true, SimulatedProfitLamports: &highProfit, SimulatedGasLamports: 0}
	assert.False(t, exec.isUnprofitable(sim2, 1.0))
}

func TestIsTransientSubmitError_ClassifiesByCodeAndMessage(t *testing.T) {
	assert.True(t, isTransientSubmitError(apperr.New(apperr.CodeTimeout, "x")))
	assert.True(t, isTransientSubmitError(apperr.New(apperr.CodeExternalAPI, "x")))
	assert.True(t, isTransientSubmitError(errors.New("blockhash not found")))
	assert.False(t, isTransientSubmitError(apperr.New(apperr.CodeValidation, "slippage exceeded")))
}
