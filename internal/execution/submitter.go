package execution

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/arbfarm/swarm/internal/platform/apperr"
)

// ConfirmPollInterval bounds how often RPCSubmitter polls
// getSignatureStatuses while waiting for a transaction to land.
const ConfirmPollInterval = 500 * time.Millisecond

// RPCSubmitter submits a pre-signed transaction and polls for confirmation
// over the same chain RPC endpoint execution.BlockhashCache and
// execution.TransactionSimulator already use. It satisfies
// executor.Submitter — unlike TxBuilder/Signer, landing and confirming an
// already-signed transaction is a plain JSON-RPC round trip with no
// wallet or instruction-encoding knowledge required, so it can be
// implemented directly rather than left to an external collaborator.
type RPCSubmitter struct {
	httpClient *http.Client
	rpcURL     string
}

// NewRPCSubmitter constructs an RPCSubmitter against rpcURL.
func NewRPCSubmitter(rpcURL string) *RPCSubmitter {
	return &RPCSubmitter{httpClient: &http.Client{Timeout: 10 * time.Second}, rpcURL: rpcURL}
}

// Submit sends signedTxBase64 via sendTransaction and returns its
// signature.
func (s *RPCSubmitter) Submit(ctx context.Context, signedTxBase64 string) (string, error) {
	body, err := rpcCall(ctx, s.httpClient, s.rpcURL, "sendTransaction", []interface{}{
		signedTxBase64,
		map[string]interface{}{"encoding": "base64", "skipPreflight": false, "maxRetries": 0},
	})
	if err != nil {
		return "", err
	}

	if errResult := gjson.GetBytes(body, "error"); errResult.Exists() {
		return "", apperr.Wrap(apperr.CodeExternalAPI, "RPC error", fmt.Errorf("%d: %s",
			errResult.Get("code").Int(), errResult.Get("message").String()))
	}

	signature := gjson.GetBytes(body, "result").String()
	if signature == "" {
		return "", apperr.New(apperr.CodeExternalAPI, "missing signature in sendTransaction response")
	}
	return signature, nil
}

// Confirm polls getSignatureStatuses until signature reaches a
// confirmed/finalized status, lastValidBlockHeight passes, or ctx is
// cancelled.
func (s *RPCSubmitter) Confirm(ctx context.Context, signature string, lastValidBlockHeight uint64) (bool, error) {
	ticker := time.NewTicker(ConfirmPollInterval)
	defer ticker.Stop()

	for {
		confirmed, blockHeight, err := s.pollStatus(ctx, signature)
		if err != nil {
			return false, err
		}
		if confirmed {
			return true, nil
		}
		if lastValidBlockHeight > 0 && blockHeight > lastValidBlockHeight {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, apperr.Wrap(apperr.CodeTimeout, "confirmation timed out", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *RPCSubmitter) pollStatus(ctx context.Context, signature string) (confirmed bool, blockHeight uint64, err error) {
	body, err := rpcCall(ctx, s.httpClient, s.rpcURL, "getSignatureStatuses", []interface{}{
		[]string{signature},
		map[string]interface{}{"searchTransactionHistory": true},
	})
	if err != nil {
		return false, 0, err
	}

	if errResult := gjson.GetBytes(body, "error"); errResult.Exists() {
		return false, 0, apperr.Wrap(apperr.CodeExternalAPI, "RPC error", fmt.Errorf("%d: %s",
			errResult.Get("code").Int(), errResult.Get("message").String()))
	}

	slot := gjson.GetBytes(body, "result.context.slot")
	status := gjson.GetBytes(body, "result.value.0")
	if !status.Exists() || status.IsArray() && len(status.Array()) == 0 {
		return false, uint64(slot.Uint()), nil
	}
	if status.Get("err").Exists() && status.Get("err").String() != "" && !status.Get("err").IsNull() {
		return false, uint64(slot.Uint()), apperr.New(apperr.CodeExecution, "transaction failed on-chain: "+status.Get("err").Raw)
	}

	confirmationStatus := status.Get("confirmationStatus").String()
	return confirmationStatus == "confirmed" || confirmationStatus == "finalized", uint64(slot.Uint()), nil
}
