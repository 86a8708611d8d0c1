package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCSubmitter_SubmitReturnsSignature(t *testing.T) {
	srv := rpcServer(t, func(method string, params []interface{}) interface{} {
		require.Equal(t, "sendTransaction", method)
		return "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
	})
	defer srv.Close()

	sub := NewRPCSubmitter(srv.URL)
	sig, err := sub.Submit(context.Background(), "base64tx==")
	require.NoError(t, err)
	assert.Equal(t, "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW", sig)
}

func TestRPCSubmitter_SubmitMissingSignatureErrors(t *testing.T) {
	srv := rpcServer(t, func(method string, params []interface{}) interface{} {
		return ""
	})
	defer srv.Close()

	sub := NewRPCSubmitter(srv.URL)
	_, err := sub.Submit(context.Background(), "base64tx==")
	require.Error(t, err)
}

func TestRPCSubmitter_ConfirmReturnsTrueOnConfirmedStatus(t *testing.T) {
	srv := rpcServer(t, func(method string, params []interface{}) interface{} {
		require.Equal(t, "getSignatureStatuses", method)
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 100},
			"value": []interface{}{
				map[string]interface{}{"confirmationStatus": "confirmed"},
			},
		}
	})
	defer srv.Close()

	sub := NewRPCSubmitter(srv.URL)
	confirmed, err := sub.Confirm(context.Background(), "sig", 200)
	require.NoError(t, err)
	assert.True(t, confirmed)
}

func TestRPCSubmitter_ConfirmStopsOnBlockhashExpiry(t *testing.T) {
	srv := rpcServer(t, func(method string, params []interface{}) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 500},
			"value":   []interface{}{nil},
		}
	})
	defer srv.Close()

	sub := NewRPCSubmitter(srv.URL)
	confirmed, err := sub.Confirm(context.Background(), "sig", 100)
	require.NoError(t, err)
	assert.False(t, confirmed)
}

func TestRPCSubmitter_ConfirmReturnsErrorOnChainFailure(t *testing.T) {
	srv := rpcServer(t, func(method string, params []interface{}) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 100},
			"value": []interface{}{
				map[string]interface{}{"confirmationStatus": "processed", "err": map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
			},
		}
	})
	defer srv.Close()

	sub := NewRPCSubmitter(srv.URL)
	_, err := sub.Confirm(context.Background(), "sig", 0)
	require.Error(t, err)
}

func TestRPCSubmitter_ConfirmRespectsContextCancellation(t *testing.T) {
	srv := rpcServer(t, func(method string, params []interface{}) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   []interface{}{nil},
		}
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sub := NewRPCSubmitter(srv.URL)
	_, err := sub.Confirm(ctx, "sig", 0)
	require.Error(t, err)
}
