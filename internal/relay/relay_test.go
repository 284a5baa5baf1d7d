package relay

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/logger"
)

func testBatch() (*models.Subscription, []*models.UserOperation) {
	sub := &models.Subscription{ID: 12, Account: "0x1111111111111111111111111111111111111111", ChainID: 8453}
	ops := []*models.UserOperation{
		{Sender: common.HexToAddress(sub.Account), Nonce: big.NewInt(1), Signature: []byte{1}},
		{Sender: common.HexToAddress(sub.Account), Nonce: big.NewInt(2), Signature: []byte{2}},
	}
	return sub, ops
}

func newTestRelay(url string) *HTTPRelay {
	r := NewHTTPRelay(url+"/", logger.NewNop())
	r.backoff = time.Millisecond
	r.maxBackoff = time.Millisecond
	return r
}

func TestUpload(t *testing.T) {
	var got UploadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/api/v1/operations", req.URL.Path)
		assert.NotEmpty(t, req.Header.Get("Idempotency-Key"))
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sub, ops := testBatch()
	require.NoError(t, newTestRelay(srv.URL).Upload(context.Background(), sub, ops))

	assert.Equal(t, uint64(12), got.SubscriptionID)
	assert.Equal(t, int64(8453), got.ChainID)
	require.Len(t, got.Operations, 2)
	assert.Equal(t, int64(2), got.Operations[1].Nonce.Int64())
}

func TestUpload_RetriesServerErrors(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
		keys  = map[string]bool{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		keys[req.Header.Get("Idempotency-Key")] = true
		if calls < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub, ops := testBatch()
	require.NoError(t, newTestRelay(srv.URL).Upload(context.Background(), sub, ops))
	assert.Equal(t, 3, calls)
	assert.Len(t, keys, 1)
}

func TestUpload_ClientErrorIsFinal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls++
		http.Error(w, "bad batch", http.StatusBadRequest)
	}))
	defer srv.Close()

	sub, ops := testBatch()
	err := newTestRelay(srv.URL).Upload(context.Background(), sub, ops)
	assert.ErrorIs(t, err, models.ErrRelayUpload)
	assert.Contains(t, err.Error(), "bad batch")
	assert.Equal(t, 1, calls)
}

func TestUpload_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sub, ops := testBatch()
	err := newTestRelay(srv.URL).Upload(context.Background(), sub, ops)
	assert.ErrorIs(t, err, models.ErrRelayUpload)
}
