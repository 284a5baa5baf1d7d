// Package relay uploads pre-signed payment batches to the relay service that
// broadcasts each operation once it becomes valid.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/logger"
)

const (
	defaultAttempts   = 3
	defaultBackoff    = time.Second
	defaultMaxBackoff = 10 * time.Second
)

// UploadRequest is the body of a batch upload.
type UploadRequest struct {
	Account        string                  `json:"account"`
	ChainID        int64                   `json:"chainId"`
	SubscriptionID uint64                  `json:"subscriptionId"`
	Operations     []*models.UserOperation `json:"operations"`
}

// HTTPRelay posts batches to {baseURL}/api/v1/operations.
type HTTPRelay struct {
	logger  *logger.Logger
	baseURL string
	client  *http.Client

	attempts   int
	backoff    time.Duration
	maxBackoff time.Duration
}

var _ models.Relay = (*HTTPRelay)(nil)

func NewHTTPRelay(baseURL string, logger *logger.Logger) *HTTPRelay {
	return &HTTPRelay{
		logger:  logger.Named("relay"),
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		attempts:   defaultAttempts,
		backoff:    defaultBackoff,
		maxBackoff: defaultMaxBackoff,
	}
}

// Upload hands the batch to the relay. Server errors and transport failures
// are retried with exponential backoff; a 4xx answer fails immediately.
// Every attempt carries the same Idempotency-Key so retries cannot duplicate
// the batch.
func (r *HTTPRelay) Upload(ctx context.Context, sub *models.Subscription, ops []*models.UserOperation) error {
	body, err := json.Marshal(UploadRequest{
		Account:        sub.Account,
		ChainID:        sub.ChainID,
		SubscriptionID: sub.ID,
		Operations:     ops,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to encode batch: %v", models.ErrRelayUpload, err)
	}
	key := uuid.NewString()

	backoff := r.backoff
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		retry, err := r.post(ctx, key, body)
		if err == nil {
			r.logger.Info("Uploaded operations to relay", "subscription", sub.ID, "chain_id", sub.ChainID, "count", len(ops))
			return nil
		}
		lastErr = err
		if !retry || attempt == r.attempts {
			break
		}
		r.logger.Warn("Relay upload failed, retrying...", "subscription", sub.ID, "attempt", attempt, "error", err, "retry_in", backoff)

		select {
		case <-time.After(backoff):
			backoff = backoff * 2
			if backoff > r.maxBackoff {
				backoff = r.maxBackoff
			}
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", models.ErrRelayUpload, ctx.Err())
		}
	}
	return fmt.Errorf("%w: %v", models.ErrRelayUpload, lastErr)
}

// post sends one attempt and reports whether a failure is worth retrying.
func (r *HTTPRelay) post(ctx context.Context, key string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/v1/operations", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)

	resp, err := r.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("failed to post operations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return resp.StatusCode >= 500, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
