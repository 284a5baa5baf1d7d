package http_api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/internal/schedule"
	"github.com/core-coin/solvere/pkg/validation"
)

// CreateSubscriptionRequest represents the JSON body of a new subscription
type CreateSubscriptionRequest struct {
	ChainID           int64  `json:"chain_id" binding:"required"`
	Name              string `json:"name" binding:"required"`
	TokenAddress      string `json:"token_address" binding:"required"`
	Amount            string `json:"amount" binding:"required"`
	To                string `json:"to" binding:"required"`
	IntervalInSeconds int64  `json:"interval_in_seconds" binding:"required,gt=0"`
}

// ImportTokenRequest represents the JSON body for token import
type ImportTokenRequest struct {
	ChainID int64  `json:"chain_id" binding:"required"`
	Address string `json:"address" binding:"required"`
}

// SendRequest represents the JSON body of an immediate transfer
type SendRequest struct {
	ChainID      int64  `json:"chain_id" binding:"required"`
	TokenAddress string `json:"token_address" binding:"required"`
	To           string `json:"to" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
}

// SubscriptionResponse is a subscription with its next payment time. NextPaymentAt
// is omitted once the subscription is canceled.
type SubscriptionResponse struct {
	*models.Subscription
	NextPaymentAt *int64 `json:"next_payment_at,omitempty"`
}

// OperationResponse is returned by the calls that submit an operation.
type OperationResponse struct {
	Success       bool   `json:"success"`
	OperationHash string `json:"operation_hash"`
}

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidSubscription),
		errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrUnsupportedChain):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrSubscriptionNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyCanceled),
		errors.Is(err, models.ErrSubscriptionExists):
		return http.StatusConflict
	case errors.Is(err, models.ErrTokenNotFound),
		errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrSubscriptionsDisabled):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrRelayUpload),
		errors.Is(err, models.ErrCancellationFailed),
		errors.Is(err, models.ErrSubmissionFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", c.FullPath(), "request_id", c.GetString("request_id"), "error", err)
	} else {
		s.logger.Debug("Request rejected", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   message,
	})
}

func chainIDQuery(c *gin.Context) (int64, bool) {
	raw := c.Query("chain_id")
	if raw == "" {
		badRequest(c, "chain_id is required")
		return 0, false
	}
	chainID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, "invalid chain_id: "+raw)
		return 0, false
	}
	return chainID, true
}

func address(c *gin.Context, field, value string) (common.Address, bool) {
	addr, err := validation.ValidateAndNormalizeAddress(value)
	if err != nil {
		badRequest(c, "Invalid "+field+": "+err.Error())
		return common.Address{}, false
	}
	return addr, true
}

func amount(c *gin.Context, value string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		badRequest(c, "Invalid amount: "+value)
		return decimal.Zero, false
	}
	return d, true
}

// listSubscriptions is a handler for GET /subscriptions?chain_id=N.
func (s *HTTPServer) listSubscriptions(c *gin.Context) {
	chainID, ok := chainIDQuery(c)
	if !ok {
		return
	}
	subs, err := s.solvere.ListSubscriptions(c.Request.Context(), chainID)
	if err != nil {
		s.fail(c, err)
		return
	}
	asOf := s.now().Unix()
	response := make([]SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		item := SubscriptionResponse{Subscription: sub}
		if next, ok := schedule.NextPaymentAt(sub, asOf); ok {
			item.NextPaymentAt = &next
		}
		response = append(response, item)
	}
	c.JSON(http.StatusOK, response)
}

// createSubscription is a handler for POST /subscriptions.
// It stores, pre-signs and schedules a new subscription.
func (s *HTTPServer) createSubscription(c *gin.Context) {
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	token, ok := address(c, "token address", req.TokenAddress)
	if !ok {
		return
	}
	to, ok := address(c, "recipient address", req.To)
	if !ok {
		return
	}
	humanAmount, ok := amount(c, req.Amount)
	if !ok {
		return
	}

	sub, err := s.solvere.CreateSubscription(c.Request.Context(), models.NewSubscription{
		ChainID:           req.ChainID,
		Name:              req.Name,
		TokenAddress:      token,
		HumanAmount:       humanAmount,
		To:                to,
		IntervalInSeconds: req.IntervalInSeconds,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("Subscription created", "id", sub.ID, "chain_id", sub.ChainID)
	c.JSON(http.StatusCreated, sub)
}

// cancelSubscription is a handler for POST /subscriptions/:id/cancel?chain_id=N.
func (s *HTTPServer) cancelSubscription(c *gin.Context) {
	chainID, ok := chainIDQuery(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid subscription id: "+c.Param("id"))
		return
	}
	hash, err := s.solvere.CancelSubscription(c.Request.Context(), chainID, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, OperationResponse{Success: true, OperationHash: hash.Hex()})
}

// activity is a handler for GET /activity?chain_id=N.
// Every call runs a reconciliation pass before answering.
func (s *HTTPServer) activity(c *gin.Context) {
	chainID, ok := chainIDQuery(c)
	if !ok {
		return
	}
	feed, err := s.solvere.Activity(c.Request.Context(), chainID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (s *HTTPServer) listTokens(c *gin.Context) {
	chainID, ok := chainIDQuery(c)
	if !ok {
		return
	}
	tokens, err := s.solvere.ListTokens(c.Request.Context(), chainID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (s *HTTPServer) importToken(c *gin.Context) {
	var req ImportTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	addr, ok := address(c, "token address", req.Address)
	if !ok {
		return
	}
	token, err := s.solvere.ImportToken(c.Request.Context(), req.ChainID, addr)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, token)
}

// send is a handler for POST /send. It blocks until the transfer is included.
func (s *HTTPServer) send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	token, ok := address(c, "token address", req.TokenAddress)
	if !ok {
		return
	}
	to, ok := address(c, "recipient address", req.To)
	if !ok {
		return
	}
	value, ok := amount(c, req.Amount)
	if !ok {
		return
	}
	hash, err := s.solvere.SendToken(c.Request.Context(), req.ChainID, token, to, value)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, OperationResponse{Success: true, OperationHash: hash.Hex()})
}
