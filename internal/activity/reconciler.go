package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/core-coin/solvere/internal/chains"
	"github.com/core-coin/solvere/internal/metrics"
	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/pkg/logger"
)

const DefaultConcurrency = 4

// Pass is the outcome of one reconciliation pass.
type Pass struct {
	// Feed is the whole activity of the scope, newest first.
	Feed []*models.ActivityAction
	// Recorded holds the payments this pass appended to the store.
	Recorded []*models.ActivityAction
	// Failed counts subscriptions that could not be reconciled.
	Failed int
}

type Reconciler struct {
	repo        models.Repository
	registry    *chains.Registry
	strategy    Strategy
	concurrency int
	logger      *logger.Logger
}

func NewReconciler(repo models.Repository, registry *chains.Registry, strategy Strategy, concurrency int, logger *logger.Logger) *Reconciler {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Reconciler{
		repo:        repo,
		registry:    registry,
		strategy:    strategy,
		concurrency: concurrency,
		logger:      logger.Named("reconciler"),
	}
}

// Strategy returns the configured strategy.
func (r *Reconciler) Strategy() Strategy {
	return r.strategy
}

// Reconcile brings the stored activity of the scope up to date as of asOf and
// returns the merged feed. Subscriptions are reconciled concurrently; a failure
// of one subscription is logged and counted but never aborts the pass.
func (r *Reconciler) Reconcile(ctx context.Context, scope models.Scope, asOf int64) (*Pass, error) {
	settings, err := r.registry.Get(scope.ChainID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	chainLabel := metrics.ChainLabel(scope.ChainID)
	defer func() {
		metrics.ReconcileDuration.WithLabelValues(chainLabel, r.strategy.Name()).Observe(time.Since(start).Seconds())
	}()

	subs, err := r.repo.ListSubscriptions(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	tokens, err := r.repo.ListTokens(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	history, err := r.repo.ListActivity(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}

	var (
		mu       sync.Mutex
		recorded []*models.ActivityAction
		notices  []*models.ActivityAction
		failed   int
	)
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)

	for _, stored := range subs {
		// CanceledAt is read once per pass. A cancellation landing while the
		// pass runs is picked up by the next one.
		sub := stored.Snapshot()
		g.Go(func() error {
			token, ok := models.FindToken(tokens, sub.TokenAddress)
			if !ok {
				mu.Lock()
				notices = append(notices, MissingTokenNotice(&sub))
				mu.Unlock()
				return nil
			}

			added, err := r.reconcileSubscription(ctx, &sub, token, lastPayment(history, sub.ID), asOf)
			mu.Lock()
			defer mu.Unlock()
			recorded = append(recorded, added...)
			if err != nil {
				failed++
				metrics.ReconcileErrors.WithLabelValues(chainLabel, r.strategy.Name()).Inc()
				r.logger.Error("Failed to reconcile subscription", "scope", scope.String(), "subscription", sub.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	feed := make([]*models.ActivityAction, 0, len(history)+len(recorded)+len(notices))
	feed = append(feed, history...)
	feed = append(feed, recorded...)
	feed = append(feed, notices...)
	for _, action := range feed {
		if action.OperationHash != nil {
			action.ExplorerLink = settings.ExplorerURL(*action.OperationHash)
		}
	}
	models.SortActivity(feed)

	if len(recorded) > 0 || failed > 0 {
		r.logger.Info("Reconciled activity", "scope", scope.String(), "strategy", r.strategy.Name(), "recorded", len(recorded), "failed", failed)
	}
	return &Pass{Feed: feed, Recorded: recorded, Failed: failed}, nil
}

// reconcileSubscription stores the new payments of one subscription in
// sequence order and returns the ones actually inserted.
func (r *Reconciler) reconcileSubscription(ctx context.Context, sub *models.Subscription, token *models.Token, lastPaid *models.ActivityAction, asOf int64) ([]*models.ActivityAction, error) {
	chainLabel := metrics.ChainLabel(sub.ChainID)
	actions, strategyErr := r.strategy.Payments(ctx, sub, token, lastPaid, asOf)

	var inserted []*models.ActivityAction
	for _, action := range actions {
		ok, err := r.repo.AddActivity(ctx, action)
		if err != nil {
			return inserted, fmt.Errorf("failed to store payment at %d: %w", action.Timestamp, err)
		}
		if !ok {
			metrics.PaymentsDuplicate.WithLabelValues(chainLabel, r.strategy.Name()).Inc()
			continue
		}
		metrics.PaymentsRecorded.WithLabelValues(chainLabel, r.strategy.Name()).Inc()
		inserted = append(inserted, action)
	}
	return inserted, strategyErr
}
