package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/invoice"
)

const (
	defaultRetryInterval = time.Minute
	retryBatchSize       = 50
)

// EmbeddingWorker retries embedding generation for invoices whose vectors
// are pending or failed, so a provider outage during submission heals
// without operator intervention.
type EmbeddingWorker struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger
}

// NewEmbeddingWorker creates a worker. interval <= 0 uses the default.
func NewEmbeddingWorker(svc *Service, interval time.Duration, logger *zap.Logger) *EmbeddingWorker {
	if interval <= 0 {
		interval = defaultRetryInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingWorker{service: svc, interval: interval, logger: logger}
}

// Run sweeps periodically until the context is cancelled.
func (w *EmbeddingWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.Sweep(ctx); err != nil {
				w.logger.Warn("embedding retry sweep failed", zap.Error(err))
			} else if n > 0 {
				w.logger.Info("embedding retry sweep", zap.Int("recovered", n))
			}
		}
	}
}

// Sweep retries one batch of unembedded invoices and returns how many
// became ready.
func (w *EmbeddingWorker) Sweep(ctx context.Context) (int, error) {
	pending, err := w.service.invoices.ListByEmbeddingStatus(ctx, retryBatchSize,
		invoice.EmbeddingPending, invoice.EmbeddingFailed)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for i := range pending {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		inv := &pending[i]
		w.service.embedInvoice(ctx, inv)
		if inv.EmbeddingStatus == invoice.EmbeddingReady {
			recovered++
		}
	}
	return recovered, nil
}
