package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vidproxy/vidproxy/internal/domain/repository"
	"github.com/vidproxy/vidproxy/internal/infrastructure/metrics"
)

// PurgeService evicts cached variants by explicit key or by purge tag. Tag
// purges resolve to keys through the variant index.
type PurgeService struct {
	store repository.VariantStore
	index repository.VariantIndex
	queue repository.PurgeQueue
}

// NewPurgeService creates a purge service. index may be nil, in which case tag
// purges fail; queue may be nil when no broker is configured.
func NewPurgeService(store repository.VariantStore, index repository.VariantIndex, queue repository.PurgeQueue) *PurgeService {
	return &PurgeService{store: store, index: index, queue: queue}
}

// Run consumes purge requests from the queue until ctx is cancelled.
func (s *PurgeService) Run(ctx context.Context) error {
	if s.queue == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.queue.ConsumePurges(ctx, func(req repository.PurgeRequest) error {
		return s.Execute(ctx, req)
	})
}

// Execute applies one purge request. Purges are idempotent: deleting an
// absent key is a no-op.
func (s *PurgeService) Execute(ctx context.Context, req repository.PurgeRequest) error {
	var firstErr error

	for _, key := range req.Keys {
		if err := s.purgeKey(ctx, key); err != nil {
			metrics.PurgesTotal.WithLabelValues(metrics.PurgeKindKey, metrics.PurgeError).Inc()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.PurgesTotal.WithLabelValues(metrics.PurgeKindKey, metrics.PurgeSuccess).Inc()
	}

	for _, tag := range req.Tags {
		if err := s.purgeTag(ctx, tag); err != nil {
			metrics.PurgesTotal.WithLabelValues(metrics.PurgeKindTag, metrics.PurgeError).Inc()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.PurgesTotal.WithLabelValues(metrics.PurgeKindTag, metrics.PurgeSuccess).Inc()
	}

	if firstErr != nil {
		slog.Warn("purge request partially failed",
			"purge_id", req.ID,
			"error", firstErr,
		)
	}
	return firstErr
}

func (s *PurgeService) purgeKey(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete variant %s: %w", key, err)
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete index row %s: %w", key, err)
		}
	}
	return nil
}

func (s *PurgeService) purgeTag(ctx context.Context, tag string) error {
	if s.index == nil {
		return fmt.Errorf("tag purge %s: no variant index configured", tag)
	}
	keys, err := s.index.KeysByTag(ctx, tag)
	if err != nil {
		return fmt.Errorf("resolve tag %s: %w", tag, err)
	}
	for _, key := range keys {
		if err := s.purgeKey(ctx, key); err != nil {
			return err
		}
	}
	slog.Info("purged variants by tag",
		"tag", tag,
		"keys", len(keys),
	)
	return nil
}
