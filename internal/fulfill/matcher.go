// Package fulfill reconciles freshly uploaded materials with pending member
// requests: every pending request whose key matches the new material is
// completed, and its requester is told the material has arrived.
package fulfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"schoolbot/internal/catalog"
)

// Store is the request slice of the catalog the matcher needs.
type Store interface {
	ListPendingMatching(ctx context.Context, key catalog.Key) ([]catalog.Request, error)
	CompleteRequest(ctx context.Context, id int64) error
}

// Matcher completes pending requests a new material satisfies.
type Matcher struct {
	store    Store
	notifier Notifier
	log      *slog.Logger
}

// New constructs a matcher. notifier may be nil, in which case completed
// requests are not announced.
func New(store Store, notifier Notifier, log *slog.Logger) *Matcher {
	if log == nil {
		log = slog.Default()
	}
	return &Matcher{store: store, notifier: notifier, log: log}
}

// Resolve completes every pending request matching the material's key and
// notifies each requester. Completion is the source of truth: a failed
// notification never rolls the request back, it is only reported. Returns the
// number of requests completed.
func (m *Matcher) Resolve(ctx context.Context, mat catalog.Material) (int, error) {
	n, _, err := m.ResolveReport(ctx, mat)
	return n, err
}

// ResolveReport is Resolve with the per-requester delivery report attached.
func (m *Matcher) ResolveReport(ctx context.Context, mat catalog.Material) (int, DeliveryReport, error) {
	pending, err := m.store.ListPendingMatching(ctx, mat.Key())
	if err != nil {
		return 0, nil, fmt.Errorf("list pending requests: %w", err)
	}

	var (
		completed int
		report    DeliveryReport
	)
	for _, req := range pending {
		if err := m.store.CompleteRequest(ctx, req.ID); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				// Raced with another completion; nothing to announce.
				continue
			}
			return completed, report, fmt.Errorf("complete request %d: %w", req.ID, err)
		}
		completed++

		if m.notifier == nil {
			continue
		}
		d := Delivery{RequestID: req.ID, RequesterID: req.RequesterID}
		if err := m.notifier.NotifyFulfilled(ctx, req, mat); err != nil {
			d.Err = err
			m.log.Warn("fulfillment notice failed",
				slog.Int64("request_id", req.ID),
				slog.Int64("requester_id", req.RequesterID),
				slog.Any("error", err),
			)
		}
		report = append(report, d)
	}

	if completed > 0 {
		m.log.Info("requests auto-completed",
			slog.Int64("material_id", mat.ID),
			slog.Int("completed", completed),
			slog.Int("notify_failed", len(report.Failed())),
		)
	}
	return completed, report, nil
}
