package fulfill

import (
	"context"

	"schoolbot/internal/catalog"
)

// Notifier delivers a fulfillment notice to one requester. Implementations
// live in the transport layer; delivery failures are reported, never fatal.
type Notifier interface {
	NotifyFulfilled(ctx context.Context, req catalog.Request, m catalog.Material) error
}

// Delivery records the outcome of one requester notification.
type Delivery struct {
	RequestID   int64
	RequesterID int64
	Err         error
}

// DeliveryReport aggregates per-requester notification outcomes for one
// resolve pass.
type DeliveryReport []Delivery

// Failed returns the deliveries that did not reach their requester.
func (r DeliveryReport) Failed() []Delivery {
	var out []Delivery
	for _, d := range r {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}
