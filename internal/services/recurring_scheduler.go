package services

import (
	"context"
	"log"
	"time"
)

// RecurringScheduler periodically spawns due recurring order instances.
type RecurringScheduler struct {
	Orders   *OrderService
	Interval time.Duration
	Now      func() time.Time
}

// Run ticks until ctx is cancelled, running once immediately.
func (r *RecurringScheduler) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single pass.
func (r *RecurringScheduler) RunOnce(ctx context.Context) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	spawned, err := r.Orders.SpawnRecurringInstances(ctx, now())
	if err != nil {
		log.Printf("[Recurring] pass finished with errors: %v", err)
	}
	if spawned > 0 {
		log.Printf("[Recurring] spawned %d orders", spawned)
	}
}
