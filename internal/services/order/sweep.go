package order

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
)

// Sweeper auto-releases orders stuck in Completed past the review window.
// Idempotent: the Completed -> Processing CAS means an order the client
// already acted on is a no-op, and a sweep pass can never double-advance.
type Sweeper struct {
	Svc      *Service
	Window   time.Duration
	Interval time.Duration
}

func NewSweeper(svc *Service, window, interval time.Duration) *Sweeper {
	return &Sweeper{Svc: svc, Window: window, Interval: interval}
}

func (w *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Println("[ReviewSweep] scanning for completed orders past the review window...")
				w.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce advances every eligible order exactly once.
func (w *Sweeper) RunOnce(ctx context.Context) {
	cutoff := time.Now().Add(-w.Window)
	ids, err := w.Svc.store.ListReviewExpired(ctx, cutoff)
	if err != nil {
		log.Printf("[ReviewSweep] list failed: %v", err)
		return
	}

	for _, id := range ids {
		if err := w.autoRelease(ctx, id); err != nil {
			log.Printf("[ReviewSweep] order %s: %v", id, err)
		}
	}
}

func (w *Sweeper) autoRelease(ctx context.Context, id uuid.UUID) error {
	o, err := w.Svc.store.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	// Re-check at sweep time: only act if still exactly in the waiting state.
	if o.Status != models.OrderStatusCompleted {
		return nil
	}

	_, _, err = w.Svc.performRelease(ctx, o, true)
	var conflict *apperr.ConcurrencyConflict
	if errors.As(err, &conflict) {
		// The client acted between the list and the CAS. Nothing to do.
		return nil
	}
	return err
}
