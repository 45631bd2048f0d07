package delivery

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/carepass/internal/access/entity"
	"github.com/shandysiswandi/carepass/internal/pkg/goroutine"
)

// ErrDropped is returned when no worker slot was free for a delivery.
var ErrDropped = errors.New("delivery: dropped, worker pool is full")

type deliverer interface {
	Deliver(ctx context.Context, d entity.Delivery) error
}

// Async runs the wrapped deliverer on the goroutine manager. The request's
// cancellation does not reach the background delivery.
type Async struct {
	next deliverer
	gm   *goroutine.Manager
}

func NewAsync(next deliverer, gm *goroutine.Manager) *Async {
	return &Async{next: next, gm: gm}
}

func (a *Async) Deliver(ctx context.Context, d entity.Delivery) error {
	ok := a.gm.Go(context.WithoutCancel(ctx), func(ctx context.Context) error {
		if err := a.next.Deliver(ctx, d); err != nil {
			slog.ErrorContext(ctx, "failed to deliver otp", "purpose", d.Purpose.String(), "error", err)
			return err
		}
		return nil
	})
	if !ok {
		return ErrDropped
	}
	return nil
}
