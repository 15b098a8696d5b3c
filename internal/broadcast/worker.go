package broadcast

import (
	"context"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// BroadcastOrderArgs is the queued announcement of a newly created order.
// The job is inserted in the order-creation transaction, so it only ever
// runs for committed orders.
type BroadcastOrderArgs struct {
	OrderID uuid.UUID `json:"order_id"`
}

func (BroadcastOrderArgs) Kind() string { return "broadcast_order" }

type BroadcastOrderWorker struct {
	river.WorkerDefaults[BroadcastOrderArgs]
	broadcaster *Broadcaster
}

func NewBroadcastOrderWorker(b *Broadcaster) *BroadcastOrderWorker {
	return &BroadcastOrderWorker{broadcaster: b}
}

func (w *BroadcastOrderWorker) Work(ctx context.Context, job *river.Job[BroadcastOrderArgs]) error {
	return w.broadcaster.Notify(ctx, job.Args.OrderID)
}
