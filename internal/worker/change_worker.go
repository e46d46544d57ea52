package worker

import (
	"context"
	"sync/atomic"

	"finpulse/internal/log"
	"finpulse/internal/notify"
)

// Consumer is the remote side of the change channel; amqp.Client
// implements it.
type Consumer interface {
	Run(ctx context.Context, handler func(context.Context, notify.Event) error) error
}

// ChangeWorker feeds change events from other instances into the local
// bus. The exchange echoes our own publications back; those are dropped.
type ChangeWorker struct {
	consumer Consumer
	bus      *notify.Bus

	delivered atomic.Int64
	dropped   atomic.Int64
}

func NewChangeWorker(consumer Consumer, bus *notify.Bus) *ChangeWorker {
	return &ChangeWorker{consumer: consumer, bus: bus}
}

// Run blocks until ctx is cancelled or the consumer gives up. It logs
// through the logger carried by ctx.
func (w *ChangeWorker) Run(ctx context.Context) error {
	logger := log.FromContext(ctx)
	logger.InfoContext(ctx, "Change worker started", log.FieldSource, w.bus.Source())
	err := w.consumer.Run(ctx, w.HandleChange)
	logger.InfoContext(ctx, "Change worker stopped",
		"delivered", w.delivered.Load(),
		"dropped", w.dropped.Load())
	return err
}

// HandleChange processes a single event from the exchange.
func (w *ChangeWorker) HandleChange(ctx context.Context, e notify.Event) error {
	if !w.bus.Deliver(ctx, e) {
		w.dropped.Add(1)
		return nil
	}
	w.delivered.Add(1)
	log.FromContext(ctx).DebugContext(ctx, "Delivered remote change",
		log.FieldSource, e.Source,
		log.FieldKind, e.Kind,
		log.FieldOperation, e.Op)
	return nil
}

// Stats reports how many events were delivered locally and how many were
// our own echoes.
func (w *ChangeWorker) Stats() (delivered, dropped int64) {
	return w.delivered.Load(), w.dropped.Load()
}
