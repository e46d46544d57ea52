package worker

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpulse/internal/log"
	"finpulse/internal/notify"
)

// fakeConsumer replays a fixed list of events, then returns err.
type fakeConsumer struct {
	events []notify.Event
	err    error
}

func (f *fakeConsumer) Run(ctx context.Context, handler func(context.Context, notify.Event) error) error {
	for _, e := range f.events {
		if err := handler(ctx, e); err != nil {
			return err
		}
	}
	return f.err
}

func TestChangeWorker_DropsOwnEvents(t *testing.T) {
	bus := notify.NewBus()
	var got []notify.Event
	bus.Subscribe(func(_ context.Context, e notify.Event) { got = append(got, e) })

	stop := errors.New("consumer closed")
	consumer := &fakeConsumer{
		events: []notify.Event{
			{Type: notify.DataUpdated, Source: bus.Source(), Kind: "goals"},
			{Type: notify.DataUpdated, Source: "other-instance", Kind: "transactions"},
			{Type: notify.DataUpdated, Source: "third-instance", Op: notify.OpImport},
		},
		err: stop,
	}
	w := NewChangeWorker(consumer, bus)

	err := w.Run(context.Background())
	require.ErrorIs(t, err, stop)

	require.Len(t, got, 2)
	assert.Equal(t, "other-instance", got[0].Source)
	assert.Equal(t, notify.OpImport, got[1].Op)

	delivered, dropped := w.Stats()
	assert.Equal(t, int64(2), delivered)
	assert.Equal(t, int64(1), dropped)
}

func TestChangeWorker_HandleChangeWithoutSubscribers(t *testing.T) {
	w := NewChangeWorker(&fakeConsumer{}, notify.NewBus())
	require.NoError(t, w.HandleChange(context.Background(), notify.Event{Source: "x"}))
	delivered, _ := w.Stats()
	assert.Equal(t, int64(1), delivered)
}

func TestChangeWorker_LogsThroughContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Component: log.ComponentWorker, Output: &buf})
	ctx := log.NewContext(context.Background(), logger)

	w := NewChangeWorker(&fakeConsumer{}, notify.NewBus())
	require.NoError(t, w.Run(ctx))
	assert.Contains(t, buf.String(), "Change worker stopped")
	assert.Contains(t, buf.String(), "component=worker")
}
