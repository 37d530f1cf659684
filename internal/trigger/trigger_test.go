package trigger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type record struct{ Status string }
type update struct{ Status *string }

func TestFire_BeforeStopsAtFirstError(t *testing.T) {
	r := NewRegistry[record, update]("request", zap.NewNop())
	var calls []string
	veto := errors.New("no")

	r.On(BeforeCreate, "first", func(ctx context.Context, a Args[record, update]) error {
		calls = append(calls, "first")
		return veto
	})
	r.On(BeforeCreate, "second", func(ctx context.Context, a Args[record, update]) error {
		calls = append(calls, "second")
		return nil
	})

	err := r.Fire(context.Background(), Args[record, update]{Event: BeforeCreate, New: &record{}})
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, []string{"first"}, calls)
}

func TestFire_AfterRunsAllAndLogs(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := NewRegistry[record, update]("request", zap.New(core))
	var calls []string

	r.On(AfterEdited, "counter", func(ctx context.Context, a Args[record, update]) error {
		calls = append(calls, "counter")
		return errors.New("db down")
	})
	r.On(AfterEdited, "notify", func(ctx context.Context, a Args[record, update]) error {
		calls = append(calls, "notify")
		return nil
	})

	err := r.Fire(context.Background(), Args[record, update]{Event: AfterEdited})
	require.NoError(t, err)
	assert.Equal(t, []string{"counter", "notify"}, calls)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "counter", logs.All()[0].ContextMap()["handler"])
	assert.Equal(t, "AFTER_EDITED", logs.All()[0].ContextMap()["event"])
}

func TestFire_OnlyMatchingEvent(t *testing.T) {
	r := NewRegistry[record, update]("request", zap.NewNop())
	fired := false
	r.On(BeforeEdit, "guard", func(ctx context.Context, a Args[record, update]) error {
		fired = true
		return nil
	})

	require.NoError(t, r.Fire(context.Background(), Args[record, update]{Event: BeforeCreate}))
	assert.False(t, fired)
	require.NoError(t, r.Fire(context.Background(), Args[record, update]{Event: BeforeEdit}))
	assert.True(t, fired)
}

func TestFire_UnknownEvent(t *testing.T) {
	r := NewRegistry[record, update]("request", zap.NewNop())
	assert.Error(t, r.Fire(context.Background(), Args[record, update]{Event: Event(42)}))
	assert.Panics(t, func() {
		r.On(Event(-1), "bad", func(ctx context.Context, a Args[record, update]) error { return nil })
	})
}

func TestHandlersAndStrings(t *testing.T) {
	r := NewRegistry[record, update]("request", zap.NewNop())
	noop := func(ctx context.Context, a Args[record, update]) error { return nil }
	r.On(AfterCreated, "counter", noop)
	r.On(AfterCreated, "notify", noop)

	assert.Equal(t, []string{"counter", "notify"}, r.Handlers(AfterCreated))
	assert.Empty(t, r.Handlers(BeforeEdit))
	assert.Equal(t, "BEFORE_CREATE", BeforeCreate.String())
	assert.True(t, BeforeEdit.Vetoing())
	assert.False(t, AfterCreated.Vetoing())
}
