package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"rental-booking/internal/lifecycle"
	"rental-booking/internal/models"
	"rental-booking/internal/trigger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type reqArgs = trigger.Args[models.Request, models.RequestUpdate]

func newRequest(status models.RequestStatus) *models.Request {
	return &models.Request{
		ID:        "req-1",
		UnitID:    "unit-1",
		CheckIn:   time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		CheckOut:  time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
		Status:    status,
		CreatedBy: "guest-1",
	}
}

func setupDispatcher(logger *zap.Logger) (*memQueue, *trigger.Registry[models.Request, models.RequestUpdate]) {
	q := &memQueue{}
	dir := newDirectory()
	reg := trigger.NewRegistry[models.Request, models.RequestUpdate]("request", logger)
	NewDispatcher(q, dir, dir, logger).Register(reg)
	return q, reg
}

func TestNewRequestGoesToHostInHostLocale(t *testing.T) {
	q, reg := setupDispatcher(zap.NewNop())

	require.NoError(t, reg.Fire(context.Background(), reqArgs{Event: trigger.AfterCreated, New: newRequest(models.StatusWait)}))

	require.Len(t, q.msgs, 1)
	msg := q.msgs[0]
	assert.Equal(t, TemplateNewRequest, msg.TemplateID)
	assert.Equal(t, "host-1", msg.To)
	assert.Equal(t, "es", msg.Locale)
	assert.Equal(t, "tom", msg.Args[ArgRequester])
	assert.Equal(t, "05/01/2024", msg.Args[ArgCheckIn])
	assert.Equal(t, "07/01/2024", msg.Args[ArgCheckOut])
	assert.True(t, msg.SubscriptionGate)
	assert.True(t, msg.ConfirmationGate)
	assert.Equal(t, "req-1:WAIT", msg.Key)
	assert.NotEmpty(t, msg.ID)
}

func TestDecisionGoesToRequester(t *testing.T) {
	for _, status := range []models.RequestStatus{models.StatusApproved, models.StatusDenied} {
		t.Run(string(status), func(t *testing.T) {
			q, reg := setupDispatcher(zap.NewNop())

			require.NoError(t, reg.Fire(context.Background(), reqArgs{
				Event:    trigger.AfterEdited,
				Original: newRequest(models.StatusWait),
				New:      newRequest(status),
			}))

			require.Len(t, q.msgs, 1)
			want, _ := DecisionTemplate(status)
			assert.Equal(t, want, q.msgs[0].TemplateID)
			assert.Equal(t, "guest-1", q.msgs[0].To)
			assert.Equal(t, "en", q.msgs[0].Locale)
			assert.Equal(t, "marta", q.msgs[0].Args[ArgHost])
			assert.Equal(t, "Jan 5, 2024", q.msgs[0].Args[ArgCheckIn])
		})
	}
}

func TestMessageEditsDoNotNotify(t *testing.T) {
	q, reg := setupDispatcher(zap.NewNop())

	require.NoError(t, reg.Fire(context.Background(), reqArgs{
		Event:    trigger.AfterEdited,
		Original: newRequest(models.StatusApproved),
		New:      newRequest(models.StatusApproved),
	}))
	require.NoError(t, reg.Fire(context.Background(), reqArgs{
		Event:    trigger.AfterEdited,
		Original: newRequest(models.StatusWait),
		New:      newRequest(models.StatusWait),
	}))
	assert.Empty(t, q.msgs)
}

func TestQueueFailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)
	q := &memQueue{err: errors.New("redis: connection refused")}
	dir := newDirectory()
	reg := trigger.NewRegistry[models.Request, models.RequestUpdate]("request", logger)
	NewDispatcher(q, dir, dir, logger).Register(reg)

	err := reg.Fire(context.Background(), reqArgs{Event: trigger.AfterCreated, New: newRequest(models.StatusWait)})
	require.NoError(t, err)

	entries := logs.FilterField(zap.String("error_code", lifecycle.CodeNotificationFailure)).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
}

func TestMissingPartyIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)
	q := &memQueue{}
	dir := newDirectory()
	delete(dir.users, "guest-1")
	reg := trigger.NewRegistry[models.Request, models.RequestUpdate]("request", logger)
	NewDispatcher(q, dir, dir, logger).Register(reg)

	require.NoError(t, reg.Fire(context.Background(), reqArgs{Event: trigger.AfterCreated, New: newRequest(models.StatusWait)}))
	assert.Empty(t, q.msgs)
	assert.Equal(t, 1, logs.FilterField(zap.String("error_code", lifecycle.CodeNotificationFailure)).Len())
}
