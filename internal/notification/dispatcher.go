package notification

import (
	"context"
	"fmt"
	"time"

	"rental-booking/internal/lifecycle"
	"rental-booking/internal/models"
	"rental-booking/internal/repository"
	"rental-booking/internal/trigger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Queue accepts messages for later delivery
type Queue interface {
	Enqueue(ctx context.Context, msg *Message) error
}

// Dispatcher builds the messages for a lifecycle edge and enqueues them.
// Nothing it does can fail the transition that triggered it.
type Dispatcher struct {
	queue  Queue
	units  repository.UnitStore
	users  repository.UserStore
	logger *zap.Logger
	now    func() time.Time
}

func NewDispatcher(queue Queue, units repository.UnitStore, users repository.UserStore, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		queue:  queue,
		units:  units,
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// Register attaches the dispatcher to the After* events of the request registry
func (d *Dispatcher) Register(reg *trigger.Registry[models.Request, models.RequestUpdate]) {
	reg.On(trigger.AfterCreated, "notification.new_request", func(ctx context.Context, a trigger.Args[models.Request, models.RequestUpdate]) error {
		if a.New == nil {
			return nil
		}
		unit, host, requester, err := d.parties(ctx, a.New)
		if err != nil {
			d.fail(a.New, TemplateNewRequest, err)
			return nil
		}
		d.NotifyNewRequest(ctx, a.New, unit, host, requester)
		return nil
	})
	reg.On(trigger.AfterEdited, "notification.decision", func(ctx context.Context, a trigger.Args[models.Request, models.RequestUpdate]) error {
		if a.Original == nil || a.New == nil {
			return nil
		}
		if a.Original.Status != models.StatusWait || !a.New.Status.Terminal() {
			return nil
		}
		unit, host, requester, err := d.parties(ctx, a.New)
		if err != nil {
			tmpl, _ := DecisionTemplate(a.New.Status)
			d.fail(a.New, tmpl, err)
			return nil
		}
		d.NotifyDecision(ctx, a.New, unit, host, requester)
		return nil
	})
}

func (d *Dispatcher) parties(ctx context.Context, req *models.Request) (*models.Unit, *models.User, *models.User, error) {
	unit, err := d.units.GetUnit(ctx, req.UnitID, "")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load unit %s: %w", req.UnitID, err)
	}
	host, err := d.users.GetUser(ctx, unit.CreatedBy)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load host %s: %w", unit.CreatedBy, err)
	}
	requester, err := d.users.GetUser(ctx, req.CreatedBy)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load requester %s: %w", req.CreatedBy, err)
	}
	return unit, host, requester, nil
}

// NotifyNewRequest tells the host someone asked for their unit
func (d *Dispatcher) NotifyNewRequest(ctx context.Context, req *models.Request, unit *models.Unit, host, requester *models.User) {
	locale := NormalizeLocale(host.AppLanguage)
	msg := &Message{
		ID:         uuid.NewString(),
		Key:        TransitionKey(req.ID, models.StatusWait),
		TemplateID: TemplateNewRequest,
		Locale:     locale,
		To:         host.ID,
		Args: map[string]string{
			ArgRequester: requester.Username,
			ArgCheckIn:   FormatDate(locale, req.CheckIn),
			ArgCheckOut:  FormatDate(locale, req.CheckOut),
			ArgUnit:      unit.Title,
		},
		SubscriptionGate: true,
		ConfirmationGate: true,
		RequestID:        req.ID,
		CreatedAt:        d.now(),
	}
	d.enqueue(ctx, req, msg)
}

// NotifyDecision tells the requester the host approved or denied the request
func (d *Dispatcher) NotifyDecision(ctx context.Context, req *models.Request, unit *models.Unit, host, requester *models.User) {
	tmpl, ok := DecisionTemplate(req.Status)
	if !ok {
		d.fail(req, "", fmt.Errorf("request %s is not decided (status %s)", req.ID, req.Status))
		return
	}
	locale := NormalizeLocale(requester.AppLanguage)
	msg := &Message{
		ID:         uuid.NewString(),
		Key:        TransitionKey(req.ID, req.Status),
		TemplateID: tmpl,
		Locale:     locale,
		To:         requester.ID,
		Args: map[string]string{
			ArgHost:     host.Username,
			ArgCheckIn:  FormatDate(locale, req.CheckIn),
			ArgCheckOut: FormatDate(locale, req.CheckOut),
			ArgUnit:     unit.Title,
		},
		SubscriptionGate: true,
		ConfirmationGate: true,
		RequestID:        req.ID,
		CreatedAt:        d.now(),
	}
	d.enqueue(ctx, req, msg)
}

func (d *Dispatcher) enqueue(ctx context.Context, req *models.Request, msg *Message) {
	if err := d.queue.Enqueue(ctx, msg); err != nil {
		d.fail(req, msg.TemplateID, err)
		return
	}
	d.logger.Debug("Notification enqueued",
		zap.String("message_id", msg.ID),
		zap.String("key", msg.Key),
		zap.String("template_id", string(msg.TemplateID)),
		zap.String("to", msg.To),
	)
}

func (d *Dispatcher) fail(req *models.Request, tmpl TemplateID, err error) {
	d.logger.Error("Failed to dispatch notification",
		zap.String("request_id", req.ID),
		zap.String("template_id", string(tmpl)),
		zap.String("error_code", lifecycle.CodeNotificationFailure),
		zap.Error(err),
	)
}
