// Package events publishes a change feed of request and unit state so other
// services (search, calendars) can follow bookings without polling the store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rental-booking/internal/models"
	"rental-booking/internal/trigger"

	"go.uber.org/zap"
)

// Kind of change
type Kind string

const (
	RequestCreated  Kind = "request.created"
	RequestApproved Kind = "request.approved"
	RequestDenied   Kind = "request.denied"
	UnitBooked      Kind = "unit.booked"
	UnitReleased    Kind = "unit.released"
)

// Event one change-feed entry
type Event struct {
	Kind      Kind      `json:"kind"`
	RequestID string    `json:"request_id,omitempty"`
	UnitID    string    `json:"unit_id"`
	Status    string    `json:"status,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher emits change-feed events
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event; used when the feed is disabled
type Nop struct{}

func (Nop) Publish(ctx context.Context, ev Event) error { return nil }

// mqttClient the subset of the MQTT client the publisher needs
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTPublisher publishes events as JSON to <prefix>/requests/<id> or <prefix>/units/<id>
type MQTTPublisher struct {
	client mqttClient
	prefix string
	qos    byte
	logger *zap.Logger
}

func NewMQTTPublisher(client mqttClient, prefix string, qos byte, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix, qos: qos, logger: logger}
}

// Topic where ev is published
func (p *MQTTPublisher) Topic(ev Event) string {
	switch ev.Kind {
	case UnitBooked, UnitReleased:
		return fmt.Sprintf("%s/units/%s", p.prefix, ev.UnitID)
	}
	return fmt.Sprintf("%s/requests/%s", p.prefix, ev.RequestID)
}

func (p *MQTTPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	topic := p.Topic(ev)
	if err := p.client.Publish(topic, p.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	p.logger.Debug("Event published", zap.String("topic", topic), zap.String("kind", string(ev.Kind)))
	return nil
}

// Register publishes request events from the After* triggers
func Register(reg *trigger.Registry[models.Request, models.RequestUpdate], pub Publisher) {
	reg.On(trigger.AfterCreated, "events.request_created", func(ctx context.Context, a trigger.Args[models.Request, models.RequestUpdate]) error {
		if a.New == nil {
			return nil
		}
		return pub.Publish(ctx, requestEvent(RequestCreated, a.New))
	})
	reg.On(trigger.AfterEdited, "events.request_decided", func(ctx context.Context, a trigger.Args[models.Request, models.RequestUpdate]) error {
		if a.Original == nil || a.New == nil || a.Original.Status == a.New.Status {
			return nil
		}
		switch a.New.Status {
		case models.StatusApproved:
			return pub.Publish(ctx, requestEvent(RequestApproved, a.New))
		case models.StatusDenied:
			return pub.Publish(ctx, requestEvent(RequestDenied, a.New))
		}
		return nil
	})
}

func requestEvent(kind Kind, req *models.Request) Event {
	return Event{
		Kind:      kind,
		RequestID: req.ID,
		UnitID:    req.UnitID,
		Status:    string(req.Status),
		At:        time.Now().UTC(),
	}
}
