package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rental-booking/internal/cache"
	"rental-booking/internal/lifecycle"
	"rental-booking/internal/repository"

	"go.uber.org/zap"
)

// Worker drains a Source and delivers each message at most once per transition
type Worker struct {
	source    Source
	users     repository.UserStore
	dedupe    cache.KVStore
	sender    Sender
	dedupeTTL time.Duration
	logger    *zap.Logger
}

func NewWorker(source Source, users repository.UserStore, dedupe cache.KVStore, sender Sender, dedupeTTL time.Duration, logger *zap.Logger) *Worker {
	if dedupeTTL <= 0 {
		dedupeTTL = 7 * 24 * time.Hour
	}
	return &Worker{
		source:    source,
		users:     users,
		dedupe:    dedupe,
		sender:    sender,
		dedupeTTL: dedupeTTL,
		logger:    logger,
	}
}

// Run blocks until ctx is done
func (w *Worker) Run(ctx context.Context) error {
	return w.source.Consume(ctx, w.Handle)
}

func dedupeKey(key string) string {
	return "rental:notify:sent:" + key
}

// Handle applies the recipient's gates, claims the transition key and sends
func (w *Worker) Handle(ctx context.Context, msg *Message) error {
	user, err := w.users.GetUser(ctx, msg.To)
	if errors.Is(err, repository.ErrNotFound) {
		w.logger.Warn("Dropping notification for unknown recipient",
			zap.String("message_id", msg.ID),
			zap.String("to", msg.To),
		)
		return nil
	}
	if err != nil {
		return w.failure(msg, fmt.Errorf("failed to load recipient: %w", err))
	}

	if msg.SubscriptionGate && !user.ENotifications {
		w.logger.Debug("Recipient unsubscribed, skipping", zap.String("message_id", msg.ID), zap.String("to", msg.To))
		return nil
	}
	if msg.ConfirmationGate && !user.EValidated {
		w.logger.Debug("Recipient address not validated, skipping", zap.String("message_id", msg.ID), zap.String("to", msg.To))
		return nil
	}

	key := dedupeKey(msg.Key)
	claimed, err := w.dedupe.SetNX(ctx, key, msg.ID, w.dedupeTTL)
	if err != nil {
		return w.failure(msg, fmt.Errorf("failed to claim dedupe key: %w", err))
	}
	if !claimed {
		w.logger.Info("Duplicate notification suppressed",
			zap.String("message_id", msg.ID),
			zap.String("key", msg.Key),
		)
		return nil
	}

	env := Envelope{
		MessageID:  msg.ID,
		TemplateID: msg.TemplateID,
		Locale:     msg.Locale,
		To:         user.Email,
		Username:   user.Username,
		Args:       msg.Args,
	}
	if err := w.sender.Send(ctx, env); err != nil {
		// release the claim; the queue requeues failed messages
		if derr := w.dedupe.Del(ctx, key); derr != nil {
			w.logger.Warn("Failed to release dedupe key", zap.String("key", key), zap.Error(derr))
		}
		return w.failure(msg, err)
	}

	w.logger.Info("Notification sent",
		zap.String("message_id", msg.ID),
		zap.String("template_id", string(msg.TemplateID)),
		zap.String("request_id", msg.RequestID),
	)
	return nil
}

func (w *Worker) failure(msg *Message, err error) error {
	w.logger.Error("Notification delivery failed",
		zap.String("message_id", msg.ID),
		zap.String("request_id", msg.RequestID),
		zap.String("template_id", string(msg.TemplateID)),
		zap.String("error_code", lifecycle.CodeNotificationFailure),
		zap.Error(err),
	)
	return err
}
