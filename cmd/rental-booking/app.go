package main

import (
	"context"
	"database/sql"
	"fmt"

	"rental-booking/common/database"
	"rental-booking/common/logger"
	"rental-booking/common/mq"
	"rental-booking/common/mqtt"
	rediscommon "rental-booking/common/redis"
	"rental-booking/internal/cache"
	"rental-booking/internal/config"
	"rental-booking/internal/events"
	"rental-booking/internal/notification"
	"rental-booking/internal/obs"
	"rental-booking/internal/reconciler"
	"rental-booking/internal/repository"
	"rental-booking/internal/service"

	"go.uber.org/zap"
)

const (
	serviceName    = "rental-booking"
	serviceVersion = "1.0.0"
)

// app holds the connections a command opened; close releases them in reverse order
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db    *sql.DB
	redis *rediscommon.Client
	mqtt  *mqtt.Client
	feed  events.Publisher

	requests *repository.PostgresRequestRepository
	units    *repository.PostgresUnitRepository
	users    *repository.PostgresUserRepository

	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	a := &app{cfg: cfg, logger: log}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	shutdown, err := obs.InitTracer(ctx, serviceName, serviceVersion, cfg.OTLPEndpoint)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to init tracer: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("Tracer shutdown failed", zap.Error(err))
		}
	})
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) openDB() error {
	db, err := database.NewPostgresDB(&a.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func() { _ = database.Close(db) })

	a.requests = repository.NewPostgresRequestRepository(db, a.logger)
	a.units = repository.NewPostgresUnitRepository(db, a.logger)
	a.users = repository.NewPostgresUserRepository(db, a.logger)
	return nil
}

func (a *app) openRedis(ctx context.Context) error {
	client := rediscommon.NewRedisClient(&a.cfg.Redis)
	if err := rediscommon.Ping(ctx, client); err != nil {
		_ = rediscommon.Close(client)
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.redis = client
	a.closers = append(a.closers, func() { _ = rediscommon.Close(client) })
	return nil
}

func (a *app) unitCache() *cache.UnitCache {
	var kv cache.KVStore
	if a.redis != nil {
		kv = cache.NewRedisKVStore(a.redis)
	}
	return cache.NewUnitCache(a.units, kv, a.cfg.Booking.UnitCacheTTL, a.logger)
}

// eventPublisher connects to the broker only when the change feed is enabled
func (a *app) eventPublisher() (events.Publisher, error) {
	if a.feed != nil {
		return a.feed, nil
	}
	if !a.cfg.Events.Enabled {
		a.feed = events.Nop{}
		return a.feed, nil
	}
	client, err := mqtt.NewClient(&a.cfg.MQTT, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt: %w", err)
	}
	a.mqtt = client
	a.closers = append(a.closers, client.Disconnect)
	a.feed = events.NewMQTTPublisher(client, a.cfg.Events.TopicPrefix, client.QoS(), a.logger)
	return a.feed, nil
}

// notificationQueue builds the configured outbox. With consume set the AMQP
// backend also declares its queue so the result can be drained.
func (a *app) notificationQueue(consume bool) (*queueHandle, error) {
	n := a.cfg.Notification
	switch n.Queue {
	case "amqp":
		pub, err := mq.NewPublisher(a.cfg.AMQP.URL, a.cfg.AMQP.Exchange)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to amqp: %w", err)
		}
		a.closers = append(a.closers, func() { _ = pub.Close() })

		var cons *mq.Consumer
		if consume {
			cons, err = mq.NewConsumer(a.cfg.AMQP.URL, a.cfg.AMQP.Exchange, a.cfg.AMQP.Queue, notification.RoutingKeys)
			if err != nil {
				return nil, fmt.Errorf("failed to start amqp consumer: %w", err)
			}
			a.closers = append(a.closers, func() { _ = cons.Close() })
		}
		q := notification.NewAMQPQueue(pub, cons, a.logger)
		return &queueHandle{Queue: q, Source: q}, nil
	default:
		if a.redis == nil {
			return nil, fmt.Errorf("redis notification queue requires a redis connection")
		}
		q := notification.NewStreamQueue(a.redis, n.Stream, n.ConsumerGroup, n.ConsumerName, n.BatchSize, a.logger)
		return &queueHandle{Queue: q, Source: q}, nil
	}
}

type queueHandle struct {
	notification.Queue
	notification.Source
}

func (a *app) bookingService(ctx context.Context) (*service.BookingService, error) {
	if err := a.openDB(); err != nil {
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		return nil, err
	}
	q, err := a.notificationQueue(false)
	if err != nil {
		return nil, err
	}
	pub, err := a.eventPublisher()
	if err != nil {
		return nil, err
	}
	return service.New(service.Deps{
		Requests:  a.requests,
		Units:     a.units,
		Users:     a.users,
		Counters:  a.units,
		UnitCache: a.unitCache(),
		Queue:     q.Queue,
		Events:    pub,
		Logger:    a.logger,
	}), nil
}

// reconciler needs the database and redis to be open
func (a *app) reconciler() (*reconciler.Reconciler, error) {
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}
	pub, err := a.eventPublisher()
	if err != nil {
		return nil, err
	}
	return reconciler.New(a.units, a.unitCache(), pub, loc, a.logger), nil
}
