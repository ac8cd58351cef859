package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/stockledger/pkg/kafka"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

type pinger interface {
	Ping(context.Context) error
}

type messageConsumer interface {
	Run(ctx context.Context, h kafka.Handler) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	DB       pinger
	Redis    pinger
	Consumer messageConsumer
	Handler  kafka.Handler
}

// Service feeds fulfillment events from Kafka into the stock ledger.
type Service struct {
	logg     *logger.Logger
	db       pinger
	redis    pinger
	consumer messageConsumer
	handler  kafka.Handler
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("kafka consumer is required")
	}
	if params.Handler == nil {
		return nil, errors.New("message handler is required")
	}
	return &Service{
		logg:     params.Logger,
		db:       params.DB,
		redis:    params.Redis,
		consumer: params.Consumer,
		handler:  params.Handler,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	return pingDependency(ctx, s.logg, "redis", s.redis.Ping)
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run blocks until ctx is canceled or the consumer fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}
	if err := s.consumer.Run(ctx, s.handler); err != nil {
		return err
	}
	return ctx.Err()
}
