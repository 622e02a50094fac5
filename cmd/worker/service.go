package main

import (
	"context"
	"fmt"

	"github.com/coralcart/loyalty-backend/pkg/config"
	"github.com/coralcart/loyalty-backend/pkg/logger"
)

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Consumer consumer
}

// Service runs the order lifecycle consumer until the context is canceled.
type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	consumer consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if params.Consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		consumer: params.Consumer,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	s.logg.Info(ctx, "order lifecycle consumer listening")
	return s.consumer.Run(ctx)
}
