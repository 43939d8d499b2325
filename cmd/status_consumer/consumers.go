package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"statusflow/internal/config"
	"statusflow/internal/interfaces"
	"statusflow/internal/kafka"
	"statusflow/internal/metrics"
	"statusflow/internal/service"
)

// buildConsumers creates a primary and a retry consumer for every configured channel
func buildConsumers(
	cfg *config.Config, brokers []string, registry *service.Registry, publisher interfaces.RetryPublisher,
	store interfaces.DeadLetterStore, recorder *metrics.Recorder, tracer trace.Tracer, logger zerolog.Logger,
) ([]*kafka.BatchConsumer, error) {
	var consumers []*kafka.BatchConsumer

	for _, ch := range cfg.Kafka.Channels {
		handler, err := registry.Get(ch.Name)
		if err != nil {
			return nil, err
		}

		primaryLogger := logger.With().Str("component", "kafka-consumer").Str("channel", ch.Name).Logger()
		primaryReader, err := kafka.NewReader(brokers, cfg.Kafka.GroupID, ch.Topic, &primaryLogger)
		if err != nil {
			return nil, err
		}
		pipeline := service.NewPipeline(handler, publisher, ch.RetryTopic, recorder, &primaryLogger)
		primary, err := kafka.NewBatchConsumer(
			consumerConfig(cfg, ch.Topic), primaryReader, pipeline.Process, pipeline.Escalate,
			recorder, tracer, &primaryLogger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer for %s: %w", ch.Topic, err)
		}

		retryLogger := logger.With().Str("component", "retry-consumer").Str("channel", ch.Name).Logger()
		retryReader, err := kafka.NewReader(brokers, cfg.Kafka.GroupID, ch.RetryTopic, &retryLogger)
		if err != nil {
			return nil, err
		}
		retryHandler, err := kafka.NewRetryHandler(
			kafka.RetryConfig{
				RetryTopic:       ch.RetryTopic,
				Threshold:        cfg.StatusRetryThreshold(),
				MinRetryInterval: cfg.MinRetryInterval(),
			},
			handler, publisher, store, recorder, &retryLogger,
		)
		if err != nil {
			return nil, err
		}
		retry, err := kafka.NewBatchConsumer(
			consumerConfig(cfg, ch.RetryTopic), retryReader, retryHandler.Handle, retryHandler.Handle,
			recorder, tracer, &retryLogger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer for %s: %w", ch.RetryTopic, err)
		}

		consumers = append(consumers, primary, retry)
	}

	return consumers, nil
}

func consumerConfig(cfg *config.Config, topic string) kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Topic:              topic,
		MaxBatchSize:       cfg.Kafka.MaxMessagesPerBatch,
		PollTimeout:        cfg.PollTimeout(),
		IdleBackoff:        cfg.IdleBackoff(),
		MaxConcurrentTasks: cfg.Kafka.MaxConcurrentProcessingTasks,
		DrainTimeout:       cfg.DrainTimeout(),
	}
}
