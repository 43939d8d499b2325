package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"statusflow/internal/cache"
	"statusflow/internal/config"
	"statusflow/internal/interfaces"
	"statusflow/internal/models"
)

// A StatusService applies delivery reports to stored notifications
type StatusService struct {
	repo           interfaces.StatusRepository
	suppression    *cache.Manager
	logger         *zerolog.Logger
	circuitBreaker *gobreaker.CircuitBreaker
	timeout        time.Duration
}

// NewStatusService creates a new status service with the provided repository, suppression cache and logger
func NewStatusService(
	repo interfaces.StatusRepository, suppression *cache.Manager, cbConfig config.CircuitBreakerConfig,
	logger *zerolog.Logger,
) *StatusService {
	cb := gobreaker.NewCircuitBreaker(
		gobreaker.Settings{
			Name:        "status-service",
			MaxRequests: uint32(cbConfig.HalfOpenMaxCalls),
			Interval:    cbConfig.Timeout,
			Timeout:     cbConfig.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(cbConfig.MaxFailers)
			},
			// a missing notification says nothing about the health of the database
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, interfaces.ErrNotificationNotFound)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state changed")
				// statuses applied before an outage may not have survived it
				if to == gobreaker.StateOpen && suppression != nil {
					suppression.Flush()
				}
			},
		},
	)

	return &StatusService{
		repo:           repo,
		suppression:    suppression,
		logger:         logger,
		circuitBreaker: cb,
		timeout:        30 * time.Second,
	}
}

// Apply stores the status carried by report unless a report with the same suppression key
// was applied recently
func (s *StatusService) Apply(ctx context.Context, report *models.DeliveryReport, suppressionKey string) error {
	start := time.Now()

	if report == nil {
		err := errors.New("delivery report cannot be nil")
		s.logger.Error().Err(err).Msg("Apply: received nil report")
		return err
	}

	if s.suppression != nil && s.suppression.Seen(suppressionKey) {
		s.logger.Debug().
			Str("notification_id", report.NotificationID).
			Str("suppression_key", suppressionKey).
			Msg("Apply: duplicate report suppressed")
		return nil
	}

	updateCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.circuitBreaker.Execute(
		func() (interface{}, error) {
			return nil, s.repo.UpdateStatus(updateCtx, report)
		},
	)

	duration := time.Since(start)

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("notification_id", report.NotificationID).
			Str("channel", report.Channel).
			Str("status", report.Status).
			Dur("duration", duration).
			Msg("Apply: status update failed")
		return fmt.Errorf("failed to update status: %w", err)
	}

	if s.suppression != nil {
		s.suppression.Mark(suppressionKey)
	}
	return nil
}
