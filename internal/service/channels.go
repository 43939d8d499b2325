package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"statusflow/internal/interfaces"
	"statusflow/internal/models"
)

// ErrUnknownChannel is returned when no handler is registered for a channel
var ErrUnknownChannel = errors.New("unknown channel")

var emailStatuses = map[string]string{
	"delivery":            models.StatusDelivered,
	"complaint":           models.StatusDelivered,
	"bounce:permanent":    models.StatusPermanentFailure,
	"bounce:transient":    models.StatusTemporaryFailure,
	"bounce:undetermined": models.StatusTemporaryFailure,
	"reject":              models.StatusTechnicalFailure,
}

var smsStatuses = map[string]string{
	"delivrd": models.StatusDelivered,
	"undeliv": models.StatusPermanentFailure,
	"rejectd": models.StatusPermanentFailure,
	"expired": models.StatusTemporaryFailure,
	"unknown": models.StatusTechnicalFailure,
}

// baseHandler holds what email and SMS handlers share
type baseHandler struct {
	channel  string
	statuses map[string]string
	service  *StatusService
}

func (h *baseHandler) Channel() string {
	return h.channel
}

func (h *baseHandler) Parse(payload []byte) (*models.DeliveryReport, error) {
	var report models.DeliveryReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s delivery report: %w", h.channel, err)
	}

	if report.Channel == "" {
		report.Channel = h.channel
	}
	if report.Channel != h.channel {
		return nil, models.NewReportValidationError(
			"channel", fmt.Sprintf("expected %s, got %s", h.channel, report.Channel),
		)
	}

	if report.Status == "" && report.ProviderStatus != "" {
		status, ok := h.statuses[strings.ToLower(strings.TrimSpace(report.ProviderStatus))]
		if !ok {
			return nil, models.NewReportValidationError(
				"provider_status", fmt.Sprintf("unknown %s provider status: %s", h.channel, report.ProviderStatus),
			)
		}
		report.Status = status
	}

	if err := report.Validate(); err != nil {
		return nil, err
	}
	return &report, nil
}

func (h *baseHandler) UpdateStatus(ctx context.Context, report *models.DeliveryReport) error {
	return h.service.Apply(ctx, report, h.suppressionKey(report))
}

func (h *baseHandler) suppressionKey(report *models.DeliveryReport) string {
	return h.channel + ":" + report.NotificationID + ":" + report.Status
}

// An EmailHandler handles email provider callbacks
type EmailHandler struct {
	baseHandler
}

// NewEmailHandler creates the email channel handler
func NewEmailHandler(service *StatusService) *EmailHandler {
	return &EmailHandler{baseHandler{channel: models.ChannelEmail, statuses: emailStatuses, service: service}}
}

// SuppressionKey identifies an email report by notification and resulting status
func (h *EmailHandler) SuppressionKey(report *models.DeliveryReport) string {
	return h.suppressionKey(report)
}

// An SMSHandler handles SMS delivery receipts
type SMSHandler struct {
	baseHandler
}

// NewSMSHandler creates the SMS channel handler
func NewSMSHandler(service *StatusService) *SMSHandler {
	return &SMSHandler{baseHandler{channel: models.ChannelSMS, statuses: smsStatuses, service: service}}
}

// SuppressionKey prefers the provider reference, SMS gateways resend receipts with the same one
func (h *SMSHandler) SuppressionKey(report *models.DeliveryReport) string {
	if report.ProviderReference != "" {
		return h.channel + ":" + report.ProviderReference + ":" + report.Status
	}
	return h.suppressionKey(report)
}

// UpdateStatus applies report under the SMS suppression key
func (h *SMSHandler) UpdateStatus(ctx context.Context, report *models.DeliveryReport) error {
	return h.service.Apply(ctx, report, h.SuppressionKey(report))
}

// A Registry selects the handler of a channel
type Registry struct {
	handlers map[string]interfaces.ChannelHandler
}

// NewRegistry creates a registry from handlers
func NewRegistry(handlers ...interfaces.ChannelHandler) *Registry {
	r := &Registry{handlers: make(map[string]interfaces.ChannelHandler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.Channel()] = h
	}
	return r
}

// Get returns the handler registered for channel
func (r *Registry) Get(channel string) (interfaces.ChannelHandler, error) {
	h, ok := r.handlers[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	return h, nil
}

// Channels returns the registered channel names
func (r *Registry) Channels() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
