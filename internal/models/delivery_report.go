package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Notification channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Notification statuses a delivery report can move a notification to
const (
	StatusDelivered        = "delivered"
	StatusTemporaryFailure = "temporary-failure"
	StatusPermanentFailure = "permanent-failure"
	StatusTechnicalFailure = "technical-failure"
)

var knownStatuses = map[string]struct{}{
	StatusDelivered:        {},
	StatusTemporaryFailure: {},
	StatusPermanentFailure: {},
	StatusTechnicalFailure: {},
}

var referencePattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// A DeliveryReport is a provider callback describing the outcome of one notification
type DeliveryReport struct {
	NotificationID    string    `json:"notification_id" db:"notification_id"`
	Channel           string    `json:"channel" db:"channel"`
	Status            string    `json:"status" db:"status"`
	ProviderStatus    string    `json:"provider_status,omitempty" db:"provider_status"`
	ProviderReference string    `json:"provider_reference" db:"provider_reference"`
	Recipient         string    `json:"recipient,omitempty" db:"recipient"`
	OccurredAt        time.Time `json:"occurred_at" db:"occurred_at"`
	Detail            string    `json:"detail,omitempty" db:"detail"`
}

// A ValidationError is a custom error type for data validation
type ValidationError struct {
	Field   string
	Struct  string
	Message string
}

// Error is an interface implementation for errors
func (e ValidationError) Error() string {
	return fmt.Sprintf("Validation error in field %s.%s: %s", e.Struct, e.Field, e.Message)
}

// NewReportValidationError is a validation error in the DeliveryReport
func NewReportValidationError(field, message string) ValidationError {
	return ValidationError{field, "delivery_report", message}
}

// IsKnownStatus reports whether status is one of the notification statuses
func IsKnownStatus(status string) bool {
	_, ok := knownStatuses[status]
	return ok
}

// Validate checks if the DeliveryReport data is correct
func (r *DeliveryReport) Validate() error {
	if err := r.validateRequired(); err != nil {
		return err
	}
	if err := r.validateLogic(); err != nil {
		return err
	}

	return nil
}

// validateRequired checks if the required fields of a DeliveryReport are set
func (r *DeliveryReport) validateRequired() error {
	if strings.TrimSpace(r.NotificationID) == "" {
		return NewReportValidationError("notification_id", "is required")
	}
	if strings.TrimSpace(r.Channel) == "" {
		return NewReportValidationError("channel", "is required")
	}
	if strings.TrimSpace(r.Status) == "" {
		return NewReportValidationError("status", "is required")
	}
	if r.OccurredAt.IsZero() {
		return NewReportValidationError("occurred_at", "is required")
	}

	return nil
}

// validateLogic checks that values for DeliveryReport fields are valid
func (r *DeliveryReport) validateLogic() error {
	if _, err := uuid.Parse(r.NotificationID); err != nil {
		return NewReportValidationError("notification_id", "must be a uuid")
	}
	if !IsKnownStatus(r.Status) {
		return NewReportValidationError("status", fmt.Sprintf("unknown status: %s", r.Status))
	}
	if r.ProviderReference != "" && !referencePattern.MatchString(r.ProviderReference) {
		return NewReportValidationError(
			"provider_reference", fmt.Sprintf("invalid provider reference: %s", r.ProviderReference),
		)
	}
	if r.OccurredAt.After(time.Now().Add(5 * time.Minute)) {
		return NewReportValidationError("occurred_at", "cannot be in the future")
	}

	return nil
}
