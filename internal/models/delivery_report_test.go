package models

import (
	"errors"
	"testing"
	"time"
)

func validReport() DeliveryReport {
	return DeliveryReport{
		NotificationID:    "5f0c6a62-8a3c-4a51-9d47-3c1d5b1f2a10",
		Channel:           ChannelEmail,
		Status:            StatusDelivered,
		ProviderReference: "msg-0001",
		OccurredAt:        time.Now().Add(-time.Minute),
	}
}

func TestDeliveryReport_Validate(t *testing.T) {
	r := validReport()
	if err := r.Validate(); err != nil {
		t.Errorf("error: expected valid report, got %v", err)
	}
}

func TestDeliveryReport_ValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *DeliveryReport)
		field  string
	}{
		{"missing notification id", func(r *DeliveryReport) { r.NotificationID = " " }, "notification_id"},
		{"missing channel", func(r *DeliveryReport) { r.Channel = "" }, "channel"},
		{"missing status", func(r *DeliveryReport) { r.Status = "" }, "status"},
		{"missing time", func(r *DeliveryReport) { r.OccurredAt = time.Time{} }, "occurred_at"},
		{"notification id not a uuid", func(r *DeliveryReport) { r.NotificationID = "order-1" }, "notification_id"},
		{"unknown status", func(r *DeliveryReport) { r.Status = "opened" }, "status"},
		{"bad reference", func(r *DeliveryReport) { r.ProviderReference = "ref with spaces" }, "provider_reference"},
		{"future time", func(r *DeliveryReport) { r.OccurredAt = time.Now().Add(time.Hour) }, "occurred_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReport()
			tt.mutate(&r)

			err := r.Validate()
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error: expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("error: expected field %s, got %s", tt.field, verr.Field)
			}
		})
	}
}

func TestIsKnownStatus(t *testing.T) {
	for _, s := range []string{StatusDelivered, StatusTemporaryFailure, StatusPermanentFailure, StatusTechnicalFailure} {
		if !IsKnownStatus(s) {
			t.Errorf("error: %s should be known", s)
		}
	}
	if IsKnownStatus("sending") {
		t.Errorf("error: sending is not a delivery outcome")
	}
}

func TestOffsetSet(t *testing.T) {
	s := NewOffsetSet()
	s.Add(1, 11)
	s.Add(0, 5)

	snap := s.Snapshot()
	if len(snap) != 2 || s.Len() != 2 {
		t.Fatalf("error: expected 2 offsets, got %d", len(snap))
	}

	SortPartitionOffsets(snap)
	if snap[0] != (PartitionOffset{Partition: 0, Offset: 5}) {
		t.Errorf("error: unexpected first offset %+v", snap[0])
	}

	snap[0].Offset = 99
	if s.Snapshot()[1].Offset != 5 {
		t.Errorf("error: snapshot should be a copy")
	}
}

func TestMessage_NextOffset(t *testing.T) {
	m := Message{Partition: 2, Offset: 41}
	if m.NextOffset() != 42 {
		t.Errorf("error: expected 42, got %d", m.NextOffset())
	}
}
