package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"statusflow/internal/kafka"
	"statusflow/internal/models"
)

var providerStatuses = map[string][]string{
	models.ChannelEmail: {"delivery", "bounce:permanent", "bounce:transient", "complaint", "reject"},
	models.ChannelSMS:   {"delivrd", "undeliv", "expired", "rejectd", "unknown"},
}

func generateReport(channel, notificationID string) *models.DeliveryReport {
	statuses := providerStatuses[channel]

	return &models.DeliveryReport{
		NotificationID:    notificationID,
		Channel:           channel,
		ProviderStatus:    statuses[rand.Intn(len(statuses))],
		ProviderReference: fmt.Sprintf("ref-%08d", rand.Intn(100000000)),
		Recipient:         "test@example.com",
		OccurredAt:        time.Now().UTC(),
	}
}

func main() {
	_ = godotenv.Load("deployments/.env")

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	count := flag.Int("count", 1, "Number of delivery reports")
	channel := flag.String("channel", models.ChannelEmail, "Notification channel: email or sms")
	topic := flag.String("topic", "", "Target topic, defaults to <channel>-delivery-reports")
	notification := flag.String("notification", "", "Notification id to report on, random if empty")
	envelope := flag.Bool("envelope", false, "Wrap reports in retry envelopes, for feeding a retry topic")
	age := flag.Duration("age", 0, "How long ago the enveloped reports failed for the first time")
	flag.Parse()

	if _, ok := providerStatuses[*channel]; !ok {
		logger.Fatal().Str("channel", *channel).Msg("Unknown channel")
	}
	if *topic == "" {
		*topic = *channel + "-delivery-reports"
		if *envelope {
			*topic += ".retry"
		}
	}

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = "localhost:9092"
	}

	publisher := kafka.NewPublisher(kafka.ParseBrokers(brokers), 3, &logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error().Err(err).Msg("Error in closing publisher")
		}
	}()

	ctx := context.Background()
	for i := range *count {
		id := *notification
		if id == "" {
			id = uuid.NewString()
		}
		report := generateReport(*channel, id)

		data, err := json.Marshal(report)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to marshal report")
		}

		if *envelope {
			firstSeen := time.Now().Add(-*age)
			env := models.NewRetryEnvelope(data, firstSeen)
			err = kafka.PublishEnvelope(ctx, publisher, *topic, []byte(id), env)
		} else {
			err = publisher.Publish(ctx, *topic, []byte(id), data)
		}

		if err != nil {
			logger.Error().Err(err).Int("n", i+1).Msg("Failed to send report")
			continue
		}
		logger.Info().
			Str("topic", *topic).
			Str("notification_id", id).
			Str("provider_status", report.ProviderStatus).
			Msg("Sent report")
	}
}
