package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statusflow/internal/metrics/metricstest"
	"statusflow/internal/models"
)

type mockPublisher struct {
	mu     sync.Mutex
	topics []string
	values [][]byte
	err    error
}

func (p *mockPublisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.values = append(p.values, value)
	return nil
}

func validPayload() []byte {
	return []byte(`{"notification_id":"` + testNotificationID + `","provider_status":"delivery","occurred_at":"2026-03-01T12:00:00Z"}`)
}

func TestPipeline_Process(t *testing.T) {
	repo := &mockRepository{}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	p := NewPipeline(NewEmailHandler(newTestService(t, repo)), &mockPublisher{}, "email.retry", nil, &logger)

	err := p.Process(context.Background(), models.Message{Topic: "email", Value: validPayload()})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.count())
}

func TestPipeline_ProcessDropsMalformed(t *testing.T) {
	repo := &mockRepository{}
	recorder, collector := metricstest.NewRecorder(t)
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	p := NewPipeline(NewEmailHandler(newTestService(t, repo)), &mockPublisher{}, "email.retry", recorder, &logger)

	err := p.Process(context.Background(), models.Message{Topic: "email", Value: []byte("garbage")})
	require.NoError(t, err)
	assert.Equal(t, 0, repo.count())
	assert.Equal(t, int64(1), collector.Sum("consumer.messages.dropped"))
}

func TestPipeline_ProcessFailure(t *testing.T) {
	repo := &mockRepository{err: errors.New("database is down")}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	p := NewPipeline(NewEmailHandler(newTestService(t, repo)), &mockPublisher{}, "email.retry", nil, &logger)

	err := p.Process(context.Background(), models.Message{Topic: "email", Value: validPayload()})
	assert.Error(t, err)
}

func TestPipeline_Escalate(t *testing.T) {
	publisher := &mockPublisher{}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	p := NewPipeline(NewEmailHandler(newTestService(t, &mockRepository{})), publisher, "email.retry", nil, &logger)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	require.NoError(t, p.Escalate(context.Background(), models.Message{Topic: "email", Value: validPayload()}))

	require.Len(t, publisher.values, 1)
	assert.Equal(t, "email.retry", publisher.topics[0])

	env, err := models.DecodeRetryEnvelope(publisher.values[0])
	require.NoError(t, err)
	assert.Equal(t, 0, env.Attempts)
	assert.True(t, env.FirstSeen.Equal(now))
	assert.Equal(t, string(validPayload()), env.SendOperationResult)
}

func TestPipeline_EscalateFailure(t *testing.T) {
	publisher := &mockPublisher{err: errors.New("broker unavailable")}
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	p := NewPipeline(NewEmailHandler(newTestService(t, &mockRepository{})), publisher, "email.retry", nil, &logger)

	assert.Error(t, p.Escalate(context.Background(), models.Message{Topic: "email", Value: validPayload()}))
}
