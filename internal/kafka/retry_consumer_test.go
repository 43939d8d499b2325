package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statusflow/internal/interfaces"
	"statusflow/internal/metrics/metricstest"
	"statusflow/internal/models"
)

const testRetryTopic = "email-delivery-reports.retry"

type retryFixture struct {
	handler   *RetryHandler
	channel   *fakeHandler
	publisher *fakePublisher
	store     *InMemoryDeadLetterStore
	collector *metricstest.Collector
	now       time.Time
}

func newRetryFixture(t *testing.T, config RetryConfig) *retryFixture {
	t.Helper()

	f := &retryFixture{
		channel:   &fakeHandler{},
		publisher: &fakePublisher{},
		store:     NewInMemoryDeadLetterStore(nopLogger()),
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if config.RetryTopic == "" {
		config.RetryTopic = testRetryTopic
	}
	if config.Threshold == 0 {
		config.Threshold = 50 * time.Second
	}

	recorder, collector := metricstest.NewRecorder(t)
	h, err := NewRetryHandler(config, f.channel, f.publisher, f.store, recorder, nopLogger())
	require.NoError(t, err)
	h.now = func() time.Time { return f.now }

	f.handler = h
	f.collector = collector
	return f
}

func (f *retryFixture) envelopeMessage(t *testing.T, firstSeenAgo time.Duration, attempts int) models.Message {
	t.Helper()

	env := models.NewRetryEnvelope([]byte("report-1"), f.now.Add(-firstSeenAgo))
	for range attempts {
		env = env.Next(env.LastAttempt.Add(time.Second))
	}
	data, err := env.Encode()
	require.NoError(t, err)
	return models.Message{Topic: testRetryTopic, Partition: 0, Offset: 7, Key: []byte("n-1"), Value: data}
}

func TestNewRetryHandler_Validation(t *testing.T) {
	_, err := NewRetryHandler(RetryConfig{RetryTopic: "r"}, &fakeHandler{}, &fakePublisher{}, nil, nil, nopLogger())
	assert.Error(t, err)

	_, err = NewRetryHandler(RetryConfig{Threshold: time.Second}, &fakeHandler{}, &fakePublisher{}, nil, nil, nopLogger())
	assert.Error(t, err)
}

func TestRetryHandler_ExpiredIsDeadLettered(t *testing.T) {
	f := newRetryFixture(t, RetryConfig{})
	msg := f.envelopeMessage(t, 600*time.Second, 3)

	err := f.handler.Handle(context.Background(), msg)
	require.NoError(t, err)

	records, err := f.store.List(context.Background(), interfaces.DeadLetterFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.ChannelEmail, records[0].Channel)
	assert.Equal(t, 3, records[0].AttemptCount)
	assert.Equal(t, "report-1", records[0].DeliveryReport)
	assert.True(t, records[0].FirstSeen.Equal(f.now.Add(-600*time.Second)))

	assert.Empty(t, f.publisher.sent())
	assert.Equal(t, 0, f.channel.updateCount())
	assert.Equal(t, int64(1), f.collector.Sum("consumer.messages.dead_lettered"))
}

func TestRetryHandler_FailureIsRepublished(t *testing.T) {
	f := newRetryFixture(t, RetryConfig{})
	f.channel.updateErr = errors.New("database is down")
	msg := f.envelopeMessage(t, 25*time.Second, 0)

	err := f.handler.Handle(context.Background(), msg)
	require.NoError(t, err)

	sent := f.publisher.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, testRetryTopic, sent[0].topic)
	assert.Equal(t, []byte("n-1"), sent[0].key)

	env, err := models.DecodeRetryEnvelope(sent[0].value)
	require.NoError(t, err)
	assert.Equal(t, 1, env.Attempts)
	assert.True(t, env.LastAttempt.Equal(f.now))
	assert.True(t, env.FirstSeen.Equal(f.now.Add(-25*time.Second)))
	assert.Equal(t, "report-1", env.SendOperationResult)

	count, err := f.store.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRetryHandler_Success(t *testing.T) {
	f := newRetryFixture(t, RetryConfig{})
	msg := f.envelopeMessage(t, 10*time.Second, 2)

	require.NoError(t, f.handler.Handle(context.Background(), msg))

	assert.Equal(t, 1, f.channel.updateCount())
	assert.Empty(t, f.publisher.sent())
}

func TestRetryHandler_RepublishFailure(t *testing.T) {
	f := newRetryFixture(t, RetryConfig{})
	f.channel.updateErr = errors.New("database is down")
	f.publisher.err = errors.New("broker unavailable")
	msg := f.envelopeMessage(t, 10*time.Second, 0)

	err := f.handler.Handle(context.Background(), msg)
	assert.Error(t, err)
}

func TestRetryHandler_MalformedEnvelopeDropped(t *testing.T) {
	f := newRetryFixture(t, RetryConfig{})
	msg := models.Message{Topic: testRetryTopic, Value: []byte("{not an envelope")}

	require.NoError(t, f.handler.Handle(context.Background(), msg))

	assert.Empty(t, f.publisher.sent())
	assert.Equal(t, 0, f.channel.updateCount())
	assert.Equal(t, int64(1), f.collector.Sum("consumer.messages.dropped"))
}

func TestRetryHandler_MalformedPayloadDropped(t *testing.T) {
	f := newRetryFixture(t, RetryConfig{})
	f.channel.parseErr = errors.New("bad report")
	msg := f.envelopeMessage(t, 600*time.Second, 0)

	require.NoError(t, f.handler.Handle(context.Background(), msg))

	count, _ := f.store.Count(context.Background(), "")
	assert.Zero(t, count)
	assert.Equal(t, int64(1), f.collector.Sum("consumer.messages.dropped"))
}

func TestRetryHandler_StoreFailureDropsEnvelope(t *testing.T) {
	recorder, collector := metricstest.NewRecorder(t)
	publisher := &fakePublisher{}
	h, err := NewRetryHandler(
		RetryConfig{RetryTopic: testRetryTopic, Threshold: time.Second},
		&fakeHandler{}, publisher, failingStore{}, recorder, nopLogger(),
	)
	require.NoError(t, err)

	env := models.NewRetryEnvelope([]byte("report-1"), time.Now().Add(-time.Hour))
	data, err := env.Encode()
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), models.Message{Topic: testRetryTopic, Value: data}))

	assert.Empty(t, publisher.sent())
	assert.Equal(t, int64(1), collector.Sum("consumer.messages.dropped"))
	assert.Equal(t, int64(0), collector.Sum("consumer.messages.dead_lettered"))
}

func TestRetryHandler_MinRetryInterval(t *testing.T) {
	f := newRetryFixture(t, RetryConfig{MinRetryInterval: 40 * time.Millisecond})
	// LastAttempt equals now, the whole interval is still ahead
	msg := f.envelopeMessage(t, 0, 0)

	start := time.Now()
	require.NoError(t, f.handler.Handle(context.Background(), msg))

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, 1, f.channel.updateCount())
}

func TestRetryHandler_MinRetryIntervalCancelled(t *testing.T) {
	f := newRetryFixture(t, RetryConfig{MinRetryInterval: time.Minute, Threshold: time.Hour})
	msg := f.envelopeMessage(t, 0, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := f.handler.Handle(ctx, msg)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, f.channel.updateCount())
}

func TestRetryHandler_ThresholdReachedDuringWait(t *testing.T) {
	f := newRetryFixture(t, RetryConfig{Threshold: 60 * time.Millisecond, MinRetryInterval: time.Second})
	f.handler.now = time.Now
	f.channel.updateErr = errors.New("database is down")

	env := models.NewRetryEnvelope([]byte("report-1"), time.Now().Add(-10*time.Millisecond))
	env.LastAttempt = time.Now()
	data, err := env.Encode()
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, f.handler.Handle(context.Background(), models.Message{Topic: testRetryTopic, Value: data}))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, f.channel.updateCount())
	assert.Empty(t, f.publisher.sent())
	count, err := f.store.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRetryHandler_ThresholdReachedDuringUpdate(t *testing.T) {
	f := newRetryFixture(t, RetryConfig{Threshold: 30 * time.Millisecond})
	f.handler.now = time.Now
	f.channel.updateErr = errors.New("database is down")
	f.channel.delay = 50 * time.Millisecond

	env := models.NewRetryEnvelope([]byte("report-1"), time.Now())
	data, err := env.Encode()
	require.NoError(t, err)

	require.NoError(t, f.handler.Handle(context.Background(), models.Message{Topic: testRetryTopic, Value: data}))

	assert.Equal(t, 1, f.channel.updateCount())
	assert.Empty(t, f.publisher.sent(), "an expired envelope is never republished")
	count, err := f.store.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRetryHandler_WaitEndsOnShutdownSignal(t *testing.T) {
	f := newRetryFixture(t, RetryConfig{MinRetryInterval: time.Minute, Threshold: time.Hour})
	msg := f.envelopeMessage(t, 0, 0)

	stopping := make(chan struct{})
	// launched operations run on a context that is never cancelled
	ctx := withShutdownSignal(context.WithoutCancel(context.Background()), stopping)
	time.AfterFunc(10*time.Millisecond, func() { close(stopping) })

	start := time.Now()
	err := f.handler.Handle(ctx, msg)

	assert.ErrorIs(t, err, ErrShuttingDown)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, f.channel.updateCount())
	assert.Empty(t, f.publisher.sent())
}
