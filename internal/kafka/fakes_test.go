package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"statusflow/internal/interfaces"
	"statusflow/internal/models"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// A fakeReader serves queued messages and blocks until cancelled once the queue is empty
type fakeReader struct {
	mu         sync.Mutex
	queue      []kafka.Message
	fetchErr   error
	commitErrs []error
	commits    [][]kafka.Message
	closed     int
}

func (r *fakeReader) push(topic string, partition int, offsets ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range offsets {
		r.queue = append(r.queue, kafka.Message{Topic: topic, Partition: partition, Offset: o, Value: []byte("v")})
	}
}

func (r *fakeReader) pushValue(topic string, partition int, offset int64, value []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.queue = append(r.queue, kafka.Message{Topic: topic, Partition: partition, Offset: offset, Value: value})
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	err := r.fetchErr
	r.mu.Unlock()

	if err != nil {
		return kafka.Message{}, err
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.commitErrs) > 0 {
		err := r.commitErrs[0]
		r.commitErrs = r.commitErrs[1:]
		if err != nil {
			return err
		}
	}
	r.commits = append(r.commits, append([]kafka.Message(nil), msgs...))
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed++
	return nil
}

func (r *fakeReader) commitCalls() [][]kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([][]kafka.Message(nil), r.commits...)
}

// A published message captured by fakePublisher
type published struct {
	topic string
	key   []byte
	value []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, key: key, value: value})
	return nil
}

func (p *fakePublisher) sent() []published {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]published(nil), p.msgs...)
}

type failingStore struct {
	interfaces.DeadLetterStore
}

func (failingStore) Save(ctx context.Context, record *models.DeadLetterRecord) error {
	return errors.New("database is down")
}

// A fakeHandler parses any JSON object into a report and fails updates on demand
type fakeHandler struct {
	mu        sync.Mutex
	updateErr error
	parseErr  error
	delay     time.Duration
	updates   int
}

func (h *fakeHandler) Channel() string {
	return models.ChannelEmail
}

func (h *fakeHandler) Parse(payload []byte) (*models.DeliveryReport, error) {
	if h.parseErr != nil {
		return nil, h.parseErr
	}
	return &models.DeliveryReport{NotificationID: string(payload), Channel: models.ChannelEmail}, nil
}

func (h *fakeHandler) UpdateStatus(ctx context.Context, report *models.DeliveryReport) error {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.updates++
	return h.updateErr
}

func (h *fakeHandler) SuppressionKey(report *models.DeliveryReport) string {
	return report.NotificationID
}

func (h *fakeHandler) updateCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.updates
}

func messages(topic string, partition int, offsets ...int64) []models.Message {
	msgs := make([]models.Message, len(offsets))
	for i, o := range offsets {
		msgs[i] = models.Message{Topic: topic, Partition: partition, Offset: o}
	}
	return msgs
}
