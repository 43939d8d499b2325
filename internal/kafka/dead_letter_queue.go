package kafka

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"statusflow/internal/interfaces"
	"statusflow/internal/models"
)

// An InMemoryDeadLetterStore keeps dead-letter records in process memory
type InMemoryDeadLetterStore struct {
	mu      sync.RWMutex
	records map[string]models.DeadLetterRecord
	logger  *zerolog.Logger
}

// NewInMemoryDeadLetterStore creates an empty in-memory store
func NewInMemoryDeadLetterStore(logger *zerolog.Logger) *InMemoryDeadLetterStore {
	return &InMemoryDeadLetterStore{
		records: make(map[string]models.DeadLetterRecord),
		logger:  logger,
	}
}

// Save stores a copy of record
func (s *InMemoryDeadLetterStore) Save(ctx context.Context, record *models.DeadLetterRecord) error {
	if record == nil {
		return errors.New("dead-letter record cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.ID.String()] = *record

	s.logger.Debug().
		Str("dead_letter_id", record.ID.String()).
		Str("channel", record.Channel).
		Int("attempts", record.AttemptCount).
		Int("message_size", len(record.DeliveryReport)).
		Msg("Record stored in memory")

	return nil
}

// List returns records matching filter, oldest failure first
func (s *InMemoryDeadLetterStore) List(
	ctx context.Context, filter interfaces.DeadLetterFilter,
) ([]models.DeadLetterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]models.DeadLetterRecord, 0, len(s.records))
	for _, rec := range s.records {
		if filter.Channel != "" && rec.Channel != filter.Channel {
			continue
		}
		if filter.UnresolvedOnly && rec.Resolved {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].FirstSeen.Before(records[j].FirstSeen)
	})
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

// Count returns the number of records of channel, or of all channels if it is empty
func (s *InMemoryDeadLetterStore) Count(ctx context.Context, channel string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if channel == "" {
		return int64(len(s.records)), nil
	}
	var n int64
	for _, rec := range s.records {
		if rec.Channel == channel {
			n++
		}
	}
	return n, nil
}
