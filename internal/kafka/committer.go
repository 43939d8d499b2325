package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"statusflow/internal/interfaces"
	"statusflow/internal/metrics"
	"statusflow/internal/models"
)

// An OffsetCommitter commits safe offsets and never moves a partition backwards
type OffsetCommitter struct {
	reader       interfaces.MessageReader
	topic        string
	shuttingDown func() bool
	logger       *zerolog.Logger
	metrics      *metrics.Recorder

	mu        sync.Mutex
	committed map[int]int64 // partition -> last committed next offset
}

// NewOffsetCommitter creates a committer. shuttingDown is checked before every commit
func NewOffsetCommitter(
	reader interfaces.MessageReader, topic string, shuttingDown func() bool,
	recorder *metrics.Recorder, logger *zerolog.Logger,
) *OffsetCommitter {
	if shuttingDown == nil {
		shuttingDown = func() bool { return false }
	}
	return &OffsetCommitter{
		reader:       reader,
		topic:        topic,
		shuttingDown: shuttingDown,
		logger:       logger,
		metrics:      recorder,
		committed:    make(map[int]int64),
	}
}

// Commit keeps the maximum candidate per partition and commits it. Rebalance and generation
// errors are expected during group changes and only logged; other errors are logged too,
// the next successful commit catches up
func (c *OffsetCommitter) Commit(ctx context.Context, candidates []models.PartitionOffset) {
	if c.shuttingDown() || len(candidates) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	best := make(map[int]int64, len(candidates))
	for _, cand := range candidates {
		if cur, ok := best[cand.Partition]; !ok || cand.Offset > cur {
			best[cand.Partition] = cand.Offset
		}
	}

	toCommit := make([]models.PartitionOffset, 0, len(best))
	for partition, offset := range best {
		if last, ok := c.committed[partition]; ok && offset <= last {
			continue
		}
		toCommit = append(toCommit, models.PartitionOffset{Partition: partition, Offset: offset})
	}
	if len(toCommit) == 0 {
		return
	}
	models.SortPartitionOffsets(toCommit)

	// the reader commits msg.Offset+1, so hand it the last handled offset
	msgs := make([]kafka.Message, len(toCommit))
	for i, po := range toCommit {
		msgs[i] = kafka.Message{Topic: c.topic, Partition: po.Partition, Offset: po.Offset - 1}
	}

	start := time.Now()
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		if isTransientCommitError(err) {
			c.logger.Warn().
				Err(err).
				Str("topic", c.topic).
				Int("partitions", len(toCommit)).
				Msg("Commit skipped while the group is rebalancing")
			return
		}
		c.logger.Error().
			Err(err).
			Str("topic", c.topic).
			Int("partitions", len(toCommit)).
			Dur("duration", time.Since(start)).
			Msg("Failed to commit offsets")
		return
	}

	for _, po := range toCommit {
		c.committed[po.Partition] = po.Offset
		c.logger.Debug().
			Str("topic", c.topic).
			Int("partition", po.Partition).
			Int64("offset", po.Offset).
			Msg("Committed offset")
	}
	c.metrics.Committed(c.topic, len(toCommit))
}

// Committed returns the last committed next offset of partition
func (c *OffsetCommitter) Committed(partition int) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	offset, ok := c.committed[partition]
	return offset, ok
}

func isTransientCommitError(err error) bool {
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr == kafka.RebalanceInProgress || kerr == kafka.IllegalGeneration
	}
	return false
}
