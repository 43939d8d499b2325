// Package models implements data holders shared by the consumer pipeline
package models

import (
	"sort"
	"sync"
	"time"
)

// A Message is one record polled from a partitioned topic. It is never mutated after polling
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

// NextOffset returns the offset to resume from once this message has been handled
func (m Message) NextOffset() int64 {
	return m.Offset + 1
}

// A PartitionOffset is an offset bound to a partition
type PartitionOffset struct {
	Partition int   `json:"partition"`
	Offset    int64 `json:"offset"`
}

// An OffsetSet is a thread-safe append-only collection of partition offsets
type OffsetSet struct {
	mu      sync.Mutex
	offsets []PartitionOffset
}

// NewOffsetSet creates an empty OffsetSet
func NewOffsetSet() *OffsetSet {
	return &OffsetSet{}
}

// Add appends an offset for the partition
func (s *OffsetSet) Add(partition int, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.offsets = append(s.offsets, PartitionOffset{Partition: partition, Offset: offset})
}

// Snapshot returns a copy of the offsets collected so far
func (s *OffsetSet) Snapshot() []PartitionOffset {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PartitionOffset, len(s.offsets))
	copy(out, s.offsets)
	return out
}

// Len returns how many offsets were added
func (s *OffsetSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.offsets)
}

// A BatchState keeps the data of one poll cycle
type BatchState struct {
	PolledMessages     []Message
	CommitReadyOffsets []PartitionOffset
}

// A LaunchOutcome is the result of dispatching a polled batch.
// LaunchedMessages is a prefix of the polled batch in launch order
type LaunchOutcome struct {
	LaunchedMessages      []Message
	SuccessfulNextOffsets []PartitionOffset
}

// SortPartitionOffsets orders offsets by partition, then by offset
func SortPartitionOffsets(offsets []PartitionOffset) {
	sort.Slice(offsets, func(i, j int) bool {
		if offsets[i].Partition != offsets[j].Partition {
			return offsets[i].Partition < offsets[j].Partition
		}
		return offsets[i].Offset < offsets[j].Offset
	})
}
