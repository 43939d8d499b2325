package kafka

import (
	"slices"

	"statusflow/internal/models"
)

// ComputeCommitOffsets returns, per partition, the highest next offset that can be committed
// without skipping a message that did not succeed. Scanning a partition stops at its first gap,
// even when later launched offsets of that partition succeeded. Partitions whose first launched
// offset did not succeed are left out. The result is sorted by partition
func ComputeCommitOffsets(launched []models.Message, successes []models.PartitionOffset) []models.PartitionOffset {
	byPartition := make(map[int][]int64)
	for _, msg := range launched {
		byPartition[msg.Partition] = append(byPartition[msg.Partition], msg.Offset)
	}

	reached := make(map[int]map[int64]struct{})
	for _, s := range successes {
		if reached[s.Partition] == nil {
			reached[s.Partition] = make(map[int64]struct{})
		}
		reached[s.Partition][s.Offset] = struct{}{}
	}

	result := make([]models.PartitionOffset, 0, len(byPartition))
	for partition, offsets := range byPartition {
		ok := reached[partition]
		if len(ok) == 0 {
			continue
		}
		slices.Sort(offsets)

		var (
			safe  int64
			found bool
		)
		for _, offset := range offsets {
			if _, hit := ok[offset+1]; !hit {
				break
			}
			safe = offset + 1
			found = true
		}
		if found {
			result = append(result, models.PartitionOffset{Partition: partition, Offset: safe})
		}
	}

	models.SortPartitionOffsets(result)
	return result
}
