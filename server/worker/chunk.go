package worker

import "go_msgq_copy/constants"

// ChunkCapacity returns the payload slot granted to a request of given priority.
// Higher priority values get smaller slots.
func ChunkCapacity(priority int32) int {
	return constants.MAXPAYLOAD / int(priority)
}

// DataCapacity returns file bytes carried per chunk. One slot is kept for the terminator.
func DataCapacity(priority int32) int {
	return ChunkCapacity(priority) - 1
}
