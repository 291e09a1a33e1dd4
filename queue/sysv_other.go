//go:build !(linux && (amd64 || arm64))

package queue

import (
	"fmt"
	"time"
)

func openSysV(key int, poll time.Duration) (Queue, error) {
	return nil, fmt.Errorf("%w: System V queues need linux/amd64 or linux/arm64", ErrChannelUnavailable)
}
