package worker

import "runtime"

// PoolConfig holds the sizing of a worker pool. The fieldbus cycle rate
// is fixed and known ahead of time, so pools run a constant number of
// workers instead of auto-scaling.
type PoolConfig struct {
	WorkerNum   int
	ChannelSize int
}

func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		WorkerNum:   runtime.NumCPU(),
		ChannelSize: 1024,
	}
}
