package worker

import (
	"context"
	"sync"

	"github.com/squadracorsepolito/ecattel/internal"
)

// EgressPool is a [Pool] variant for sink stages whose workers deliver
// tasks without producing an output.
type EgressPool[W, InitArgs, In any, WPtr EgressWorkerPtr[W, InitArgs, In]] struct {
	l *internal.Logger

	cfg *PoolConfig

	initArgs InitArgs

	wg *sync.WaitGroup

	inputCh chan In
}

func NewEgressPool[W, InitArgs, In any, WPtr EgressWorkerPtr[W, InitArgs, In]](l *internal.Logger, cfg *PoolConfig) *EgressPool[W, InitArgs, In, WPtr] {
	return &EgressPool[W, InitArgs, In, WPtr]{
		l: l,

		cfg: cfg,

		wg: &sync.WaitGroup{},

		inputCh: make(chan In, cfg.ChannelSize),
	}
}

func (ep *EgressPool[W, InitArgs, In, WPtr]) Init(_ context.Context, initArgs InitArgs) error {
	ep.initArgs = initArgs

	return nil
}

func (ep *EgressPool[W, InitArgs, In, WPtr]) Run(ctx context.Context) {
	for workerID := range ep.cfg.WorkerNum {
		go ep.runWorker(ctx, workerID)
	}
}

func (ep *EgressPool[W, InitArgs, In, WPtr]) runWorker(ctx context.Context, workerID int) {
	var dummyWorker W
	worker := WPtr(&dummyWorker)

	if err := worker.Init(ctx, ep.initArgs); err != nil {
		ep.l.Error("failed to init worker", err, "worker_id", workerID)
		return
	}

	ep.wg.Add(1)
	defer ep.wg.Done()

	ep.l.Info("starting worker", "worker_id", workerID)

	defer func() {
		ep.l.Info("stopping worker", "worker_id", workerID)

		if err := worker.Stop(ctx); err != nil {
			ep.l.Error("failed to stop worker", err, "worker_id", workerID)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case dataIn := <-ep.inputCh:
			if err := worker.DoWork(ctx, dataIn); err != nil {
				ep.l.Error("failed to do work", err, "worker_id", workerID)
			}
		}
	}
}

func (ep *EgressPool[W, InitArgs, In, WPtr]) Stop() {
	ep.l.Info("stopping worker pool")

	ep.wg.Wait()

	close(ep.inputCh)
}

// AddTask pushes a task into the pool without blocking. It reports false
// when the pool is saturated and the task was skipped.
func (ep *EgressPool[W, InitArgs, In, WPtr]) AddTask(ctx context.Context, task In) bool {
	select {
	case <-ctx.Done():
		return false

	case ep.inputCh <- task:
		return true

	default:
		return false
	}
}
