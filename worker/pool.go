package worker

import (
	"context"
	"sync"

	"github.com/squadracorsepolito/ecattel/internal"
)

// Pool runs a fixed number of workers that consume tasks from an input
// channel and publish results on an output channel.
type Pool[W, InitArgs, In, Out any, WPtr WorkerPtr[W, InitArgs, In, Out]] struct {
	l *internal.Logger

	cfg *PoolConfig

	initArgs InitArgs

	wg *sync.WaitGroup

	inputCh  chan In
	outputCh chan Out
}

func NewPool[W, InitArgs, In, Out any, WPtr WorkerPtr[W, InitArgs, In, Out]](l *internal.Logger, cfg *PoolConfig) *Pool[W, InitArgs, In, Out, WPtr] {
	return &Pool[W, InitArgs, In, Out, WPtr]{
		l: l,

		cfg: cfg,

		wg: &sync.WaitGroup{},

		inputCh:  make(chan In, cfg.ChannelSize),
		outputCh: make(chan Out, cfg.ChannelSize),
	}
}

func (p *Pool[W, InitArgs, In, Out, WPtr]) Init(_ context.Context, initArgs InitArgs) error {
	p.initArgs = initArgs

	return nil
}

func (p *Pool[W, InitArgs, In, Out, WPtr]) Run(ctx context.Context) {
	for workerID := range p.cfg.WorkerNum {
		go p.runWorker(ctx, workerID)
	}
}

func (p *Pool[W, InitArgs, In, Out, WPtr]) runWorker(ctx context.Context, workerID int) {
	var dummyWorker W
	worker := WPtr(&dummyWorker)

	if err := worker.Init(ctx, p.initArgs); err != nil {
		p.l.Error("failed to init worker", err, "worker_id", workerID)
		return
	}

	p.wg.Add(1)
	defer p.wg.Done()

	p.l.Info("starting worker", "worker_id", workerID)

	defer func() {
		p.l.Info("stopping worker", "worker_id", workerID)

		if err := worker.Stop(ctx); err != nil {
			p.l.Error("failed to stop worker", err, "worker_id", workerID)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case dataIn := <-p.inputCh:
			res, err := worker.DoWork(ctx, dataIn)
			if err != nil {
				p.l.Error("failed to do work", err, "worker_id", workerID)
				continue
			}

			p.outputCh <- res
		}
	}
}

func (p *Pool[W, InitArgs, In, Out, WPtr]) Stop() {
	p.l.Info("stopping worker pool")

	p.wg.Wait()

	close(p.inputCh)
	close(p.outputCh)
}

// AddTask pushes a task into the pool without blocking. It reports false
// when the pool is saturated and the task was skipped.
func (p *Pool[W, InitArgs, In, Out, WPtr]) AddTask(ctx context.Context, task In) bool {
	select {
	case <-ctx.Done():
		return false

	case p.inputCh <- task:
		return true

	default:
		return false
	}
}

func (p *Pool[W, InitArgs, In, Out, WPtr]) GetOutputCh() <-chan Out {
	return p.outputCh
}
