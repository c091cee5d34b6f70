// Package processor feeds decoded slave frames into the registry.
package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/squadracorsepolito/ecattel/connector"
	"github.com/squadracorsepolito/ecattel/frame"
	"github.com/squadracorsepolito/ecattel/internal"
	"github.com/squadracorsepolito/ecattel/pdo"
	"github.com/squadracorsepolito/ecattel/registry"
	w "github.com/squadracorsepolito/ecattel/worker"
	"go.opentelemetry.io/otel/attribute"
)

// RecordBatch carries the records stored during one bridge frame.
type RecordBatch struct {
	Records []pdo.Record
}

type Config struct {
	*w.PoolConfig
}

func NewDefaultConfig() *Config {
	return &Config{
		PoolConfig: w.DefaultPoolConfig(),
	}
}

// Stage routes each slave frame of a batch into the registry and emits
// the freshly stored records.
type Stage struct {
	l   *internal.Logger
	tel *internal.Telemetry

	stats *internal.Stats

	reg *registry.Registry

	in connector.Connector[*frame.PDOBatch]

	writerWg *sync.WaitGroup
	out      connector.Connector[*RecordBatch]

	workerPool *stageWorkerPool

	// Telemetry metrics
	storedRecords atomic.Int64
	shortFrames   atomic.Int64
}

func NewStage(reg *registry.Registry, cfg *Config) *Stage {
	tel := internal.NewTelemetry("processor", "registry")

	l := tel.Logger()

	return &Stage{
		l:   l,
		tel: tel,

		stats: internal.NewStats(l),

		reg: reg,

		writerWg: &sync.WaitGroup{},

		workerPool: w.NewPool[stageWorker, *workerArgs, *frame.PDOBatch, *RecordBatch](l, cfg.PoolConfig),
	}
}

// Registry returns the registry this stage stores records into. Any
// consumer can query the latest record of a slave through it.
func (s *Stage) Registry() *registry.Registry {
	return s.reg
}

func (s *Stage) initMetrics() {
	s.tel.NewCounter("stored_records", func() int64 { return s.storedRecords.Load() })
	s.tel.NewCounter("short_frames", func() int64 { return s.shortFrames.Load() })
}

func (s *Stage) Init(ctx context.Context) error {
	s.initMetrics()

	return s.workerPool.Init(ctx, &workerArgs{
		tel: s.tel,

		reg: s.reg,

		storedRecords: &s.storedRecords,
		shortFrames:   &s.shortFrames,
	})
}

func (s *Stage) runWriter(ctx context.Context) {
	s.writerWg.Add(1)
	defer s.writerWg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-s.workerPool.GetOutputCh():
			if err := s.out.Write(batch); err != nil {
				s.l.Warn("failed to write into output connector", "reason", err)
			}
		}
	}
}

func (s *Stage) Run(ctx context.Context) {
	s.l.Info("running")
	defer s.l.Info("stopped")

	go s.stats.RunStats(ctx)

	go s.workerPool.Run(ctx)

	go s.runWriter(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		default:
		}

		batch, err := s.in.Read()
		if err != nil {
			if errors.Is(err, connector.ErrClosed) {
				s.l.Info("input connector is closed, stopping")
				return
			}

			s.l.Warn("failed to read from input connector", "reason", err)
			continue
		}

		s.stats.IncrementItemCount()

		if !s.workerPool.AddTask(ctx, batch) {
			s.l.Warn("worker pool saturated, batch skipped")
		}
	}
}

func (s *Stage) Stop() {
	defer s.l.Info("stopped stage")

	s.out.Close()
	s.workerPool.Stop()
	s.writerWg.Wait()
}

func (s *Stage) SetInput(conn connector.Connector[*frame.PDOBatch]) {
	s.in = conn
}

func (s *Stage) SetOutput(conn connector.Connector[*RecordBatch]) {
	s.out = conn
}

type stageWorkerPool = w.Pool[stageWorker, *workerArgs, *frame.PDOBatch, *RecordBatch, *stageWorker]

type workerArgs struct {
	tel *internal.Telemetry

	reg *registry.Registry

	storedRecords *atomic.Int64
	shortFrames   *atomic.Int64
}

type stageWorker struct {
	*workerArgs
}

func (sw *stageWorker) Init(_ context.Context, args *workerArgs) error {
	sw.workerArgs = args
	return nil
}

func (sw *stageWorker) DoWork(ctx context.Context, batch *frame.PDOBatch) (*RecordBatch, error) {
	_, span := sw.tel.NewTrace(ctx, "store slave records")
	defer span.End()

	res := &RecordBatch{
		Records: make([]pdo.Record, 0, len(batch.Frames)),
	}

	for _, slaveFrame := range batch.Frames {
		if err := sw.reg.HandleInput(slaveFrame.SlaveID, slaveFrame.Data); err != nil {
			// A malformed frame never touches the stored state of the
			// slave; the next cycle re-delivers.
			if errors.Is(err, pdo.ErrShortFrame) {
				sw.shortFrames.Add(1)
				sw.tel.LogWarn("short frame skipped", "slave_id", slaveFrame.SlaveID, "reason", err)
				continue
			}

			return nil, err
		}

		rec, err := sw.reg.GetRecord(slaveFrame.SlaveID)
		if err != nil {
			return nil, err
		}

		res.Records = append(res.Records, rec)
		sw.storedRecords.Add(1)
	}

	span.SetAttributes(attribute.Int("record_count", len(res.Records)))

	return res, nil
}

func (sw *stageWorker) Stop(_ context.Context) error {
	return nil
}
