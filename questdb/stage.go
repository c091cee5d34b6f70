// Package questdb streams stored slave records into QuestDB.
package questdb

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	qdb "github.com/questdb/go-questdb-client/v3"
	"github.com/squadracorsepolito/ecattel/connector"
	"github.com/squadracorsepolito/ecattel/internal"
	"github.com/squadracorsepolito/ecattel/processor"
	w "github.com/squadracorsepolito/ecattel/worker"
	"go.opentelemetry.io/otel/attribute"
)

const recordTable = "slave_records"

type Config struct {
	*w.PoolConfig

	Address string
}

func NewDefaultConfig() *Config {
	return &Config{
		PoolConfig: w.DefaultPoolConfig(),

		Address: "localhost:9000",
	}
}

// Stage delivers record batches to QuestDB over ILP.
type Stage struct {
	l   *internal.Logger
	tel *internal.Telemetry

	stats *internal.Stats

	cfg *Config

	in connector.Connector[*processor.RecordBatch]

	senderPool *qdb.LineSenderPool

	workerPool *stageWorkerPool

	// Telemetry metrics
	skippedBatches atomic.Int64
}

func NewStage(cfg *Config) *Stage {
	tel := internal.NewTelemetry("egress", "questdb")

	l := tel.Logger()

	return &Stage{
		l:   l,
		tel: tel,

		stats: internal.NewStats(l),

		cfg: cfg,

		workerPool: w.NewEgressPool[stageWorker, *workerArgs, *processor.RecordBatch](l, cfg.PoolConfig),
	}
}

func (s *Stage) initMetrics() {
	s.tel.NewCounter("skipped_batches", func() int64 { return s.skippedBatches.Load() })
}

func (s *Stage) Init(ctx context.Context) error {
	senderPool, err := qdb.PoolFromOptions(
		qdb.WithAddress(s.cfg.Address),
		qdb.WithHttp(),
		qdb.WithAutoFlushRows(75_000),
		qdb.WithRetryTimeout(time.Second),
	)
	if err != nil {
		return err
	}
	s.senderPool = senderPool

	s.initMetrics()

	return s.workerPool.Init(ctx, &workerArgs{
		tel: s.tel,

		senderPool: senderPool,
	})
}

func (s *Stage) Run(ctx context.Context) {
	s.l.Info("running")
	defer s.l.Info("stopped")

	go s.stats.RunStats(ctx)

	go s.workerPool.Run(ctx)

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
			s.skippedBatches.Add(1)
		}
	}
}

func (s *Stage) Stop() {
	defer s.l.Info("stopped stage")

	s.workerPool.Stop()

	if err := s.senderPool.Close(context.Background()); err != nil {
		s.l.Error("failed to close sender pool", err)
	}
}

func (s *Stage) SetInput(conn connector.Connector[*processor.RecordBatch]) {
	s.in = conn
}

type stageWorkerPool = w.EgressPool[stageWorker, *workerArgs, *processor.RecordBatch, *stageWorker]

type workerArgs struct {
	tel *internal.Telemetry

	senderPool *qdb.LineSenderPool
}

type stageWorker struct {
	tel *internal.Telemetry

	sender qdb.LineSender

	// Telemetry metrics
	insertedRows atomic.Int64
}

func (sw *stageWorker) initMetrics() {
	sw.tel.NewCounter("inserted_rows", func() int64 { return sw.insertedRows.Load() })
}

func (sw *stageWorker) Init(ctx context.Context, args *workerArgs) error {
	sw.tel = args.tel

	sender, err := args.senderPool.Sender(ctx)
	if err != nil {
		return err
	}
	sw.sender = sender

	sw.initMetrics()

	return nil
}

func (sw *stageWorker) DoWork(ctx context.Context, batch *processor.RecordBatch) error {
	ctx, span := sw.tel.NewTrace(ctx, "deliver slave records")
	defer span.End()

	tmpInsRows := int64(0)
	for _, rec := range batch.Records {
		query := sw.sender.Table(recordTable).
			Symbol("slave", strconv.Itoa(int(rec.SlavePosition))).
			Int64Column("status_word", int64(rec.StatusWord)).
			Int64Column("actual_position", int64(rec.ActualPosition)).
			Int64Column("actual_velocity", int64(rec.ActualVelocity)).
			Int64Column("actual_torque", int64(rec.ActualTorque)).
			Int64Column("mode_display", int64(rec.ModeDisplay)).
			Int64Column("error_code", int64(rec.ErrorCode)).
			Int64Column("system_status", int64(rec.SystemStatus)).
			Float64Column("motor_temperature", float64(rec.MotorTemperature)).
			BoolColumn("data_valid", rec.DataValid)

		if err := query.At(ctx, time.Unix(0, int64(rec.Timestamp))); err != nil {
			return err
		}

		tmpInsRows++
	}

	span.SetAttributes(attribute.Int64("inserted_rows", tmpInsRows))

	sw.insertedRows.Add(tmpInsRows)

	return nil
}

func (sw *stageWorker) Stop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return sw.sender.Close(context.Background())
	default:
		return sw.sender.Close(ctx)
	}
}
