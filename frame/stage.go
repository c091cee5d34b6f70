// Package frame splits bridge frames into per-slave process data.
//
// The fieldbus bridge packs the cyclic domain image into one datagram
// per cycle: a 5 byte header (version, op code, sequence number and a
// big-endian slave count) followed by one entry per slave holding the
// slave identifier, the payload length and the raw process data bytes.
package frame

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/squadracorsepolito/ecattel/connector"
	"github.com/squadracorsepolito/ecattel/internal"
	"github.com/squadracorsepolito/ecattel/udp"
	w "github.com/squadracorsepolito/ecattel/worker"
	"go.opentelemetry.io/otel/attribute"
)

const headerSize = 5

type Config struct {
	*w.PoolConfig
}

func NewDefaultConfig() *Config {
	return &Config{
		PoolConfig: w.DefaultPoolConfig(),
	}
}

// Stage decodes bridge frames received from the ingress into
// [PDOBatch] messages.
type Stage struct {
	l   *internal.Logger
	tel *internal.Telemetry

	stats *internal.Stats

	in connector.Connector[*udp.Message]

	writerWg *sync.WaitGroup
	out      connector.Connector[*PDOBatch]

	workerPool *stageWorkerPool
}

func NewStage(cfg *Config) *Stage {
	tel := internal.NewTelemetry("handler", "frame")

	l := tel.Logger()

	return &Stage{
		l:   l,
		tel: tel,

		stats: internal.NewStats(l),

		writerWg: &sync.WaitGroup{},

		workerPool: w.NewPool[stageWorker, *internal.Telemetry, *udp.Message, *PDOBatch](l, cfg.PoolConfig),
	}
}

func (s *Stage) Init(ctx context.Context) error {
	return s.workerPool.Init(ctx, s.tel)
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

	received := 0
	skipped := 0
	defer func() {
		s.l.Info("received frames", "count", received)
		s.l.Info("skipped frames", "count", skipped)
	}()

	go s.stats.RunStats(ctx)

	go s.workerPool.Run(ctx)

	go s.runWriter(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		default:
		}

		msg, err := s.in.Read()
		if err != nil {
			if errors.Is(err, connector.ErrClosed) {
				s.l.Info("input connector is closed, stopping")
				return
			}

			s.l.Warn("failed to read from input connector", "reason", err)
			continue
		}

		s.stats.IncrementItemCount()
		s.stats.IncrementByteCountBy(msg.DataLen)

		received++

		if !s.workerPool.AddTask(ctx, msg) {
			skipped++
		}
	}
}

func (s *Stage) Stop() {
	defer s.l.Info("stopped")

	s.out.Close()
	s.workerPool.Stop()
	s.writerWg.Wait()
}

func (s *Stage) SetInput(conn connector.Connector[*udp.Message]) {
	s.in = conn
}

func (s *Stage) SetOutput(conn connector.Connector[*PDOBatch]) {
	s.out = conn
}

type stageWorkerPool = w.Pool[stageWorker, *internal.Telemetry, *udp.Message, *PDOBatch, *stageWorker]

type stageWorker struct {
	tel *internal.Telemetry
}

func (sw *stageWorker) Init(_ context.Context, tel *internal.Telemetry) error {
	sw.tel = tel
	return nil
}

func (sw *stageWorker) DoWork(ctx context.Context, msg *udp.Message) (*PDOBatch, error) {
	_, span := sw.tel.NewTrace(ctx, "process bridge frame")
	defer span.End()

	batch, err := decodeBridgeFrame(msg.Data[:msg.DataLen])
	if err != nil {
		return nil, err
	}

	batch.ReceiveTime = msg.ReceiveTime

	span.SetAttributes(attribute.Int("slave_count", len(batch.Frames)))

	return batch, nil
}

func (sw *stageWorker) Stop(_ context.Context) error {
	return nil
}

func decodeBridgeFrame(buf []byte) (*PDOBatch, error) {
	if len(buf) < headerSize {
		return nil, errors.New("not enough data for header")
	}

	slaveCount := binary.BigEndian.Uint16(buf[3:5])

	batch := &PDOBatch{
		SequenceNumber: buf[2],

		Frames: make([]SlaveFrame, slaveCount),
	}

	pos := headerSize
	for i := uint16(0); i < slaveCount; i++ {
		n, err := decodeSlaveFrame(buf[pos:], &batch.Frames[i])
		if err != nil {
			return nil, err
		}

		pos += n
	}

	return batch, nil
}

func decodeSlaveFrame(buf []byte, frame *SlaveFrame) (int, error) {
	if len(buf) < 2 {
		return 0, errors.New("not enough data for slave entry")
	}

	frame.SlaveID = buf[0]
	dataLen := int(buf[1])

	if len(buf) < 2+dataLen {
		return 0, errors.New("not enough data for slave payload")
	}

	frame.Data = make([]byte, dataLen)
	copy(frame.Data, buf[2:2+dataLen])

	return 2 + dataLen, nil
}
