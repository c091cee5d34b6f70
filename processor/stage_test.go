package processor

import (
	"context"
	"encoding/binary"
	"math"
	"sync/atomic"
	"testing"

	"github.com/squadracorsepolito/ecattel/frame"
	"github.com/squadracorsepolito/ecattel/internal"
	"github.com/squadracorsepolito/ecattel/pdo"
	"github.com/squadracorsepolito/ecattel/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(reg *registry.Registry) *stageWorker {
	sw := &stageWorker{}
	_ = sw.Init(context.Background(), &workerArgs{
		tel: internal.NewTelemetry("processor", "registry"),

		reg: reg,

		storedRecords: &atomic.Int64{},
		shortFrames:   &atomic.Int64{},
	})

	return sw
}

func encodeFrame(statusWord uint16, motorTemperature float32) []byte {
	buf := make([]byte, pdo.FrameSize)
	binary.LittleEndian.PutUint16(buf[0:2], statusWord)
	binary.LittleEndian.PutUint32(buf[17:21], math.Float32bits(motorTemperature))
	return buf
}

func Test_stageWorker_DoWork(t *testing.T) {
	assert := assert.New(t)

	reg := registry.New()
	sw := newTestWorker(reg)

	batch := &frame.PDOBatch{
		Frames: []frame.SlaveFrame{
			{SlaveID: 0, Data: encodeFrame(0x0637, 30.5)},
			{SlaveID: 5, Data: encodeFrame(0x1234, 41.25)},
		},
	}

	res, err := sw.DoWork(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	assert.Equal(uint16(0), res.Records[0].SlavePosition)
	assert.Equal(uint16(5), res.Records[1].SlavePosition)
	assert.True(res.Records[0].DataValid)
	assert.True(res.Records[1].DataValid)

	// The registry holds the same records the batch reported.
	rec, err := reg.GetRecord(5)
	require.NoError(t, err)
	assert.Equal(uint16(0x1234), rec.StatusWord)
	assert.Equal(math.Float32bits(41.25), math.Float32bits(rec.MotorTemperature))
	assert.Equal(int64(2), sw.storedRecords.Load())
}

func Test_stageWorker_DoWork_ShortFrame(t *testing.T) {
	assert := assert.New(t)

	reg := registry.New()
	sw := newTestWorker(reg)

	batch := &frame.PDOBatch{
		Frames: []frame.SlaveFrame{
			{SlaveID: 1, Data: make([]byte, pdo.FrameSize-1)},
			{SlaveID: 2, Data: encodeFrame(0x0001, 25.0)},
		},
	}

	// The short frame is skipped, the valid one still lands.
	res, err := sw.DoWork(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	assert.Equal(uint16(2), res.Records[0].SlavePosition)
	assert.Equal(int64(1), sw.shortFrames.Load())

	_, err = reg.GetRecord(1)
	assert.ErrorIs(err, registry.ErrUnknownSlave)
}
