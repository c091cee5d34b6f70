package registry

import (
	"encoding/binary"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/squadracorsepolito/ecattel/pdo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func encodeFrame(statusWord uint16, actualPosition, actualVelocity int32, actualTorque int16,
	modeDisplay uint8, errorCode, systemStatus uint16, motorTemperature float32) []byte {

	buf := make([]byte, pdo.FrameSize)

	binary.LittleEndian.PutUint16(buf[0:2], statusWord)
	binary.LittleEndian.PutUint32(buf[2:6], uint32(actualPosition))
	binary.LittleEndian.PutUint32(buf[6:10], uint32(actualVelocity))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(actualTorque))
	buf[12] = modeDisplay
	binary.LittleEndian.PutUint16(buf[13:15], errorCode)
	binary.LittleEndian.PutUint16(buf[15:17], systemStatus)
	binary.LittleEndian.PutUint32(buf[17:21], math.Float32bits(motorTemperature))

	return buf
}

func Test_Registry_HandleInputAndGetRecord(t *testing.T) {
	assert := assert.New(t)

	clock := &fakeClock{now: time.Unix(1_700_000_000, 123)}
	reg := NewWithClock(clock)

	buf := encodeFrame(0x1234, 1_000_000, -50_000, 100, 0x08, 0x0000, 0x00ff, 45.5)
	require.NoError(t, reg.HandleInput(1, buf))

	rec, err := reg.GetRecord(1)
	require.NoError(t, err)

	assert.Equal(uint16(0x1234), rec.StatusWord)
	assert.Equal(int32(1_000_000), rec.ActualPosition)
	assert.Equal(int32(-50_000), rec.ActualVelocity)
	assert.Equal(int16(100), rec.ActualTorque)
	assert.Equal(uint8(0x08), rec.ModeDisplay)
	assert.Equal(uint16(0x0000), rec.ErrorCode)
	assert.Equal(uint16(0x00ff), rec.SystemStatus)
	assert.Equal(math.Float32bits(45.5), math.Float32bits(rec.MotorTemperature))

	assert.Equal(uint64(clock.now.UnixNano()), rec.Timestamp)
	assert.Equal(uint16(1), rec.SlavePosition)
	assert.True(rec.DataValid)
	assert.Greater(rec.Timestamp, uint64(0))

	// Repeated reads return identical values.
	again, err := reg.GetRecord(1)
	require.NoError(t, err)
	assert.Equal(rec, again)
}

func Test_Registry_Overwrite(t *testing.T) {
	assert := assert.New(t)

	clock := &fakeClock{now: time.Unix(100, 0)}
	reg := NewWithClock(clock)

	first := encodeFrame(0x1111, 10, 20, 30, 0x01, 0x00aa, 0x0001, 21.0)
	second := encodeFrame(0x2222, -10, -20, -30, 0x02, 0x00bb, 0x0002, 22.0)

	require.NoError(t, reg.HandleInput(7, first))

	clock.now = clock.now.Add(time.Millisecond)
	require.NoError(t, reg.HandleInput(7, second))

	rec, err := reg.GetRecord(7)
	require.NoError(t, err)

	// The second record replaces the first one whole.
	assert.Equal(uint16(0x2222), rec.StatusWord)
	assert.Equal(int32(-10), rec.ActualPosition)
	assert.Equal(int32(-20), rec.ActualVelocity)
	assert.Equal(int16(-30), rec.ActualTorque)
	assert.Equal(uint8(0x02), rec.ModeDisplay)
	assert.Equal(uint16(0x00bb), rec.ErrorCode)
	assert.Equal(uint16(0x0002), rec.SystemStatus)
	assert.Equal(math.Float32bits(22.0), math.Float32bits(rec.MotorTemperature))
	assert.Equal(uint64(clock.now.UnixNano()), rec.Timestamp)
}

func Test_Registry_Isolation(t *testing.T) {
	assert := assert.New(t)

	reg := New()

	for _, slaveID := range []uint8{0, 1, 255} {
		buf := encodeFrame(uint16(slaveID), int32(slaveID), 0, 0, 0, 0, 0, 0)
		require.NoError(t, reg.HandleInput(slaveID, buf))
	}

	for _, slaveID := range []uint8{0, 1, 255} {
		rec, err := reg.GetRecord(slaveID)
		require.NoError(t, err)

		assert.Equal(uint16(slaveID), rec.SlavePosition)
		assert.Equal(uint16(slaveID), rec.StatusWord)
		assert.Equal(int32(slaveID), rec.ActualPosition)
	}

	// Untouched slaves stay absent.
	_, err := reg.GetRecord(2)
	assert.ErrorIs(err, ErrUnknownSlave)
}

func Test_Registry_UnknownSlave(t *testing.T) {
	assert := assert.New(t)

	reg := New()

	for id := 0; id < SlaveCount; id++ {
		_, err := reg.GetRecord(uint8(id))
		assert.ErrorIs(err, ErrUnknownSlave, "slave %d", id)
	}
}

func Test_Registry_ShortFrameKeepsState(t *testing.T) {
	assert := assert.New(t)

	clock := &fakeClock{now: time.Unix(100, 0)}
	reg := NewWithClock(clock)

	good := encodeFrame(0x1234, 1, 2, 3, 4, 5, 6, 7.0)
	require.NoError(t, reg.HandleInput(3, good))

	stored, err := reg.GetRecord(3)
	require.NoError(t, err)

	// A truncated frame fails and must not corrupt the stored record.
	clock.now = clock.now.Add(time.Second)
	err = reg.HandleInput(3, good[:pdo.FrameSize-1])
	assert.ErrorIs(err, pdo.ErrShortFrame)

	after, err := reg.GetRecord(3)
	require.NoError(t, err)
	assert.Equal(stored, after)

	// A short frame for a fresh slave must not create an entry either.
	err = reg.HandleInput(4, good[:10])
	assert.ErrorIs(err, pdo.ErrShortFrame)

	_, err = reg.GetRecord(4)
	assert.ErrorIs(err, ErrUnknownSlave)
}

func Test_Registry_Snapshot(t *testing.T) {
	assert := assert.New(t)

	reg := New()

	assert.Empty(reg.Snapshot())

	for _, slaveID := range []uint8{200, 5, 42} {
		buf := encodeFrame(uint16(slaveID), 0, 0, 0, 0, 0, 0, 0)
		require.NoError(t, reg.HandleInput(slaveID, buf))
	}

	records := reg.Snapshot()
	require.Len(t, records, 3)

	// Ascending slave order, independent of insertion order.
	assert.Equal(uint16(5), records[0].SlavePosition)
	assert.Equal(uint16(42), records[1].SlavePosition)
	assert.Equal(uint16(200), records[2].SlavePosition)
}

func Test_Registry_ConcurrentAccess(t *testing.T) {
	const rounds = 1_000

	reg := New()

	buf := encodeFrame(0xabcd, 1, 2, 3, 4, 5, 6, 7.5)
	require.NoError(t, reg.HandleInput(9, buf))

	wg := &sync.WaitGroup{}

	for producerID := range 4 {
		wg.Add(1)
		go func(producerID int) {
			defer wg.Done()

			for i := range rounds {
				tmpBuf := encodeFrame(0xabcd, int32(i), 2, 3, 4, 5, 6, 7.5)
				if err := reg.HandleInput(9, tmpBuf); err != nil {
					t.Errorf("producer %d: %v", producerID, err)
					return
				}
			}
		}(producerID)
	}

	for consumerID := range 4 {
		wg.Add(1)
		go func(consumerID int) {
			defer wg.Done()

			for range rounds {
				rec, err := reg.GetRecord(9)
				if err != nil {
					t.Errorf("consumer %d: %v", consumerID, err)
					return
				}

				// Every observed record must be internally consistent.
				if rec.StatusWord != 0xabcd || !rec.DataValid || rec.SlavePosition != 9 {
					t.Errorf("consumer %d observed a torn record: %+v", consumerID, rec)
					return
				}
			}
		}(consumerID)
	}

	wg.Wait()
}
