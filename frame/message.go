package frame

import "time"

// SlaveFrame is the raw process data of a single slave, cut out of a
// bridge frame.
type SlaveFrame struct {
	SlaveID uint8
	Data    []byte
}

// PDOBatch groups the slave frames carried by one bridge frame.
type PDOBatch struct {
	ReceiveTime    time.Time
	SequenceNumber uint8

	Frames []SlaveFrame
}
