// Package pdo decodes the fixed-layout process data image
// a servo drive slave publishes on every fieldbus cycle.
package pdo

// Record is the decoded state of a single slave at one point in time.
//
// The first eight fields come straight from the process data frame.
// Timestamp, SlavePosition and DataValid are receipt metadata: they are
// left zero by [Decode] and filled in by the registry when the record
// is stored.
type Record struct {
	StatusWord       uint16
	ActualPosition   int32
	ActualVelocity   int32
	ActualTorque     int16
	ModeDisplay      uint8
	ErrorCode        uint16
	SystemStatus     uint16
	MotorTemperature float32

	// Timestamp is in nanoseconds since the Unix epoch.
	Timestamp     uint64
	SlavePosition uint16
	DataValid     bool
}
