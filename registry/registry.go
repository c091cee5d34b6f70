// Package registry keeps the most recent decoded record of every slave.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/squadracorsepolito/ecattel/pdo"
)

// SlaveCount is the size of the slave identifier space.
const SlaveCount = 256

// ErrUnknownSlave is returned when no record was ever stored for a slave.
var ErrUnknownSlave = errors.New("registry: unknown slave")

// Clock provides the wall-clock time used to stamp stored records.
// It is injected so tests can substitute a controllable clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

type slot struct {
	record  pdo.Record
	present bool
}

// Registry maps each slave identifier to its latest decoded record.
//
// Records are replaced whole on every successful input, so a reader never
// observes a mix of old and new field values. A failed decode leaves the
// stored record of that slave untouched.
type Registry struct {
	mux   sync.RWMutex
	clock Clock

	// The identifier is 8 bits wide, so a fixed array indexed by slave ID
	// with a present flag per slot replaces a map.
	slots [SlaveCount]slot
}

// New returns a [Registry] stamping records with the system wall clock.
func New() *Registry {
	return NewWithClock(systemClock{})
}

// NewWithClock returns a [Registry] using the given clock.
func NewWithClock(clock Clock) *Registry {
	return &Registry{
		clock: clock,
	}
}

// HandleInput decodes one raw frame and stores the result as the latest
// record of the given slave, stamped with the current time.
//
// On a decode failure the error is returned ([pdo.ErrShortFrame] for a
// truncated buffer) and any prior record of the slave stays valid.
func (r *Registry) HandleInput(slaveID uint8, buf []byte) error {
	rec, err := pdo.Decode(buf)
	if err != nil {
		return err
	}

	rec.Timestamp = uint64(r.clock.Now().UnixNano())
	rec.SlavePosition = uint16(slaveID)
	rec.DataValid = true

	r.mux.Lock()
	r.slots[slaveID] = slot{record: rec, present: true}
	r.mux.Unlock()

	return nil
}

// GetRecord returns a copy of the latest record of the given slave.
// It returns [ErrUnknownSlave] when no record was ever stored for it.
func (r *Registry) GetRecord(slaveID uint8) (pdo.Record, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()

	s := r.slots[slaveID]
	if !s.present {
		return pdo.Record{}, fmt.Errorf("%w: %d", ErrUnknownSlave, slaveID)
	}

	return s.record, nil
}

// Snapshot returns copies of all stored records in ascending slave order.
func (r *Registry) Snapshot() []pdo.Record {
	r.mux.RLock()
	defer r.mux.RUnlock()

	records := make([]pdo.Record, 0, SlaveCount)
	for idx := range r.slots {
		if r.slots[idx].present {
			records = append(records, r.slots[idx].record)
		}
	}

	return records
}
