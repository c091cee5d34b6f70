// Package connector provides the buffered links between pipeline stages.
package connector

import "errors"

// ErrClosed is returned when reading from or writing to a closed connector.
var ErrClosed = errors.New("connector: closed")

// Connector is a many-producer many-consumer link between two stages.
type Connector[T any] interface {
	Write(item T) error
	Read() (T, error)
	Close()
}
