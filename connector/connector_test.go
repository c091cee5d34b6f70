package connector

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

const (
	bufferCapacity   = 1024
	numProducers     = 8
	numConsumers     = 8
	itemsPerProducer = 100_000
)

func getConnectorFromKind[T any](kind string, capacity uint64) Connector[T] {
	switch kind {
	case "ring_buffer":
		return NewRingBuffer[T](uint32(capacity))
	case "channel":
		return NewChannel[T](capacity)
	default:
		panic("unknown connector kind: " + kind)
	}
}

func Test_Connector_MultipleProducersConsumers(t *testing.T) {
	for _, connKind := range []string{"ring_buffer", "channel"} {
		t.Run(connKind, func(t *testing.T) {
			conn := getConnectorFromKind[int](connKind, bufferCapacity)

			testMultipleProducersConsumers(t, conn, numProducers, numConsumers, itemsPerProducer)
		})
	}
}

func testMultipleProducersConsumers(t *testing.T, conn Connector[int], numProducers, numConsumers, itemsPerProducer int) {
	totalItems := numProducers * itemsPerProducer

	var receivedItems sync.Map
	var receivedCount atomic.Uint64

	var producerWg sync.WaitGroup
	var consumerWg sync.WaitGroup

	consumerWg.Add(numConsumers)
	for i := range numConsumers {
		go func(consumerID int) {
			defer consumerWg.Done()

			for {
				item, err := conn.Read()
				if err != nil {
					if !errors.Is(err, ErrClosed) {
						t.Errorf("consumer %d received unexpected error: %v", consumerID, err)
					}
					return
				}

				receivedItems.Store(item, true)
				receivedCount.Add(1)
			}
		}(i)
	}

	producerWg.Add(numProducers)
	for i := range numProducers {
		go func(producerID int) {
			defer producerWg.Done()

			base := producerID * itemsPerProducer
			for j := range itemsPerProducer {
				if err := conn.Write(base + j); err != nil {
					t.Errorf("producer %d failed to write item %d: %v", producerID, base+j, err)
					return
				}
			}
		}(i)
	}

	producerWg.Wait()
	conn.Close()
	consumerWg.Wait()

	if got := receivedCount.Load(); got != uint64(totalItems) {
		t.Errorf("received %d items, want %d", got, totalItems)
	}

	for item := range totalItems {
		if _, ok := receivedItems.Load(item); !ok {
			t.Errorf("item %d was never received", item)
		}
	}
}

func Test_Connector_WriteAfterClose(t *testing.T) {
	for _, connKind := range []string{"ring_buffer", "channel"} {
		t.Run(connKind, func(t *testing.T) {
			conn := getConnectorFromKind[int](connKind, 8)

			conn.Close()

			if err := conn.Write(1); !errors.Is(err, ErrClosed) {
				t.Errorf("Write after Close returned %v, want ErrClosed", err)
			}
		})
	}
}

func Benchmark_RingBuffer_WriteRead(b *testing.B) {
	b.ReportAllocs()

	type dummy struct {
		data []byte
	}

	conn := NewRingBuffer[*dummy](uint32(bufferCapacity))

	item := &dummy{data: make([]byte, 2048)}

	b.ResetTimer()
	for b.Loop() {
		if err := conn.Write(item); err != nil {
			b.Fatal(err)
		}

		if _, err := conn.Read(); err != nil {
			b.Fatal(err)
		}
	}
}
