// Package udp receives the datagrams sent by the fieldbus bridge.
package udp

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/squadracorsepolito/ecattel/connector"
	"github.com/squadracorsepolito/ecattel/internal"
	"go.opentelemetry.io/otel/attribute"
)

const defaultPayloadSize = 1474

// Message is one received datagram payload.
type Message struct {
	ReceiveTime time.Time

	Data    []byte
	DataLen int
}

type Config struct {
	IPAddr string
	Port   uint16
}

func NewDefaultConfig() *Config {
	return &Config{
		IPAddr: "127.0.0.1",
		Port:   20_000,
	}
}

// Stage listens on a UDP socket and emits one [Message] per datagram.
type Stage struct {
	l   *internal.Logger
	tel *internal.Telemetry

	stats *internal.Stats

	cfg *Config

	conn *net.UDPConn

	out connector.Connector[*Message]

	// Telemetry metrics
	receivedBytes atomic.Int64
}

func NewStage(cfg *Config) *Stage {
	tel := internal.NewTelemetry("ingress", "udp")

	l := tel.Logger()

	return &Stage{
		l:   l,
		tel: tel,

		stats: internal.NewStats(l),

		cfg: cfg,
	}
}

func (s *Stage) initMetrics() {
	s.tel.NewCounter("received_bytes", func() int64 { return s.receivedBytes.Load() })
}

func (s *Stage) Init(_ context.Context) error {
	parsedAddr, err := netip.ParseAddr(s.cfg.IPAddr)
	if err != nil {
		return err
	}

	addr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(parsedAddr, s.cfg.Port))
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}

	s.conn = conn

	s.initMetrics()

	return nil
}

func (s *Stage) Run(ctx context.Context) {
	s.l.Info("running", "addr", s.conn.LocalAddr().String())
	defer s.l.Info("stopped")

	go s.stats.RunStats(ctx)

	// Reading from the socket cannot be cancelled by the context alone,
	// so the connection is closed when the context is done.
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, defaultPayloadSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := s.conn.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				select {
				case <-ctx.Done():
				default:
					s.l.Error("connection closed unexpectedly", err)
				}

				return
			}

			s.l.Error("failed to read datagram", err)
			continue
		}

		if err := s.out.Write(s.handleBuf(ctx, buf[:n])); err != nil {
			s.l.Warn("failed to write into output connector", "reason", err)
		}
	}
}

func (s *Stage) handleBuf(ctx context.Context, buf []byte) *Message {
	_, span := s.tel.NewTrace(ctx, "receive datagram")
	defer span.End()

	payload := make([]byte, len(buf))
	copy(payload, buf)

	msg := &Message{
		ReceiveTime: time.Now(),

		Data:    payload,
		DataLen: len(payload),
	}

	span.SetAttributes(attribute.Int("payload_size", msg.DataLen))

	s.stats.IncrementItemCount()
	s.stats.IncrementByteCountBy(msg.DataLen)
	s.receivedBytes.Add(int64(msg.DataLen))

	return msg
}

func (s *Stage) Stop() {
	defer s.l.Info("stopped stage")

	s.out.Close()
}

func (s *Stage) SetOutput(conn connector.Connector[*Message]) {
	s.out = conn
}
