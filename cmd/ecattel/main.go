package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/squadracorsepolito/ecattel"
	"github.com/squadracorsepolito/ecattel/config"
	"github.com/squadracorsepolito/ecattel/connector"
	"github.com/squadracorsepolito/ecattel/frame"
	"github.com/squadracorsepolito/ecattel/processor"
	"github.com/squadracorsepolito/ecattel/questdb"
	"github.com/squadracorsepolito/ecattel/registry"
	"github.com/squadracorsepolito/ecattel/telemetry"
	"github.com/squadracorsepolito/ecattel/udp"
	w "github.com/squadracorsepolito/ecattel/worker"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "reason", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	ctx, cancelCtx := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancelCtx()

	if cfg.Telemetry.Enabled {
		if err := telemetry.Init(ctx, cfg.Telemetry.ServiceName); err != nil {
			slog.Error("failed to init telemetry", "reason", err)
			os.Exit(1)
		}
		defer telemetry.Close(context.Background())
	}

	ingressToFrame := connector.NewRingBuffer[*udp.Message](cfg.ConnectorSize)
	frameToProc := connector.NewRingBuffer[*frame.PDOBatch](cfg.ConnectorSize)
	procToEgress := connector.NewRingBuffer[*processor.RecordBatch](cfg.ConnectorSize)

	ingressStage := udp.NewStage(&udp.Config{
		IPAddr: cfg.UDP.IPAddr,
		Port:   cfg.UDP.Port,
	})
	ingressStage.SetOutput(ingressToFrame)

	frameStage := frame.NewStage(&frame.Config{
		PoolConfig: &w.PoolConfig{
			WorkerNum:   cfg.Frame.WorkerNum,
			ChannelSize: cfg.Frame.ChannelSize,
		},
	})
	frameStage.SetInput(ingressToFrame)
	frameStage.SetOutput(frameToProc)

	reg := registry.New()

	procStage := processor.NewStage(reg, &processor.Config{
		PoolConfig: &w.PoolConfig{
			WorkerNum:   cfg.Processor.WorkerNum,
			ChannelSize: cfg.Processor.ChannelSize,
		},
	})
	procStage.SetInput(frameToProc)
	procStage.SetOutput(procToEgress)

	pipeline := ecattel.NewPipeline()

	pipeline.AddStage(ingressStage)
	pipeline.AddStage(frameStage)
	pipeline.AddStage(procStage)

	if cfg.QuestDB.Enabled {
		egressStage := questdb.NewStage(&questdb.Config{
			PoolConfig: &w.PoolConfig{
				WorkerNum:   cfg.QuestDB.WorkerNum,
				ChannelSize: cfg.QuestDB.ChannelSize,
			},

			Address: cfg.QuestDB.Address,
		})
		egressStage.SetInput(procToEgress)

		pipeline.AddStage(egressStage)
	} else {
		// Without an egress the processor output still needs a consumer.
		go drain(procToEgress)
	}

	if err := pipeline.Init(ctx); err != nil {
		slog.Error("failed to init pipeline", "reason", err)
		os.Exit(1)
	}

	go pipeline.Run(ctx)
	defer pipeline.Stop()

	<-ctx.Done()
}

func drain(conn connector.Connector[*processor.RecordBatch]) {
	for {
		if _, err := conn.Read(); err != nil {
			if !errors.Is(err, connector.ErrClosed) {
				slog.Error("failed to drain connector", "reason", err)
			}
			return
		}
	}
}
