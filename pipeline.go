// Package ecattel ingests the cyclic process data of EtherCAT slaves,
// decodes it into per-slave records and persists them.
package ecattel

import (
	"context"
	"sync"
)

// Stage is a single step of the ingestion pipeline.
type Stage interface {
	Init(ctx context.Context) error
	Run(ctx context.Context)
	Stop()
}

// Pipeline runs a list of stages concurrently, wired together by
// connectors.
type Pipeline struct {
	stages []Stage

	wg        *sync.WaitGroup
	isRunning bool
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		stages: []Stage{},

		wg:        &sync.WaitGroup{},
		isRunning: false,
	}
}

func (p *Pipeline) AddStage(stage Stage) {
	if p.isRunning {
		return
	}

	p.stages = append(p.stages, stage)
}

func (p *Pipeline) Init(ctx context.Context) error {
	for _, stage := range p.stages {
		if err := stage.Init(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) Run(ctx context.Context) {
	p.isRunning = true

	p.wg.Add(len(p.stages))

	for _, stage := range p.stages {
		go func() {
			stage.Run(ctx)
			p.wg.Done()
		}()
	}
}

func (p *Pipeline) Stop() {
	for _, stage := range p.stages {
		stage.Stop()
	}

	p.wg.Wait()
}
