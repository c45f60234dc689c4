// Package pipeline turns an ingested source image into every derivative a
// deep zoom viewer needs.
//
// Stages talk to each other through a Bus:
//
//	intake -> tiler      -> worker (one per tile)
//	                     -> info
//	       -> thumbnail  -> worker (thumbnail and full size)
//	       -> index
//	       -> properties
//
// Every send returns a Future, and an Ingestion joins all of them.
package pipeline

import (
	"context"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/greut/iiif-tiler/codec"
	"github.com/greut/iiif-tiler/config"
	"github.com/greut/iiif-tiler/iiif"
	"github.com/greut/iiif-tiler/store"
	"github.com/greut/iiif-tiler/transform"
	"go.uber.org/zap"
)

// Catalog records what was ingested, it is optional.
type Catalog interface {
	Index(ctx context.Context, id, filePath string, tileSize int) error
	SetDimensions(ctx context.Context, id string, tileSize, width, height int) error
	SaveProperties(ctx context.Context, id string, properties map[string]interface{}) error
}

// Pipeline wires the stages on a bus.
type Pipeline struct {
	config  *config.Config
	engine  transform.Engine
	prober  codec.Prober
	store   store.Store
	catalog Catalog
	planner *iiif.Planner
	bus     *Bus
	logger  *zap.Logger

	mu   sync.Mutex
	jobs map[string]*Ingestion
	wg   sync.WaitGroup
}

// New starts the stages. The catalog may be nil.
func New(c *config.Config, engine transform.Engine, prober codec.Prober, s store.Store, catalog Catalog, logger *zap.Logger) *Pipeline {
	p := &Pipeline{
		config:  c,
		engine:  engine,
		prober:  prober,
		store:   s,
		catalog: catalog,
		planner: iiif.NewPlanner(c.Cache.Plans),
		bus:     NewBus(c.SendTimeout.Duration, logger.Named("bus")),
		logger:  logger,
		jobs:    make(map[string]*Ingestion),
	}

	p.bus.Register(TopicIntake, c.Workers, p.intake)
	p.bus.Register(TopicTiler, c.Workers, p.tiler)
	p.bus.Register(TopicWorker, c.Workers, p.worker)
	p.bus.Register(TopicInfo, c.Workers, p.info)
	p.bus.Register(TopicThumbnail, c.Workers, p.thumbnail)
	p.bus.Register(TopicIndex, 1, p.index)
	p.bus.Register(TopicProperties, 1, p.properties)

	return p
}

// Bus gives access to the stages, to dispatch single derivatives.
func (p *Pipeline) Bus() *Bus {
	return p.bus
}

// Ingestion tracks every job sent on behalf of one ingested file.
type Ingestion struct {
	JobID    string
	FilePath string

	done      chan struct{}
	aggregate Aggregate
}

// Done is closed once every job replied.
func (i *Ingestion) Done() <-chan struct{} {
	return i.done
}

// Wait blocks until every job replied and returns their outcomes, along
// with an error summarizing the failures.
func (i *Ingestion) Wait(ctx context.Context) (Aggregate, error) {
	select {
	case <-i.done:
		return i.aggregate, i.aggregate.Err()
	case <-ctx.Done():
		return Aggregate{}, ctx.Err()
	}
}

// Ingest sends the source file to the pipeline. Properties may set the id
// and the tile_size of the image, the other properties are saved as its
// metadata. When cleanup is set, the source file is removed once every job
// reading it replied.
func (p *Pipeline) Ingest(ctx context.Context, filePath string, properties map[string]interface{}, cleanup bool) *Ingestion {
	job := &Ingestion{
		JobID:    uuid.NewString(),
		FilePath: filePath,
		done:     make(chan struct{}),
	}

	p.mu.Lock()
	p.jobs[job.JobID] = job
	p.mu.Unlock()

	m := Message{
		JobID:      job.JobID,
		FilePath:   filePath,
		Cleanup:    cleanup,
		Properties: cloneProperties(properties),
	}

	f := p.bus.Send(ctx, TopicIntake, m)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.track(job, m, f)
	}()

	return job
}

func (p *Pipeline) track(job *Ingestion, m Message, f *Future) {
	aggregate := Join(f)

	if m.Cleanup {
		if err := os.Remove(m.FilePath); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("cannot remove source",
				zap.String("job", job.JobID),
				zap.String("file", m.FilePath),
				zap.Error(err))
		}
	}

	logger := p.logger.With(
		zap.String("job", job.JobID),
		zap.String("file", m.FilePath),
		zap.Int("jobs", len(aggregate.Outcomes)))
	if err := aggregate.Err(); err != nil {
		logger.Error("ingest failed", zap.Int("failures", len(aggregate.Failures())), zap.Error(err))
	} else {
		logger.Info("ingest done")
	}

	p.mu.Lock()
	delete(p.jobs, job.JobID)
	p.mu.Unlock()

	job.aggregate = aggregate
	close(job.done)
}

// Pending lists the ingestions still running.
func (p *Pipeline) Pending() []*Ingestion {
	p.mu.Lock()
	defer p.mu.Unlock()

	jobs := make([]*Ingestion, 0, len(p.jobs))
	for _, job := range p.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// Render sends a single derivative to the worker stage, the source being
// read from filePath.
func (p *Pipeline) Render(ctx context.Context, filePath string, r iiif.Request) *Future {
	m := Message{
		JobID:    uuid.NewString(),
		ID:       r.ID,
		FilePath: filePath,
		IIIFPath: r.String(),
	}
	return p.bus.Send(ctx, TopicWorker, m)
}

// Close waits for the ingestions to finish and stops the stages.
func (p *Pipeline) Close() {
	p.wg.Wait()
	p.bus.Close()
}
