package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/greut/iiif-tiler/iiif"
	"github.com/greut/iiif-tiler/store"
	"github.com/greut/iiif-tiler/transform"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ingestProperties are the properties the pipeline itself understands.
type ingestProperties struct {
	ID       string `mapstructure:"id"`
	TileSize int    `mapstructure:"tile_size"`
}

// intake names the image and hands it to the other stages without waiting
// for them.
func (p *Pipeline) intake(ctx context.Context, m Message) Reply {
	var props ingestProperties
	if err := mapstructure.WeakDecode(m.Properties, &props); err != nil {
		return Failure(stageError(KindGrammar, TopicIntake, m, fmt.Errorf("invalid properties: %w", err)))
	}

	if props.ID == "" {
		props.ID = filepath.Base(m.FilePath)
	}
	// the identifier the server resolves from an escaped request path
	if id, err := iiif.DecodeID(props.ID); err == nil {
		props.ID = id
	}
	if props.TileSize <= 0 {
		props.TileSize = p.config.TileSize
	}

	m = m.WithID(props.ID, props.TileSize)
	p.logger.Info("ingesting",
		zap.String("job", m.JobID),
		zap.String("id", m.ID),
		zap.String("file", m.FilePath),
		zap.Int("tileSize", m.TileSize))

	return Success(
		p.bus.Send(ctx, TopicTiler, m),
		p.bus.Send(ctx, TopicIndex, m),
		p.bus.Send(ctx, TopicThumbnail, m),
		p.bus.Send(ctx, TopicProperties, m),
	)
}

// tiler probes the source, plans its tiles and dispatches one worker job
// per tile. The info document is written once the plan is known.
func (p *Pipeline) tiler(ctx context.Context, m Message) Reply {
	width, height, err := p.prober.Dimensions(ctx, m.FilePath)
	if err != nil {
		return Failure(stageError(KindTransform, TopicTiler, m, err))
	}

	paths := p.planner.Paths(p.config.Prefix, m.ID, m.TileSize, width, height)
	p.logger.Debug("tiles planned",
		zap.String("id", m.ID),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("tiles", len(paths)))

	pending := make([]*Future, 0, len(paths)+1)
	for _, path := range paths {
		pending = append(pending, p.bus.Send(ctx, TopicWorker, m.WithIIIFPath(path)))
	}
	pending = append(pending, p.bus.Send(ctx, TopicInfo, m.WithDimensions(width, height)))

	return Success(pending...)
}

// worker renders one derivative and stores it under its canonical path.
func (p *Pipeline) worker(ctx context.Context, m Message) Reply {
	r, err := iiif.ParseRequest(m.IIIFPath)
	if err != nil {
		return Failure(stageError(KindGrammar, TopicWorker, m, err))
	}

	source, err := os.ReadFile(m.FilePath)
	if err != nil {
		return Failure(stageError(KindStorage, TopicWorker, m, err))
	}

	output, err := transform.Apply(p.engine, source, r)
	if err != nil {
		kind := KindTransform
		if errors.Is(err, transform.ErrResourceExhausted) {
			kind = KindResource
		}
		return Failure(stageError(kind, TopicWorker, m, err))
	}

	if err := p.store.Put(ctx, m.ID, r.RelativePath(), output); err != nil {
		return Failure(stageError(KindStorage, TopicWorker, m, err))
	}

	p.logger.Debug("derivative stored",
		zap.String("id", m.ID),
		zap.String("path", m.IIIFPath),
		zap.Int("bytes", len(output)))
	return Success()
}

// info writes the info.json document of the image.
func (p *Pipeline) info(ctx context.Context, m Message) Reply {
	thumbnail := p.thumbnailSize()
	w, h := thumbnail.Dimensions(m.Width, m.Height)

	doc := iiif.NewImageInfo(
		iiif.ServiceURL(p.config.BaseURL, p.config.Prefix, m.ID),
		m.Width,
		m.Height,
		m.TileSize,
		iiif.SizeInfo{Width: w, Height: h},
		iiif.SizeInfo{Width: m.Width, Height: m.Height},
	)

	data, err := json.Marshal(doc)
	if err != nil {
		return Failure(stageError(KindTransform, TopicInfo, m, err))
	}

	if err := p.store.Put(ctx, m.ID, store.InfoPath, data); err != nil {
		return Failure(stageError(KindStorage, TopicInfo, m, err))
	}

	if p.catalog != nil {
		if err := p.catalog.SetDimensions(ctx, m.ID, m.TileSize, m.Width, m.Height); err != nil {
			return Failure(stageError(KindStorage, TopicInfo, m, err))
		}
	}

	return Success()
}

// thumbnail dispatches the thumbnail and the full size derivative.
func (p *Pipeline) thumbnail(ctx context.Context, m Message) Reply {
	thumbnail := iiif.NewRequest(p.config.Prefix, m.ID, iiif.FullRegion, p.thumbnailSize(), iiif.NoRotation, iiif.DefaultQuality, iiif.JPG)
	full := iiif.NewRequest(p.config.Prefix, m.ID, iiif.FullRegion, iiif.FullSize, iiif.NoRotation, iiif.DefaultQuality, iiif.JPG)

	return Success(
		p.bus.Send(ctx, TopicWorker, m.WithIIIFPath(thumbnail.String())),
		p.bus.Send(ctx, TopicWorker, m.WithIIIFPath(full.String())),
	)
}

func (p *Pipeline) thumbnailSize() iiif.Size {
	n := p.config.ThumbnailSize
	return iiif.Size{Width: n, Height: n, Scalable: true}
}

// index records the image in the catalog.
func (p *Pipeline) index(ctx context.Context, m Message) Reply {
	if p.catalog == nil {
		return Success()
	}
	if err := p.catalog.Index(ctx, m.ID, m.FilePath, m.TileSize); err != nil {
		return Failure(stageError(KindStorage, TopicIndex, m, err))
	}
	return Success()
}

// properties saves the metadata that came along with the source.
func (p *Pipeline) properties(ctx context.Context, m Message) Reply {
	if p.catalog == nil || len(m.Properties) == 0 {
		return Success()
	}
	if err := p.catalog.SaveProperties(ctx, m.ID, m.Properties); err != nil {
		return Failure(stageError(KindStorage, TopicProperties, m, err))
	}
	return Success()
}
