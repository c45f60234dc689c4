package main

import (
	"context"
	"io"

	"github.com/greut/iiif-tiler/catalog"
	"github.com/greut/iiif-tiler/codec"
	"github.com/greut/iiif-tiler/config"
	"github.com/greut/iiif-tiler/logging"
	"github.com/greut/iiif-tiler/pipeline"
	"github.com/greut/iiif-tiler/store"
	"github.com/greut/iiif-tiler/transform"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type options struct {
	config   string
	logLevel string
}

func (o *options) load() (*config.Config, error) {
	var (
		c   *config.Config
		err error
	)
	if o.config == "" {
		c, err = config.New()
	} else {
		c, err = config.Load(o.config)
	}
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		c.Log.Level = o.logLevel
	}
	return c, nil
}

// app holds the components shared by the commands.
type app struct {
	config   *config.Config
	logger   *zap.Logger
	engine   transform.Engine
	store    store.Store
	catalog  *catalog.Catalog
	pipeline *pipeline.Pipeline

	closers []io.Closer
}

func newApp(ctx context.Context, opts *options) (*app, error) {
	c, err := opts.load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(c.Log)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create logger")
	}

	a := &app{config: c, logger: logger}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	c := a.config

	engine, err := transform.NewEngine(c.Engine, transform.Options{
		MaxArea:     c.MaxArea,
		JPEGQuality: c.JPEGQuality,
	})
	if err != nil {
		return errors.Wrap(err, "cannot create engine")
	}
	a.engine = engine

	prober, err := codec.New(c.Prober)
	if err != nil {
		return errors.Wrap(err, "cannot create prober")
	}
	a.track(prober)

	s, err := store.Open(ctx, c.Store)
	if err != nil {
		return errors.Wrapf(err, "cannot open %s store", c.Store.Kind)
	}
	a.store = s
	a.track(s)

	var cat pipeline.Catalog
	if c.Catalog != "" {
		a.catalog, err = catalog.Open(c.Catalog)
		if err != nil {
			return errors.Wrap(err, "cannot open catalog")
		}
		a.track(a.catalog)
		cat = a.catalog
	}

	a.logger.Info("starting",
		zap.String("engine", engine.Name()),
		zap.String("prober", c.Prober),
		zap.String("store", c.Store.Kind),
		zap.String("catalog", c.Catalog),
		zap.Int("workers", c.Workers))

	a.pipeline = pipeline.New(c, engine, prober, s, cat, a.logger.Named("pipeline"))
	return nil
}

func (a *app) track(v interface{}) {
	if closer, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, closer)
	}
}

// Close stops the pipeline before releasing what it uses.
func (a *app) Close() {
	if a.pipeline != nil {
		a.pipeline.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("cannot close", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
