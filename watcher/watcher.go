// Package watcher ingests the images dropped into a folder.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/greut/iiif-tiler/config"
	"github.com/greut/iiif-tiler/pipeline"
	jsoniter "github.com/json-iterator/go"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// sidecarExt is the extension of the optional properties file that may
// come along with an image, e.g. photo.tif and photo.tif.json.
const sidecarExt = ".json"

// IngestFunc runs a whole ingestion and waits for its outcome.
type IngestFunc func(ctx context.Context, filePath string, properties map[string]interface{}) (pipeline.Aggregate, error)

// Watcher reacts to the files created or written in a folder. A file is
// ingested once it stayed quiet for the configured delay, and ingested
// again, up to the configured retries, while the failures are retryable.
type Watcher struct {
	folder  string
	retries int
	delay   time.Duration
	cleanup bool
	ingest  IngestFunc
	logger  *zap.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	running conc.WaitGroup
}

// New watches the folder of the configuration.
func New(c config.Watch, ingest IngestFunc, logger *zap.Logger) (*Watcher, error) {
	if c.Folder == "" {
		return nil, errors.New("no folder to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("cannot create watcher: %w", err)
	}
	if err := fsw.Add(c.Folder); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("cannot watch %s: %w", c.Folder, err)
	}

	return &Watcher{
		folder:  c.Folder,
		retries: c.Retries,
		delay:   c.Delay.Duration,
		cleanup: c.Cleanup,
		ingest:  ingest,
		logger:  logger,
		fsw:     fsw,
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run handles the events until the context is done, then waits for the
// running ingestions.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.running.Wait()
	defer w.fsw.Close()

	w.logger.Info("watching", zap.String("folder", w.folder))

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if ignored(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", zap.Error(err))
		}
	}
}

func ignored(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, sidecarExt)
}

// schedule (re)starts the quiet period of the file.
func (w *Watcher) schedule(ctx context.Context, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.restart(ctx, name)
}

// restart must be called with mu held. A timer that already fired is
// replaced, its callback then finds a different timer pending and gives up.
func (w *Watcher) restart(ctx context.Context, name string) {
	if timer, ok := w.pending[name]; ok && timer.Stop() {
		timer.Reset(w.delay)
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		current := w.pending[name] == timer
		if current {
			delete(w.pending, name)
		}
		w.mu.Unlock()

		if !current {
			return
		}
		w.running.Go(func() {
			w.ingestWithRetry(ctx, name)
		})
	})
	w.pending[name] = timer
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for name, timer := range w.pending {
		timer.Stop()
		delete(w.pending, name)
	}
}

// ingestWithRetry ingests the file up to 1+retries times. Grammar failures
// stop the retries as another run would fail the same way.
func (w *Watcher) ingestWithRetry(ctx context.Context, name string) {
	logger := w.logger.With(zap.String("file", name))

	properties, err := readSidecar(name)
	if err != nil {
		logger.Error("ignoring properties", zap.Error(err))
	}

	var lastErr error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				logger.Warn("ingest abandoned", zap.Int("attempt", attempt), zap.Error(ctx.Err()))
				return
			case <-time.After(w.delay):
			}
		}

		aggregate, err := w.ingest(ctx, name, properties)
		if err == nil {
			logger.Info("ingested", zap.Int("attempt", attempt+1), zap.Int("jobs", len(aggregate.Outcomes)))
			w.remove(name)
			return
		}

		lastErr = err
		if !aggregate.Retryable() {
			break
		}
		logger.Warn("ingest failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
	}

	logger.Error("ingest failed permanently", zap.Int("retries", w.retries), zap.Error(lastErr))
	w.remove(name)
}

func (w *Watcher) remove(name string) {
	if !w.cleanup {
		return
	}
	for _, filename := range []string{name, name + sidecarExt} {
		if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("cannot remove", zap.String("file", filename), zap.Error(err))
		}
	}
}

// readSidecar loads the properties stored next to the image, if any.
func readSidecar(name string) (map[string]interface{}, error) {
	data, err := os.ReadFile(name + sidecarExt)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	properties := map[string]interface{}{}
	if err := json.Unmarshal(data, &properties); err != nil {
		return nil, fmt.Errorf("invalid %s%s: %w", filepath.Base(name), sidecarExt, err)
	}
	return properties, nil
}
