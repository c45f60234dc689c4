package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/greut/iiif-tiler/config"
	"github.com/greut/iiif-tiler/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu         sync.Mutex
	calls      []string
	properties []map[string]interface{}
	outcome    pipeline.Outcome
}

func (r *recorder) ingest(ctx context.Context, filePath string, properties map[string]interface{}) (pipeline.Aggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, filePath)
	r.properties = append(r.properties, properties)

	aggregate := pipeline.Aggregate{Outcomes: []pipeline.Outcome{r.outcome}}
	return aggregate, aggregate.Err()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newWatcher(t *testing.T, r *recorder, cleanup bool) *Watcher {
	t.Helper()

	c := config.Watch{
		Folder:  t.TempDir(),
		Retries: 2,
		Cleanup: cleanup,
	}
	c.Delay.Duration = 10 * time.Millisecond

	w, err := New(c, r.ingest, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { w.fsw.Close() })
	return w
}

func TestNewWithoutFolder(t *testing.T) {
	_, err := New(config.Watch{}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestIgnored(t *testing.T) {
	assert.True(t, ignored("/in/.partial"))
	assert.True(t, ignored("/in/photo.tif.json"))
	assert.False(t, ignored("/in/photo.tif"))
}

func TestRunIngestsNewFiles(t *testing.T) {
	r := &recorder{outcome: pipeline.Outcome{Topic: pipeline.TopicWorker}}
	w := newWatcher(t, r, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// let the watcher start
	time.Sleep(50 * time.Millisecond)

	image := filepath.Join(w.folder, "photo.tif")
	require.NoError(t, os.WriteFile(image+sidecarExt, []byte(`{"id": "photo", "title": "Photo"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(w.folder, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(image, []byte("image"), 0o644))

	assert.Eventually(t, func() bool { return r.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.calls, 1)
	assert.Equal(t, image, r.calls[0])
	assert.Equal(t, "Photo", r.properties[0]["title"])

	_, err := os.Stat(image)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(image + sidecarExt)
	assert.True(t, os.IsNotExist(err))
}

func TestRescheduleAfterTheTimerFired(t *testing.T) {
	r := &recorder{outcome: pipeline.Outcome{Topic: pipeline.TopicWorker}}
	w := newWatcher(t, r, false)
	ctx := context.Background()
	image := filepath.Join(w.folder, "photo.tif")

	w.schedule(ctx, image)

	// the timer fires while another event holds the lock
	w.mu.Lock()
	time.Sleep(50 * time.Millisecond)
	w.restart(ctx, image)
	w.mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	w.running.Wait()

	assert.Equal(t, 1, r.count())
	w.mu.Lock()
	assert.Empty(t, w.pending)
	w.mu.Unlock()
}

func TestRetriesAreBounded(t *testing.T) {
	failure := &pipeline.Error{Kind: pipeline.KindStorage, Stage: pipeline.TopicWorker, Err: errors.New("disk full")}
	r := &recorder{outcome: pipeline.Outcome{Topic: pipeline.TopicWorker, Err: failure}}
	w := newWatcher(t, r, false)

	image := filepath.Join(w.folder, "photo.tif")
	require.NoError(t, os.WriteFile(image, []byte("image"), 0o644))

	w.ingestWithRetry(context.Background(), image)

	assert.Equal(t, 3, r.count())
	_, err := os.Stat(image)
	assert.NoError(t, err)
}

func TestGrammarFailuresAreNotRetried(t *testing.T) {
	failure := &pipeline.Error{Kind: pipeline.KindGrammar, Stage: pipeline.TopicIntake, Err: errors.New("invalid properties")}
	r := &recorder{outcome: pipeline.Outcome{Topic: pipeline.TopicIntake, Err: failure}}
	w := newWatcher(t, r, true)

	image := filepath.Join(w.folder, "photo.tif")
	require.NoError(t, os.WriteFile(image, []byte("image"), 0o644))

	w.ingestWithRetry(context.Background(), image)

	assert.Equal(t, 1, r.count())
	// given up, the file goes away all the same
	_, err := os.Stat(image)
	assert.True(t, os.IsNotExist(err))
}

func TestInvalidSidecar(t *testing.T) {
	r := &recorder{outcome: pipeline.Outcome{Topic: pipeline.TopicWorker}}
	w := newWatcher(t, r, false)

	image := filepath.Join(w.folder, "photo.tif")
	require.NoError(t, os.WriteFile(image+sidecarExt, []byte(`{nope`), 0o644))

	_, err := readSidecar(image)
	assert.Error(t, err)

	w.ingestWithRetry(context.Background(), image)
	require.Equal(t, 1, r.count())
	assert.Nil(t, r.properties[0])
}
