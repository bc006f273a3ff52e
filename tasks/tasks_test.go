package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venicegeo/bf-scene-catalog/catalog"
	"github.com/venicegeo/bf-scene-catalog/derived"
	"github.com/venicegeo/bf-scene-catalog/download"
	"github.com/venicegeo/bf-scene-catalog/model"
	"github.com/venicegeo/bf-scene-catalog/queue"
	"github.com/venicegeo/bf-scene-catalog/sceneid"
)

type enqueued struct {
	task    string
	payload interface{}
}

// recordingQueue keeps handlers and enqueued jobs without running anything.
type recordingQueue struct {
	mu       sync.Mutex
	handlers map[string]queue.Handler
	policies map[string]queue.RetryPolicy
	jobs     []enqueued
	// failures makes the next Enqueue calls of a task fail.
	failures map[string]int
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{handlers: map[string]queue.Handler{}, policies: map[string]queue.RetryPolicy{}}
}

func (q *recordingQueue) Register(task string, handler queue.Handler, policy queue.RetryPolicy) error {
	q.handlers[task] = handler
	q.policies[task] = policy
	return nil
}

func (q *recordingQueue) Enqueue(ctx context.Context, task string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failures[task] > 0 {
		q.failures[task]--
		return errors.New("channel closed")
	}
	q.jobs = append(q.jobs, enqueued{task, payload})
	return nil
}

func (q *recordingQueue) run(t *testing.T, task string, payload interface{}) error {
	t.Helper()
	data, err := json.Marshal(payload)
	require.Nil(t, err)
	return q.handlers[task](context.Background(), data)
}

type mockDownloader struct {
	results []download.Downloaded
	err     error
	calls   []string
}

func (m *mockDownloader) DownloadNewScene(ctx context.Context, pos model.TrackedPosition, bands []string) ([]download.Downloaded, error) {
	m.calls = append(m.calls, fmt.Sprintf("download %s %v", pos, bands))
	return m.results, m.err
}

func (m *mockDownloader) ResumeScene(ctx context.Context, sceneName string, bands []string) ([]download.Downloaded, error) {
	m.calls = append(m.calls, fmt.Sprintf("resume %s %v", sceneName, bands))
	return m.results, m.err
}

type mockGenerator struct {
	mu      sync.Mutex
	err     error
	tiled   []string
	headers []string
}

func (m *mockGenerator) GenerateTiledMap(ctx context.Context, imageName string) (derived.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiled = append(m.tiled, imageName)
	return derived.Result{Image: imageName, Outcome: derived.Generated}, m.err
}

func (m *mockGenerator) GenerateHeader(ctx context.Context, imageName string) (derived.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers = append(m.headers, imageName)
	return derived.Result{Image: imageName, Outcome: derived.Generated}, m.err
}

// mockCatalog serves the images of a scene and their ledger state.
type mockCatalog struct {
	images  []model.Image
	derived map[string]model.DerivedState
}

func (m *mockCatalog) ImagesOf(ctx context.Context, sceneName string) ([]model.Image, error) {
	return m.images, nil
}

func (m *mockCatalog) DerivedFor(ctx context.Context, imageName string) (model.DerivedProductRecord, error) {
	state, ok := m.derived[imageName]
	if !ok {
		return model.DerivedProductRecord{}, catalog.ErrNotFound
	}
	return model.DerivedProductRecord{SourceImageName: imageName, State: state}, nil
}

func sceneImages(types ...string) []model.Image {
	images := make([]model.Image, 0, len(types))
	for _, imageType := range types {
		images = append(images, model.Image{Name: sceneid.ImageName(scene, imageType), SceneName: scene, Type: imageType})
	}
	return images
}

const scene = "LC82200662015017LGN00"

func setup(t *testing.T, downloader *mockDownloader, generator *mockGenerator) *recordingQueue {
	t.Helper()
	q := newRecordingQueue()
	tasks := &Tasks{Queue: q, Downloader: downloader, Generator: generator}
	require.Nil(t, tasks.Register())
	return q
}

func TestRegister_AllTasksWithPolicies(t *testing.T) {
	q := setup(t, &mockDownloader{}, &mockGenerator{})

	for _, task := range []string{DownloadNewScene, ResumeScene, MakeTMS, CreateHeader} {
		assert.Contains(t, q.handlers, task)
		assert.Equal(t, DefaultPolicies()[task], q.policies[task])
	}
}

func TestDownload_ChainsOnlyCreatedImages(t *testing.T) {
	// Mock
	downloader := &mockDownloader{results: []download.Downloaded{
		{Band: "B4", Image: sceneid.ImageName(scene, "B4"), Created: true},
		{Band: "B5", Image: sceneid.ImageName(scene, "B5"), Created: false},
		{Band: "BQA", Image: sceneid.ImageName(scene, "BQA"), Created: true},
	}}
	q := setup(t, downloader, &mockGenerator{})

	// Tested code
	err := q.run(t, DownloadNewScene, DownloadPayload{Path: "220", Row: "66", Bands: []string{"4", "5"}})

	// Asserts
	require.Nil(t, err)
	assert.Equal(t, []string{"download 220-066 [4 5]"}, downloader.calls)
	assert.Equal(t, []enqueued{
		{MakeTMS, ImagePayload{Image: scene + "_B4.TIF"}},
		{CreateHeader, ImagePayload{Image: scene + "_B4.TIF"}},
		{MakeTMS, ImagePayload{Image: scene + "_BQA.TIF"}},
		{CreateHeader, ImagePayload{Image: scene + "_BQA.TIF"}},
	}, q.jobs)
}

func TestDownload_NotDueQueuesNothing(t *testing.T) {
	q := setup(t, &mockDownloader{results: []download.Downloaded{}}, &mockGenerator{})

	assert.Nil(t, q.run(t, DownloadNewScene, DownloadPayload{Path: "220", Row: "066"}))
	assert.Empty(t, q.jobs)
}

func TestDownload_PartialFailureSchedulesResume(t *testing.T) {
	fetchErr := &download.FetchFailedError{Band: "B5", Err: errors.New("404")}
	downloader := &mockDownloader{
		results: []download.Downloaded{{Band: "B4", Image: sceneid.ImageName(scene, "B4"), Created: true}},
		err:     fetchErr,
	}
	q := setup(t, downloader, &mockGenerator{})

	err := q.run(t, DownloadNewScene, DownloadPayload{Path: "220", Row: "066", Bands: []string{"4", "5"}})

	require.Nil(t, err)
	require.Len(t, q.jobs, 3)
	assert.Equal(t, enqueued{ResumeScene, ResumePayload{Scene: scene, Bands: []string{"4", "5"}}}, q.jobs[2])
}

func TestDownload_AllFailedIsRetried(t *testing.T) {
	fetchErr := &download.FetchFailedError{Band: "B4", Err: errors.New("timeout")}
	q := setup(t, &mockDownloader{err: fetchErr}, &mockGenerator{})

	err := q.run(t, DownloadNewScene, DownloadPayload{Path: "220", Row: "066", Bands: []string{"4"}})

	assert.ErrorIs(t, err, download.ErrFetchFailed)
	assert.False(t, queue.IsPermanent(err))
	assert.Empty(t, q.jobs)
}

func TestDownload_BadPositionIsPermanent(t *testing.T) {
	downloader := &mockDownloader{}
	q := setup(t, downloader, &mockGenerator{})

	err := q.run(t, DownloadNewScene, DownloadPayload{Path: "2x0", Row: "066"})

	assert.True(t, queue.IsPermanent(err))
	assert.Empty(t, downloader.calls)
}

func TestDownload_InvalidPayloadIsPermanent(t *testing.T) {
	q := setup(t, &mockDownloader{}, &mockGenerator{})

	err := q.handlers[DownloadNewScene](context.Background(), []byte("{"))

	assert.True(t, queue.IsPermanent(err))
}

func TestResume_ChainsCreatedImages(t *testing.T) {
	downloader := &mockDownloader{results: []download.Downloaded{
		{Band: "B5", Image: sceneid.ImageName(scene, "B5"), Created: true},
	}}
	q := setup(t, downloader, &mockGenerator{})

	require.Nil(t, q.run(t, ResumeScene, ResumePayload{Scene: scene, Bands: []string{"5"}}))

	assert.Equal(t, []string{"resume " + scene + " [5]"}, downloader.calls)
	assert.Len(t, q.jobs, 2)
}

func TestResume_MissingSceneIsPermanent(t *testing.T) {
	q := setup(t, &mockDownloader{err: fmt.Errorf("scene %s: %w", scene, catalog.ErrNotFound)}, &mockGenerator{})

	err := q.run(t, ResumeScene, ResumePayload{Scene: scene})

	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestDownload_ChainFailureSchedulesResume(t *testing.T) {
	downloader := &mockDownloader{results: []download.Downloaded{
		{Band: "B4", Image: sceneid.ImageName(scene, "B4"), Created: true},
		{Band: "BQA", Image: sceneid.ImageName(scene, "BQA"), Created: true},
	}}
	q := newRecordingQueue()
	q.failures = map[string]int{MakeTMS: 1}
	tasks := &Tasks{Queue: q, Downloader: downloader, Generator: &mockGenerator{}, Catalog: &mockCatalog{
		images: sceneImages("B4", "BQA"),
	}}
	require.Nil(t, tasks.Register())

	err := q.run(t, DownloadNewScene, DownloadPayload{Path: "220", Row: "066", Bands: []string{"4"}})

	require.Nil(t, err)
	require.Equal(t, []enqueued{{ResumeScene, ResumePayload{Scene: scene, Bands: []string{"4"}}}}, q.jobs)

	// The scene is complete, so the resume fetches nothing but still chains
	// the images created by the download.
	downloader.results = []download.Downloaded{}
	require.Nil(t, q.run(t, ResumeScene, q.jobs[0].payload))
	assert.Equal(t, []enqueued{
		{ResumeScene, ResumePayload{Scene: scene, Bands: []string{"4"}}},
		{MakeTMS, ImagePayload{Image: scene + "_B4.TIF"}},
		{CreateHeader, ImagePayload{Image: scene + "_B4.TIF"}},
		{MakeTMS, ImagePayload{Image: scene + "_BQA.TIF"}},
		{CreateHeader, ImagePayload{Image: scene + "_BQA.TIF"}},
	}, q.jobs)
}

func TestDownload_ChainAndResumeFailureIsRetried(t *testing.T) {
	downloader := &mockDownloader{results: []download.Downloaded{
		{Band: "B4", Image: sceneid.ImageName(scene, "B4"), Created: true},
	}}
	q := setup(t, downloader, &mockGenerator{})
	q.failures = map[string]int{MakeTMS: 1, ResumeScene: 1}

	err := q.run(t, DownloadNewScene, DownloadPayload{Path: "220", Row: "066", Bands: []string{"4"}})

	assert.NotNil(t, err)
	assert.False(t, queue.IsPermanent(err))
	assert.Empty(t, q.jobs)
}

func TestResume_ChainsUnfinishedImages(t *testing.T) {
	downloader := &mockDownloader{results: []download.Downloaded{
		{Band: "B5", Image: sceneid.ImageName(scene, "B5"), Created: true},
	}}
	q := newRecordingQueue()
	tasks := &Tasks{Queue: q, Downloader: downloader, Generator: &mockGenerator{}, Catalog: &mockCatalog{
		images: sceneImages("B4", "B5", "r6g5b4", "r5g4b3"),
		derived: map[string]model.DerivedState{
			sceneid.ImageName(scene, "r6g5b4"): model.DerivedComplete,
			sceneid.ImageName(scene, "r5g4b3"): model.DerivedPending,
		},
	}}
	require.Nil(t, tasks.Register())

	require.Nil(t, q.run(t, ResumeScene, ResumePayload{Scene: scene, Bands: []string{"4", "5"}}))

	var tiled []string
	for _, job := range q.jobs {
		if job.task == MakeTMS {
			tiled = append(tiled, job.payload.(ImagePayload).Image)
		}
	}
	assert.Equal(t, []string{scene + "_B5.TIF", scene + "_B4.TIF", scene + "_r5g4b3.TIF"}, tiled)
	assert.Len(t, q.jobs, 6)
}

func TestMakeTMS_ToolFailureIsRetried(t *testing.T) {
	toolErr := &derived.ToolFailedError{Command: "make_tms.sh", Err: errors.New("exit status 1")}
	generator := &mockGenerator{err: toolErr}
	q := setup(t, &mockDownloader{}, generator)

	err := q.run(t, MakeTMS, ImagePayload{Image: scene + "_r6g5b4.TIF"})

	assert.ErrorIs(t, err, derived.ErrExternalToolFailed)
	assert.False(t, queue.IsPermanent(err))
	assert.Equal(t, []string{scene + "_r6g5b4.TIF"}, generator.tiled)
}

func TestCreateHeader(t *testing.T) {
	generator := &mockGenerator{}
	q := setup(t, &mockDownloader{}, generator)

	require.Nil(t, q.run(t, CreateHeader, ImagePayload{Image: scene + "_B4.TIF"}))

	assert.Equal(t, []string{scene + "_B4.TIF"}, generator.headers)
}

func TestTasks_ThroughLocalQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	local := queue.NewLocal(2, 16, nil)
	local.Start(ctx)

	downloader := &mockDownloader{results: []download.Downloaded{
		{Band: "B4", Image: sceneid.ImageName(scene, "B4"), Created: true},
	}}
	generator := &mockGenerator{}
	tasks := &Tasks{Queue: local, Downloader: downloader, Generator: generator, Policies: Policies{
		MakeTMS: {MaxAttempts: 1, Backoff: time.Millisecond},
	}}
	require.Nil(t, tasks.Register())

	require.Nil(t, EnqueueDownload(ctx, local, model.TrackedPosition{Path: "220", Row: "066"}, []string{"4"}))
	local.Wait()

	assert.Equal(t, []string{scene + "_B4.TIF"}, generator.tiled)
	assert.Equal(t, []string{scene + "_B4.TIF"}, generator.headers)
}
