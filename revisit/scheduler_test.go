package revisit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venicegeo/bf-scene-catalog/catalog"
	"github.com/venicegeo/bf-scene-catalog/model"
	"github.com/venicegeo/bf-scene-catalog/satellite"
)

var position = model.TrackedPosition{Path: "220", Row: "066"}

func newTestScheduler(t *testing.T, today time.Time) (*Scheduler, *catalog.Store) {
	t.Helper()
	store, err := catalog.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	require.Nil(t, err)
	t.Cleanup(func() { store.Close() })
	require.Nil(t, store.Migrate(context.Background()))

	return &Scheduler{
		Catalog:          store,
		Satellites:       satellite.DefaultTable(),
		DefaultSatellite: "LC8",
		DefaultStation:   "LGN00",
		Now:              func() time.Time { return today },
	}, store
}

func addScene(t *testing.T, store *catalog.Store, name string) {
	t.Helper()
	_, _, err := store.CreateScene(context.Background(), model.Scene{Name: name})
	require.Nil(t, err)
}

func TestExpectedNext_FromLatestScene(t *testing.T) {
	ctx := context.Background()
	scheduler, store := newTestScheduler(t, time.Date(2015, 3, 1, 10, 0, 0, 0, time.UTC))
	addScene(t, store, "LC82200662014350LGN00")
	addScene(t, store, "LC82200662015001LGN00")

	date, err := scheduler.ExpectedNextDate(ctx, position)
	require.Nil(t, err)
	assert.Equal(t, time.Date(2015, 1, 17, 0, 0, 0, 0, time.UTC), date)

	name, err := scheduler.ExpectedNextName(ctx, position)
	require.Nil(t, err)
	assert.Equal(t, "LC82200662015017LGN00", name)
}

func TestExpectedNext_YearRollover(t *testing.T) {
	ctx := context.Background()
	scheduler, store := newTestScheduler(t, time.Date(2016, 3, 1, 0, 0, 0, 0, time.UTC))
	addScene(t, store, "LC82200662015360LGN00")

	date, err := scheduler.ExpectedNextDate(ctx, position)
	require.Nil(t, err)
	assert.Equal(t, time.Date(2016, 1, 11, 0, 0, 0, 0, time.UTC), date)

	name, err := scheduler.ExpectedNextName(ctx, position)
	require.Nil(t, err)
	assert.Equal(t, "LC82200662016011LGN00", name)
}

func TestExpectedNext_UsesLatestSatellite(t *testing.T) {
	scheduler, store := newTestScheduler(t, time.Date(2015, 3, 1, 0, 0, 0, 0, time.UTC))
	addScene(t, store, "LE72200662015001EDC00")

	name, err := scheduler.ExpectedNextName(context.Background(), position)

	require.Nil(t, err)
	assert.Equal(t, "LE72200662015017LGN00", name)
}

func TestExpectedNext_FamilyRevisitCycle(t *testing.T) {
	scheduler, store := newTestScheduler(t, time.Date(2015, 3, 1, 0, 0, 0, 0, time.UTC))
	scheduler.Satellites = satellite.NewTable(16, satellite.Family{Code: "LC8", Bucket: "landsat8", RevisitDays: 8})
	addScene(t, store, "LC82200662015001LGN00")

	date, err := scheduler.ExpectedNextDate(context.Background(), position)

	require.Nil(t, err)
	assert.Equal(t, time.Date(2015, 1, 9, 0, 0, 0, 0, time.UTC), date)
}

func TestNoScenes_DueToday(t *testing.T) {
	ctx := context.Background()
	today := time.Date(2017, 2, 3, 15, 30, 0, 0, time.UTC)
	scheduler, _ := newTestScheduler(t, today)

	due, err := scheduler.IsDue(ctx, position)
	require.Nil(t, err)
	assert.True(t, due)

	date, err := scheduler.ExpectedNextDate(ctx, position)
	require.Nil(t, err)
	assert.Equal(t, time.Date(2017, 2, 3, 0, 0, 0, 0, time.UTC), date)

	name, err := scheduler.ExpectedNextName(ctx, position)
	require.Nil(t, err)
	assert.Equal(t, "LC82200662017034LGN00", name)
}

func TestIsDue_NotYet(t *testing.T) {
	scheduler, store := newTestScheduler(t, time.Date(2015, 1, 16, 23, 0, 0, 0, time.UTC))
	addScene(t, store, "LC82200662015001LGN00")

	due, err := scheduler.IsDue(context.Background(), position)

	require.Nil(t, err)
	assert.False(t, due)
}

func TestIsDue_OnTheDay(t *testing.T) {
	scheduler, store := newTestScheduler(t, time.Date(2015, 1, 17, 0, 0, 0, 0, time.UTC))
	addScene(t, store, "LC82200662015001LGN00")

	due, err := scheduler.IsDue(context.Background(), position)

	require.Nil(t, err)
	assert.True(t, due)
}

func TestIsDue_FalseOncePredictedSceneExists(t *testing.T) {
	ctx := context.Background()
	today := time.Date(2017, 2, 3, 0, 0, 0, 0, time.UTC)
	scheduler, store := newTestScheduler(t, today)

	prediction, err := scheduler.Next(ctx, position)
	require.Nil(t, err)
	require.True(t, prediction.Due)
	addScene(t, store, prediction.Name)

	// The new scene moves the prediction 16 days ahead.
	next, err := scheduler.Next(ctx, position)
	require.Nil(t, err)
	assert.False(t, next.Due)
	assert.Equal(t, prediction.Name, next.LastScene)
	assert.Equal(t, today.AddDate(0, 0, 16), next.Date)
}

type failingSource struct{}

func (failingSource) LatestSceneFor(context.Context, string, string) (*model.Scene, error) {
	return nil, errors.New("catalog down")
}

func (failingSource) SceneExists(context.Context, string) (bool, error) {
	return false, nil
}

func TestIsDue_PropagatesCatalogErrors(t *testing.T) {
	scheduler := &Scheduler{Catalog: failingSource{}, DefaultSatellite: "LC8", DefaultStation: "LGN00"}

	_, err := scheduler.IsDue(context.Background(), position)

	assert.EqualError(t, err, "catalog down")
}
