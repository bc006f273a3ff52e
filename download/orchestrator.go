// Copyright 2018, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package download fetches the bands of newly due scenes and records them in
// the catalog.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/venicegeo/bf-scene-catalog/model"
	"github.com/venicegeo/bf-scene-catalog/revisit"
	"github.com/venicegeo/bf-scene-catalog/sceneid"
)

// DefaultQualityBand is fetched with every scene.
const DefaultQualityBand = "BQA"

// ErrFetchFailed is matched by every *FetchFailedError.
var ErrFetchFailed = errors.New("fetch failed")

// FetchFailedError reports the failure of a single band.
type FetchFailedError struct {
	Band string
	Err  error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetching band %s: %v", e.Band, e.Err)
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrFetchFailed) true.
func (e *FetchFailedError) Is(target error) bool { return target == ErrFetchFailed }

// Catalog is the part of the catalog the orchestrator writes.
type Catalog interface {
	CreateScene(ctx context.Context, scene model.Scene) (model.Scene, bool, error)
	CreateImage(ctx context.Context, name string, scene model.Scene) (model.Image, bool, error)
	SetSceneStatus(ctx context.Context, name string, status model.SceneStatus) error
	SceneByName(ctx context.Context, name string) (model.Scene, error)
	ImagesOf(ctx context.Context, sceneName string) ([]model.Image, error)
}

// Scheduler predicts the next scene of a position.
type Scheduler interface {
	Next(ctx context.Context, pos model.TrackedPosition) (revisit.Prediction, error)
}

// Downloaded is one fetched band.
type Downloaded struct {
	Band    string `json:"band"`
	Image   string `json:"image"`
	Path    string `json:"path"`
	Created bool   `json:"created"`
}

// Orchestrator checks due-ness, fetches bands and records the scene.
type Orchestrator struct {
	Catalog   Catalog
	Scheduler Scheduler
	Fetcher   Fetcher
	// QualityBand defaults to DefaultQualityBand.
	QualityBand string
	// Metadata is optional; failures are logged and ignored.
	Metadata MetadataSource
	Logger   *slog.Logger
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// BandList normalizes the requested bands and appends the quality band last.
func (o *Orchestrator) BandList(requested []string) ([]string, error) {
	quality := o.QualityBand
	if quality == "" {
		quality = DefaultQualityBand
	}

	seen := map[string]bool{quality: true}
	bands := make([]string, 0, len(requested)+1)
	for _, band := range requested {
		bandType, err := sceneid.BandType(band)
		if err != nil {
			return nil, err
		}
		if seen[bandType] {
			continue
		}
		seen[bandType] = true
		bands = append(bands, bandType)
	}
	return append(bands, quality), nil
}

// DownloadNewScene fetches the requested bands of the expected next scene of
// the position if it is due. Bands are fetched independently: the successful
// ones are committed even when others fail, and the failures are returned
// joined as *FetchFailedError values. Nothing is recorded if every band fails.
func (o *Orchestrator) DownloadNewScene(ctx context.Context, pos model.TrackedPosition, requested []string) ([]Downloaded, error) {
	log := o.logger().With("position", pos.String())

	prediction, err := o.Scheduler.Next(ctx, pos)
	if err != nil {
		return nil, err
	}
	if !prediction.Due {
		log.Info("no new scene due", "expected", prediction.Name, "date", prediction.Date.Format(model.DateLayout))
		return []Downloaded{}, nil
	}

	bands, err := o.BandList(requested)
	if err != nil {
		return nil, err
	}
	id, err := sceneid.Parse(prediction.Name)
	if err != nil {
		return nil, err
	}

	log.Info("fetching scene", "scene", prediction.Name, "bands", bands)
	fetched, fetchErr := o.fetch(ctx, prediction.Name, bands)
	if len(fetched) == 0 {
		log.Warn("no band of scene could be fetched", "scene", prediction.Name, "error", fetchErr)
		return []Downloaded{}, fetchErr
	}

	scene := model.Scene{
		Name:      prediction.Name,
		Path:      pos.Path,
		Row:       pos.Row,
		Satellite: id.Satellite,
		Date:      prediction.Date,
		Status:    model.StatusDownloading,
	}
	o.applyMetadata(ctx, &scene)

	stored, created, err := o.Catalog.CreateScene(ctx, scene)
	if err != nil {
		return nil, errors.Join(err, fetchErr)
	}
	if !created {
		log.Info("scene already cataloged", "scene", stored.Name)
	}

	if err = o.record(ctx, stored, fetched); err != nil {
		return nil, errors.Join(err, fetchErr)
	}

	status := model.StatusComplete
	if fetchErr != nil {
		status = model.StatusFailed
	}
	if err = o.Catalog.SetSceneStatus(ctx, stored.Name, status); err != nil {
		return nil, errors.Join(err, fetchErr)
	}
	log.Info("scene downloaded", "scene", stored.Name, "status", status, "fetched", len(fetched), "requested", len(bands))
	return fetched, fetchErr
}

// ResumeScene fetches the bands of an existing scene that have no image yet,
// and marks the scene complete once every band is present.
func (o *Orchestrator) ResumeScene(ctx context.Context, sceneName string, requested []string) ([]Downloaded, error) {
	scene, err := o.Catalog.SceneByName(ctx, sceneName)
	if err != nil {
		return nil, err
	}
	bands, err := o.BandList(requested)
	if err != nil {
		return nil, err
	}
	images, err := o.Catalog.ImagesOf(ctx, scene.Name)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(images))
	for _, image := range images {
		present[image.Type] = true
	}

	var missing []string
	for _, band := range bands {
		if !present[band] {
			missing = append(missing, band)
		}
	}
	if len(missing) == 0 {
		if scene.Status != model.StatusComplete {
			return []Downloaded{}, o.Catalog.SetSceneStatus(ctx, scene.Name, model.StatusComplete)
		}
		return []Downloaded{}, nil
	}

	o.logger().Info("resuming scene", "scene", scene.Name, "missing", missing)
	fetched, fetchErr := o.fetch(ctx, scene.Name, missing)
	if err = o.record(ctx, scene, fetched); err != nil {
		return nil, errors.Join(err, fetchErr)
	}

	status := model.StatusComplete
	if fetchErr != nil {
		status = model.StatusFailed
	}
	if err = o.Catalog.SetSceneStatus(ctx, scene.Name, status); err != nil {
		return nil, errors.Join(err, fetchErr)
	}
	return fetched, fetchErr
}

func (o *Orchestrator) fetch(ctx context.Context, sceneName string, bands []string) ([]Downloaded, error) {
	var (
		fetched = make([]Downloaded, 0, len(bands))
		errs    []error
	)
	for _, band := range bands {
		path, err := o.Fetcher.Fetch(ctx, sceneName, band)
		if err != nil {
			o.logger().Warn("band fetch failed", "scene", sceneName, "band", band, "error", err)
			errs = append(errs, &FetchFailedError{Band: band, Err: err})
			continue
		}
		fetched = append(fetched, Downloaded{
			Band:  band,
			Image: sceneid.ImageName(sceneName, band),
			Path:  path,
		})
	}
	return fetched, errors.Join(errs...)
}

func (o *Orchestrator) record(ctx context.Context, scene model.Scene, fetched []Downloaded) error {
	for i := range fetched {
		_, created, err := o.Catalog.CreateImage(ctx, fetched[i].Image, scene)
		if err != nil {
			return err
		}
		fetched[i].Created = created
	}
	return nil
}

func (o *Orchestrator) applyMetadata(ctx context.Context, scene *model.Scene) {
	if o.Metadata == nil {
		return
	}
	metadata, err := o.Metadata.SceneMetadata(ctx, scene.Name)
	if err != nil {
		o.logger().Warn("scene metadata unavailable", "scene", scene.Name, "error", err)
		return
	}
	if metadata.Bounds != nil {
		scene.Geom = metadata.Bounds
	}
	if metadata.CloudCover != nil {
		scene.CloudRate = metadata.CloudCover
	}
}
